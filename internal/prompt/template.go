// Package prompt builds provider inputs: message-format templates and
// token-budgeted context windows.
package prompt

import (
	"errors"
	"strings"
)

// Placeholders recognized by message-format templates.
const (
	PlaceholderUser     = "{{user}}"
	PlaceholderMsg      = "{{msg}}"
	PlaceholderChar     = "{{char}}"
	PlaceholderRef      = "{{ref}}"
	PlaceholderRefBegin = "{{ref_begin}}"
	PlaceholderRefEnd   = "{{ref_end}}"
)

var (
	// ErrMissingMessage is returned when a template lacks {{msg}}.
	ErrMissingMessage = errors.New("template is missing the {{msg}} placeholder")
	// ErrUnpairedRef is returned when {{ref_begin}}/{{ref_end}} are not paired.
	ErrUnpairedRef = errors.New("template has unpaired {{ref_begin}}/{{ref_end}} markers")
)

// ValidateTemplate checks a message-format template for required and paired
// placeholders. Every surface that edits templates must call this.
func ValidateTemplate(tpl string) error {
	if !strings.Contains(tpl, PlaceholderMsg) {
		return ErrMissingMessage
	}
	begins := strings.Count(tpl, PlaceholderRefBegin)
	ends := strings.Count(tpl, PlaceholderRefEnd)
	if begins != ends || begins > 1 {
		return ErrUnpairedRef
	}
	if begins == 1 && strings.Index(tpl, PlaceholderRefBegin) > strings.Index(tpl, PlaceholderRefEnd) {
		return ErrUnpairedRef
	}
	return nil
}

// RenderMessage applies a message-format template. The quoted-reply block
// between {{ref_begin}} and {{ref_end}} is kept (with {{ref}} substituted)
// only when quoted text is present; otherwise the whole block is removed.
func RenderMessage(tpl, displayName, msg, quoted string) string {
	out := renderRefBlock(tpl, quoted)
	out = strings.ReplaceAll(out, PlaceholderUser, displayName)
	out = strings.ReplaceAll(out, PlaceholderMsg, msg)
	return out
}

func renderRefBlock(tpl, quoted string) string {
	begin := strings.Index(tpl, PlaceholderRefBegin)
	if begin < 0 {
		return tpl
	}
	end := strings.Index(tpl, PlaceholderRefEnd)
	if end < begin {
		// Validation rejects this shape; fall back to leaving it untouched.
		return tpl
	}

	inner := tpl[begin+len(PlaceholderRefBegin) : end]
	rest := tpl[end+len(PlaceholderRefEnd):]
	if quoted == "" {
		return tpl[:begin] + rest
	}
	return tpl[:begin] + strings.ReplaceAll(inner, PlaceholderRef, quoted) + rest
}

// RenderSystem substitutes the character-name placeholder into a system or
// jailbreak prompt.
func RenderSystem(systemPrompt, charName string) string {
	return strings.ReplaceAll(systemPrompt, PlaceholderChar, charName)
}
