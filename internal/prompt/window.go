package prompt

import (
	"strings"

	"github.com/ashureev/charcord/internal/domain"
)

// Approximate characters per token by backend family. A cheap heuristic on
// purpose; the budget it guards is itself approximate.
const (
	CharsPerTokenChat       = 4.0
	CharsPerTokenCompletion = 3.6
)

// Message is one entry of a built context window.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Mode selects how the window treats the most recent turn.
type Mode int

const (
	// ModeStandard includes the full history.
	ModeStandard Mode = iota
	// ModeRegenerate drops the most recent assistant turn so the same user
	// turn can be answered again.
	ModeRegenerate
	// ModeContinue appends a synthetic instruction asking the backend to
	// extend its previous response.
	ModeContinue
)

// ContinueInstruction is appended in ModeContinue instead of dropping turns.
// Stateful backends send it as the utterance itself.
const ContinueInstruction = "[Continue your previous response without repeating it.]"

// ApproxTokens estimates the token cost of text as len/charsPerToken.
func ApproxTokens(text string, charsPerToken float64) int {
	if charsPerToken <= 0 {
		charsPerToken = CharsPerTokenChat
	}
	return int(float64(len(text)) / charsPerToken)
}

// BuildWindow assembles a token-bounded window: one system message built from
// the resolved prompt plus the persona definition, followed by as many of the
// newest history turns as fit the budget, in chronological order.
func BuildWindow(systemPrompt, charName, definition string, history []domain.HistoryEntry, budget int, charsPerToken float64, mode Mode) []Message {
	system := RenderSystem(systemPrompt, charName)
	if definition != "" {
		system = strings.TrimSpace(system + "\n\n" + definition)
	}

	turns := make([]domain.HistoryEntry, len(history))
	copy(turns, history)

	switch mode {
	case ModeRegenerate:
		if n := len(turns); n > 0 && turns[n-1].Role == domain.RoleAssistant {
			turns = turns[:n-1]
		}
	case ModeContinue:
		turns = append(turns, domain.HistoryEntry{Role: domain.RoleUser, Content: ContinueInstruction})
	}

	used := ApproxTokens(system, charsPerToken)

	// Walk newest to oldest, stopping before the budget would be exceeded.
	var included []domain.HistoryEntry
	for i := len(turns) - 1; i >= 0; i-- {
		cost := ApproxTokens(turns[i].Content, charsPerToken)
		if used+cost > budget {
			break
		}
		used += cost
		included = append(included, turns[i])
	}

	window := make([]Message, 0, len(included)+1)
	window = append(window, Message{Role: domain.RoleSystem, Content: system})
	for i := len(included) - 1; i >= 0; i-- {
		window = append(window, Message{Role: included[i].Role, Content: included[i].Content})
	}
	return window
}

// Flatten renders a chat window as a single completion prompt for backends
// that take raw text. Ends with the character name to cue the completion.
func Flatten(window []Message, charName string) string {
	var b strings.Builder
	for _, m := range window {
		switch m.Role {
		case domain.RoleSystem:
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		case domain.RoleAssistant:
			b.WriteString(charName)
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		default:
			b.WriteString("You: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString(charName)
	b.WriteString(":")
	return b.String()
}
