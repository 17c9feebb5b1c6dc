package prompt

import (
	"errors"
	"testing"
)

func TestValidateTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tpl     string
		wantErr error
	}{
		{"minimal", "{{msg}}", nil},
		{"full", "{{user}} says: {{msg}}{{ref_begin}} (re: {{ref}}){{ref_end}}", nil},
		{"missing message", "{{user}} says hi", ErrMissingMessage},
		{"unpaired begin", "{{msg}}{{ref_begin}}{{ref}}", ErrUnpairedRef},
		{"unpaired end", "{{msg}}{{ref}}{{ref_end}}", ErrUnpairedRef},
		{"reversed pair", "{{msg}}{{ref_end}}{{ref}}{{ref_begin}}", ErrUnpairedRef},
		{"double pair", "{{msg}}{{ref_begin}}{{ref_end}}{{ref_begin}}{{ref_end}}", ErrUnpairedRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemplate(tt.tpl)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateTemplate(%q) = %v, want %v", tt.tpl, err, tt.wantErr)
			}
		})
	}
}

func TestRenderMessageSubstitutesPlaceholders(t *testing.T) {
	t.Parallel()

	got := RenderMessage("{{user}}: {{msg}}", "alice", "hello there", "")
	if got != "alice: hello there" {
		t.Errorf("RenderMessage = %q", got)
	}
}

func TestRenderMessageKeepsRefBlockOnlyWithQuote(t *testing.T) {
	t.Parallel()

	tpl := "{{user}}: {{msg}}{{ref_begin}} [quoting: {{ref}}]{{ref_end}}"

	withQuote := RenderMessage(tpl, "alice", "agreed", "the sky is blue")
	if withQuote != "alice: agreed [quoting: the sky is blue]" {
		t.Errorf("with quote = %q", withQuote)
	}

	noQuote := RenderMessage(tpl, "alice", "agreed", "")
	if noQuote != "alice: agreed" {
		t.Errorf("without quote = %q", noQuote)
	}
}

func TestRenderSystemSubstitutesCharName(t *testing.T) {
	t.Parallel()

	got := RenderSystem("You are {{char}}. Act as {{char}} would.", "Luna")
	if got != "You are Luna. Act as Luna would." {
		t.Errorf("RenderSystem = %q", got)
	}
}
