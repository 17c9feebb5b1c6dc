package domain

import "testing"

func TestMatchTrigger(t *testing.T) {
	t.Parallel()

	p := &Persona{CallTrigger: "..hey"}

	tests := []struct {
		content   string
		wantText  string
		wantMatch bool
	}{
		{"..hey how are you", "how are you", true},
		{"..hey", "", true},
		{"  ..hey hi  ", "hi", true},
		{"..heyo there", "", false},
		{"hello ..hey", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := p.MatchTrigger(tt.content)
		if ok != tt.wantMatch || got != tt.wantText {
			t.Errorf("MatchTrigger(%q) = %q, %v; want %q, %v", tt.content, got, ok, tt.wantText, tt.wantMatch)
		}
	}
}

func TestMatchTriggerEmptyTriggerNeverMatches(t *testing.T) {
	t.Parallel()

	p := &Persona{}
	if _, ok := p.MatchTrigger("anything"); ok {
		t.Error("empty trigger must not match")
	}
}

func TestBackendTypeStateless(t *testing.T) {
	t.Parallel()

	for _, b := range []BackendType{BackendOpenAI, BackendKobold, BackendHorde} {
		if !b.Stateless() {
			t.Errorf("%s should be stateless", b)
		}
	}
	if BackendRemote.Stateless() {
		t.Error("remote backend keeps state server-side")
	}
}

func TestResolveGenerationLayersOverrides(t *testing.T) {
	t.Parallel()

	global := GenerationSettings{
		Model:       "global-model",
		Temperature: 0.8,
		MaxTokens:   300,
	}
	guildModel := "guild-model"
	guildTemp := 0.5
	personaTemp := 1.1

	resolved := ResolveGeneration(global,
		&GenerationOverrides{Model: &guildModel, Temperature: &guildTemp},
		&GenerationOverrides{Temperature: &personaTemp},
	)

	if resolved.Model != "guild-model" {
		t.Errorf("model = %q, want the guild layer", resolved.Model)
	}
	if resolved.Temperature != 1.1 {
		t.Errorf("temperature = %v, want the persona layer", resolved.Temperature)
	}
	if resolved.MaxTokens != 300 {
		t.Errorf("max tokens = %d, want the global default", resolved.MaxTokens)
	}
}

func TestResolveGenerationNilLayersAreSkipped(t *testing.T) {
	t.Parallel()

	global := GenerationSettings{Model: "m"}
	resolved := ResolveGeneration(global, nil, nil)
	if resolved.Model != "m" {
		t.Errorf("model = %q, want global", resolved.Model)
	}
}
