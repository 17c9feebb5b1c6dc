package domain

import "time"

// GenerationSettings is a fully resolved set of provider parameters for one call.
type GenerationSettings struct {
	Model             string  `json:"model,omitempty"`
	Endpoint          string  `json:"endpoint,omitempty"`
	AuthToken         string  `json:"auth_token,omitempty"`
	Temperature       float64 `json:"temperature,omitempty"`
	TopP              float64 `json:"top_p,omitempty"`
	TopK              int     `json:"top_k,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
	FrequencyPenalty  float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty   float64 `json:"presence_penalty,omitempty"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
	ContextBudget     int     `json:"context_budget,omitempty"`
	SystemPrompt      string  `json:"system_prompt,omitempty"`
}

// GenerationOverrides is a sparse settings layer. Nil fields inherit from the
// layer below (persona overrides guild, guild overrides global defaults).
type GenerationOverrides struct {
	Model             *string  `json:"model,omitempty"`
	Endpoint          *string  `json:"endpoint,omitempty"`
	AuthToken         *string  `json:"auth_token,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	FrequencyPenalty  *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64 `json:"presence_penalty,omitempty"`
	MaxTokens         *int     `json:"max_tokens,omitempty"`
	ContextBudget     *int     `json:"context_budget,omitempty"`
	SystemPrompt      *string  `json:"system_prompt,omitempty"`
}

func (o *GenerationOverrides) apply(s *GenerationSettings) {
	if o == nil {
		return
	}
	if o.Model != nil {
		s.Model = *o.Model
	}
	if o.Endpoint != nil {
		s.Endpoint = *o.Endpoint
	}
	if o.AuthToken != nil {
		s.AuthToken = *o.AuthToken
	}
	if o.Temperature != nil {
		s.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		s.TopP = *o.TopP
	}
	if o.TopK != nil {
		s.TopK = *o.TopK
	}
	if o.RepetitionPenalty != nil {
		s.RepetitionPenalty = *o.RepetitionPenalty
	}
	if o.FrequencyPenalty != nil {
		s.FrequencyPenalty = *o.FrequencyPenalty
	}
	if o.PresencePenalty != nil {
		s.PresencePenalty = *o.PresencePenalty
	}
	if o.MaxTokens != nil {
		s.MaxTokens = *o.MaxTokens
	}
	if o.ContextBudget != nil {
		s.ContextBudget = *o.ContextBudget
	}
	if o.SystemPrompt != nil {
		s.SystemPrompt = *o.SystemPrompt
	}
}

// ResolveGeneration layers sparse overrides over the global defaults.
// Layers apply in order, so pass guild first and persona last.
func ResolveGeneration(global GenerationSettings, layers ...*GenerationOverrides) GenerationSettings {
	resolved := global
	for _, layer := range layers {
		layer.apply(&resolved)
	}
	return resolved
}

// GuildSettings holds per-guild defaults for personas in that guild.
type GuildSettings struct {
	GuildID       string
	Overrides     *GenerationOverrides
	MessageFormat string
	UpdatedAt     time.Time
}
