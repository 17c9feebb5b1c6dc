package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/charcord/internal/domain"
	"github.com/ashureev/charcord/internal/prompt"
)

// KoboldClient talks to a KoboldAI text-completion endpoint.
type KoboldClient struct {
	client *http.Client
}

// NewKoboldClient creates an adapter for a local or hosted KoboldAI server.
func NewKoboldClient() *KoboldClient {
	return &KoboldClient{
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type koboldGenerateRequest struct {
	Prompt           string   `json:"prompt"`
	MaxLength        int      `json:"max_length,omitempty"`
	MaxContextLength int      `json:"max_context_length,omitempty"`
	Temperature      float64  `json:"temperature,omitempty"`
	TopP             float64  `json:"top_p,omitempty"`
	TopK             int      `json:"top_k,omitempty"`
	RepPen           float64  `json:"rep_pen,omitempty"`
	StopSequence     []string `json:"stop_sequence,omitempty"`
}

type koboldGenerateResponse struct {
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
}

// GenerateResponse flattens the context window into a completion prompt and
// generates one continuation.
func (c *KoboldClient) GenerateResponse(ctx context.Context, input Input) (*Candidate, error) {
	s := input.Settings

	req := koboldGenerateRequest{
		Prompt:           prompt.Flatten(input.Window, input.CharName),
		MaxLength:        s.MaxTokens,
		MaxContextLength: s.ContextBudget,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		TopK:             s.TopK,
		RepPen:           s.RepetitionPenalty,
		StopSequence:     []string{"\nYou:"},
	}

	var resp koboldGenerateResponse
	url := strings.TrimSuffix(s.Endpoint, "/") + "/api/v1/generate"
	if err := doJSON(ctx, c.client, domain.BackendKobold, http.MethodPost, url, nil, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) == 0 {
		return nil, newError(domain.BackendKobold, KindRejected, "response contained no results", nil)
	}

	text := cleanCompletion(resp.Results[0].Text)
	if text == "" {
		return nil, newError(domain.BackendKobold, KindRejected, "response contained empty text", nil)
	}

	return &Candidate{Text: text}, nil
}

// StartNewConversation is a no-op for stateless backends.
func (c *KoboldClient) StartNewConversation(ctx context.Context, characterID string, settings domain.GenerationSettings) (*Conversation, error) {
	return &Conversation{}, nil
}

// cleanCompletion trims a raw completion at the next speaker cue.
func cleanCompletion(text string) string {
	if idx := strings.Index(text, "\nYou:"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
