package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/charcord/internal/domain"
	"github.com/ashureev/charcord/internal/prompt"
)

// Horde polling policy: the queue can take a while, but we will not wait on
// it forever.
const (
	hordePollAttempts = 20
	hordePollInterval = 4 * time.Second
)

// HordeClient talks to the queue-based KoboldAI variant: submit a job, then
// poll its status until done or the attempt budget runs out.
type HordeClient struct {
	client       *http.Client
	pollAttempts int
	pollInterval time.Duration
}

// NewHordeClient creates an adapter for the queued backend.
func NewHordeClient() *HordeClient {
	return &HordeClient{
		client:       &http.Client{Timeout: 30 * time.Second},
		pollAttempts: hordePollAttempts,
		pollInterval: hordePollInterval,
	}
}

type hordeSubmitRequest struct {
	Prompt string      `json:"prompt"`
	Params hordeParams `json:"params"`
	Models []string    `json:"models,omitempty"`
}

type hordeParams struct {
	MaxLength        int     `json:"max_length,omitempty"`
	MaxContextLength int     `json:"max_context_length,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	TopP             float64 `json:"top_p,omitempty"`
	TopK             int     `json:"top_k,omitempty"`
	RepPen           float64 `json:"rep_pen,omitempty"`
}

type hordeSubmitResponse struct {
	ID string `json:"id"`
}

type hordeStatusResponse struct {
	Done        bool `json:"done"`
	Faulted     bool `json:"faulted"`
	IsPossible  bool `json:"is_possible"`
	Generations []struct {
		Text string `json:"text"`
	} `json:"generations"`
}

// GenerateResponse submits the job and polls on a fixed interval with a
// bounded attempt count.
func (c *HordeClient) GenerateResponse(ctx context.Context, input Input) (*Candidate, error) {
	s := input.Settings
	if s.AuthToken == "" {
		return nil, newError(domain.BackendHorde, KindAuthMissing, "no horde API key configured", nil)
	}

	submit := hordeSubmitRequest{
		Prompt: prompt.Flatten(input.Window, input.CharName),
		Params: hordeParams{
			MaxLength:        s.MaxTokens,
			MaxContextLength: s.ContextBudget,
			Temperature:      s.Temperature,
			TopP:             s.TopP,
			TopK:             s.TopK,
			RepPen:           s.RepetitionPenalty,
		},
	}
	if s.Model != "" {
		submit.Models = []string{s.Model}
	}

	headers := map[string]string{"apikey": s.AuthToken}
	base := strings.TrimSuffix(s.Endpoint, "/")

	var submitted hordeSubmitResponse
	if err := doJSON(ctx, c.client, domain.BackendHorde, http.MethodPost, base+"/api/v2/generate/text/async", headers, submit, &submitted); err != nil {
		return nil, err
	}
	if submitted.ID == "" {
		return nil, newError(domain.BackendHorde, KindRejected, "submit returned no job id", nil)
	}

	statusURL := fmt.Sprintf("%s/api/v2/generate/text/status/%s", base, submitted.ID)
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, newError(domain.BackendHorde, KindTimeout, "canceled while polling", ctx.Err())
		case <-time.After(c.pollInterval):
		}

		var status hordeStatusResponse
		if err := doJSON(ctx, c.client, domain.BackendHorde, http.MethodGet, statusURL, headers, nil, &status); err != nil {
			return nil, err
		}

		if status.Faulted || (status.Done && !status.IsPossible) {
			return nil, newError(domain.BackendHorde, KindRejected, fmt.Sprintf("job %s faulted or not possible", submitted.ID), nil)
		}
		if !status.IsPossible {
			return nil, newError(domain.BackendHorde, KindRejected, fmt.Sprintf("job %s cannot be fulfilled", submitted.ID), nil)
		}
		if !status.Done {
			continue
		}
		if len(status.Generations) == 0 {
			return nil, newError(domain.BackendHorde, KindRejected, "job finished with no generations", nil)
		}

		text := cleanCompletion(status.Generations[0].Text)
		if text == "" {
			return nil, newError(domain.BackendHorde, KindRejected, "job finished with empty text", nil)
		}
		return &Candidate{Text: text, BackendMessageID: submitted.ID}, nil
	}

	return nil, newError(domain.BackendHorde, KindTimeout,
		fmt.Sprintf("job %s not done after %d polls", submitted.ID, c.pollAttempts), nil)
}

// StartNewConversation is a no-op for stateless backends.
func (c *HordeClient) StartNewConversation(ctx context.Context, characterID string, settings domain.GenerationSettings) (*Conversation, error) {
	return &Conversation{}, nil
}
