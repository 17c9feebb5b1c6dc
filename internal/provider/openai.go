package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/charcord/internal/domain"
	"github.com/ashureev/charcord/internal/prompt"
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	client *http.Client
}

// NewOpenAIClient creates an adapter for OpenAI-compatible endpoints.
func NewOpenAIClient() *OpenAIClient {
	return &OpenAIClient{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatCompletionRequest struct {
	Model            string           `json:"model"`
	Messages         []prompt.Message `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
	TopP             float64          `json:"top_p,omitempty"`
	FrequencyPenalty float64          `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64          `json:"presence_penalty,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateResponse sends the prebuilt context window to the chat endpoint.
func (c *OpenAIClient) GenerateResponse(ctx context.Context, input Input) (*Candidate, error) {
	s := input.Settings
	if s.AuthToken == "" {
		return nil, newError(domain.BackendOpenAI, KindAuthMissing, "no API token configured", nil)
	}

	req := chatCompletionRequest{
		Model:            s.Model,
		Messages:         input.Window,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		FrequencyPenalty: s.FrequencyPenalty,
		PresencePenalty:  s.PresencePenalty,
		MaxTokens:        s.MaxTokens,
	}

	var resp chatCompletionResponse
	url := strings.TrimSuffix(s.Endpoint, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + s.AuthToken}
	if err := doJSON(ctx, c.client, domain.BackendOpenAI, http.MethodPost, url, headers, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, newError(domain.BackendOpenAI, KindRejected, "response contained no choices", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, newError(domain.BackendOpenAI, KindRejected, "response contained empty text", nil)
	}

	return &Candidate{
		Text:             text,
		BackendMessageID: resp.ID,
		UsageTokens:      resp.Usage.TotalTokens,
	}, nil
}

// StartNewConversation is a no-op for stateless backends.
func (c *OpenAIClient) StartNewConversation(ctx context.Context, characterID string, settings domain.GenerationSettings) (*Conversation, error) {
	return &Conversation{}, nil
}
