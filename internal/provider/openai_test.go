package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/charcord/internal/domain"
	"github.com/ashureev/charcord/internal/prompt"
)

func chatInput(endpoint string) Input {
	return Input{
		Window: []prompt.Message{
			{Role: domain.RoleSystem, Content: "You are Luna."},
			{Role: domain.RoleUser, Content: "alice: hi"},
		},
		CharName: "Luna",
		Settings: domain.GenerationSettings{
			Endpoint:    endpoint,
			AuthToken:   "tok-1",
			Model:       "gpt-test",
			Temperature: 0.8,
			MaxTokens:   100,
		},
	}
}

func TestOpenAIGenerateSendsWindowAndParsesChoice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("auth header = %q", got)
		}

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-test" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
		}

		var resp chatCompletionResponse
		resp.ID = "cmpl-1"
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{}}
		resp.Choices[0].Message.Content = " Hello! "
		resp.Usage.TotalTokens = 42
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient()
	cand, err := c.GenerateResponse(context.Background(), chatInput(srv.URL))
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if cand.Text != "Hello!" {
		t.Errorf("text = %q, want trimmed response", cand.Text)
	}
	if cand.BackendMessageID != "cmpl-1" || cand.UsageTokens != 42 {
		t.Errorf("candidate = %+v", cand)
	}
}

func TestOpenAIGenerateWithoutTokenIsAuthMissing(t *testing.T) {
	t.Parallel()

	c := NewOpenAIClient()
	input := chatInput("http://unused")
	input.Settings.AuthToken = ""

	_, err := c.GenerateResponse(context.Background(), input)
	if got := KindOf(err); got != KindAuthMissing {
		t.Errorf("kind = %v, want KindAuthMissing", got)
	}
}

func TestOpenAIGenerateClassifiesStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuthMissing},
		{http.StatusForbidden, KindAuthMissing},
		{http.StatusGatewayTimeout, KindTimeout},
		{http.StatusInternalServerError, KindRejected},
		{http.StatusTooManyRequests, KindRejected},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		c := NewOpenAIClient()
		_, err := c.GenerateResponse(context.Background(), chatInput(srv.URL))
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected an error", tt.status)
		}
		if got := KindOf(err); got != tt.want {
			t.Errorf("status %d: kind = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestOpenAIGenerateEmptyChoicesIsRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chatCompletionResponse{})
	}))
	defer srv.Close()

	c := NewOpenAIClient()
	_, err := c.GenerateResponse(context.Background(), chatInput(srv.URL))
	if got := KindOf(err); got != KindRejected {
		t.Errorf("kind = %v, want KindRejected", got)
	}
}

func TestKoboldGenerateFlattensWindowAndTrimsAtSpeakerCue(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req koboldGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt == "" {
			t.Error("expected a flattened prompt")
		}

		var resp koboldGenerateResponse
		resp.Results = []struct {
			Text string `json:"text"`
		}{{Text: " I am here.\nYou: and then"}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewKoboldClient()
	input := chatInput(srv.URL)
	input.Settings.AuthToken = ""

	cand, err := c.GenerateResponse(context.Background(), input)
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if cand.Text != "I am here." {
		t.Errorf("text = %q, want completion trimmed at the speaker cue", cand.Text)
	}
}
