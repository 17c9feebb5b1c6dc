package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/charcord/internal/domain"
)

// RemoteClient talks to the legacy stateful backend. Conversation history
// lives on the remote side; each call carries only the new utterance, the
// opaque chat handle, and a parent-message pointer that lets the server
// branch for regeneration.
type RemoteClient struct {
	client   *http.Client
	endpoint string
	token    string
}

// NewRemoteClient creates an adapter for the stateful remote backend.
func NewRemoteClient(endpoint, token string) *RemoteClient {
	return &RemoteClient{
		client:   &http.Client{Timeout: 90 * time.Second},
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
	}
}

type remoteMessageRequest struct {
	Text            string `json:"text"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
}

type remoteMessage struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

type remoteChatResponse struct {
	ChatID   string        `json:"chat_id"`
	Greeting remoteMessage `json:"greeting"`
}

type remoteSearchResponse struct {
	Characters []domain.CharacterCard `json:"characters"`
}

func (c *RemoteClient) headers() map[string]string {
	return map[string]string{"Authorization": "Token " + c.token}
}

// GenerateResponse sends one utterance into an existing remote conversation.
// Regeneration reuses the previous parent pointer so the server branches
// instead of extending.
func (c *RemoteClient) GenerateResponse(ctx context.Context, input Input) (*Candidate, error) {
	if c.token == "" {
		return nil, newError(domain.BackendRemote, KindAuthMissing, "no remote access token configured", nil)
	}
	if input.ChatID == "" {
		return nil, newError(domain.BackendRemote, KindRejected, "persona has no remote conversation handle", nil)
	}

	req := remoteMessageRequest{Text: input.Text, ParentMessageID: input.ParentID}
	url := fmt.Sprintf("%s/chats/%s/messages", c.endpoint, url.PathEscape(input.ChatID))

	var resp remoteMessage
	if err := doJSON(ctx, c.client, domain.BackendRemote, http.MethodPost, url, c.headers(), req, &resp); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" && resp.ImageURL == "" {
		return nil, newError(domain.BackendRemote, KindRejected, "response contained no content", nil)
	}

	return &Candidate{
		Text:             text,
		ImageURL:         resp.ImageURL,
		BackendMessageID: resp.ID,
	}, nil
}

// StartNewConversation creates a fresh server-side chat for the character and
// returns its handle plus the character's greeting.
func (c *RemoteClient) StartNewConversation(ctx context.Context, characterID string, settings domain.GenerationSettings) (*Conversation, error) {
	if c.token == "" {
		return nil, newError(domain.BackendRemote, KindAuthMissing, "no remote access token configured", nil)
	}

	url := fmt.Sprintf("%s/characters/%s/chats", c.endpoint, url.PathEscape(characterID))

	var resp remoteChatResponse
	if err := doJSON(ctx, c.client, domain.BackendRemote, http.MethodPost, url, c.headers(), struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.ChatID == "" {
		return nil, newError(domain.BackendRemote, KindRejected, "chat creation returned no handle", nil)
	}

	conv := &Conversation{ChatID: resp.ChatID}
	if resp.Greeting.Text != "" || resp.Greeting.ImageURL != "" {
		conv.Greeting = &Candidate{
			Text:             strings.TrimSpace(resp.Greeting.Text),
			ImageURL:         resp.Greeting.ImageURL,
			BackendMessageID: resp.Greeting.ID,
		}
	}
	return conv, nil
}

// SearchCharacters queries the remote character directory.
func (c *RemoteClient) SearchCharacters(ctx context.Context, query string) ([]domain.CharacterCard, error) {
	if c.token == "" {
		return nil, newError(domain.BackendRemote, KindAuthMissing, "no remote access token configured", nil)
	}

	searchURL := fmt.Sprintf("%s/characters/search?q=%s", c.endpoint, url.QueryEscape(query))

	var resp remoteSearchResponse
	if err := doJSON(ctx, c.client, domain.BackendRemote, http.MethodGet, searchURL, c.headers(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Characters, nil
}
