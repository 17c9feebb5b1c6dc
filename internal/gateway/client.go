package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client implements Messenger over the platform's REST API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a platform REST client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
	}
}

type endpointResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

type messageResponse struct {
	ID string `json:"id"`
}

// CreateEndpoint provisions a webhook-style delivery endpoint in a channel.
func (c *Client) CreateEndpoint(ctx context.Context, channelID, name, avatarURL string) (Endpoint, error) {
	body := map[string]string{"name": name}
	if avatarURL != "" {
		body["avatar_url"] = avatarURL
	}

	var resp endpointResponse
	path := fmt.Sprintf("/channels/%s/webhooks", url.PathEscape(channelID))
	if err := c.do(ctx, http.MethodPost, path, true, body, &resp); err != nil {
		return Endpoint{}, fmt.Errorf("create endpoint: %w", err)
	}
	return Endpoint{ID: resp.ID, Secret: resp.Token}, nil
}

// SendMessage delivers text through a persona endpoint.
func (c *Client) SendMessage(ctx context.Context, ep Endpoint, text string) (string, error) {
	var resp messageResponse
	path := fmt.Sprintf("/webhooks/%s/%s?wait=true", url.PathEscape(ep.ID), url.PathEscape(ep.Secret))
	if err := c.do(ctx, http.MethodPost, path, false, map[string]string{"content": text}, &resp); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// ModifyMessage replaces the text of a delivered message.
func (c *Client) ModifyMessage(ctx context.Context, ep Endpoint, messageID, text string) error {
	path := fmt.Sprintf("/webhooks/%s/%s/messages/%s",
		url.PathEscape(ep.ID), url.PathEscape(ep.Secret), url.PathEscape(messageID))
	if err := c.do(ctx, http.MethodPatch, path, false, map[string]string{"content": text}, nil); err != nil {
		return fmt.Errorf("modify message: %w", err)
	}
	return nil
}

// DeleteEndpoint removes a delivery endpoint.
func (c *Client) DeleteEndpoint(ctx context.Context, ep Endpoint) error {
	path := fmt.Sprintf("/webhooks/%s/%s", url.PathEscape(ep.ID), url.PathEscape(ep.Secret))
	if err := c.do(ctx, http.MethodDelete, path, false, nil, nil); err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	return nil
}

// SendChannelMessage posts a plain service message.
func (c *Client) SendChannelMessage(ctx context.Context, channelID, text string) (string, error) {
	var resp messageResponse
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	if err := c.do(ctx, http.MethodPost, path, true, map[string]string{"content": text}, &resp); err != nil {
		return "", fmt.Errorf("send channel message: %w", err)
	}
	return resp.ID, nil
}

// ModifyChannelMessage edits a plain service message.
func (c *Client) ModifyChannelMessage(ctx context.Context, channelID, messageID, text string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	if err := c.do(ctx, http.MethodPatch, path, true, map[string]string{"content": text}, nil); err != nil {
		return fmt.Errorf("modify channel message: %w", err)
	}
	return nil
}

// AddReaction attaches a reaction to a message.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions/%s/@me",
		url.PathEscape(channelID), url.PathEscape(messageID), url.PathEscape(emoji))
	if err := c.do(ctx, http.MethodPut, path, true, nil, nil); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// RemoveReactions strips all reactions from a message.
func (c *Client) RemoveReactions(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions",
		url.PathEscape(channelID), url.PathEscape(messageID))
	if err := c.do(ctx, http.MethodDelete, path, true, nil, nil); err != nil {
		return fmt.Errorf("remove reactions: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, authed bool, reqBody, respBody any) error {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("round trip: %w", err)
	}
	defer resp.Body.Close()

	// Only a missing webhook endpoint means the persona's delivery route is
	// gone; a 404 on a channel path is an ordinary platform error.
	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/webhooks/") {
		return ErrEndpointGone
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("platform returned status %d: %s", resp.StatusCode, body)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
