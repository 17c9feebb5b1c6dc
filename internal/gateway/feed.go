package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Feed reads platform events off the gateway socket and dispatches each one
// as an independent unit of work.
type Feed struct {
	socketURL string
	token     string
	handler   Handler
}

// NewFeed creates an event feed dialing the given socket URL.
func NewFeed(socketURL, token string, handler Handler) *Feed {
	return &Feed{socketURL: socketURL, token: token, handler: handler}
}

// feedFrame is the envelope the platform sends per event.
type feedFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Run connects and reads events until the context is canceled, redialing
// with backoff after connection loss.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := f.readLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Gateway connection lost, reconnecting", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *Feed) readLoop(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bot "+f.token)

	conn, _, err := websocket.Dial(ctx, f.socketURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "shutting down"); closeErr != nil {
			slog.Debug("Failed to close gateway socket", "error", closeErr)
		}
	}()
	// Inbound events can be large during bursts.
	conn.SetReadLimit(1 << 20)

	slog.Info("Gateway connected", "url", f.socketURL)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}

		var frame feedFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("Undecodable gateway frame", "error", err)
			continue
		}

		// Each event is its own concurrent unit of work; no ordering is
		// guaranteed across events.
		go f.dispatch(ctx, frame)
	}
}

func (f *Feed) dispatch(ctx context.Context, frame feedFrame) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked", "type", frame.Type, "panic", r)
		}
	}()

	switch frame.Type {
	case "message":
		var ev MessageEvent
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			slog.Warn("Undecodable message event", "error", err)
			return
		}
		f.handler.HandleMessage(ctx, ev)
	case "reaction":
		var ev ReactionEvent
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			slog.Warn("Undecodable reaction event", "error", err)
			return
		}
		f.handler.HandleReaction(ctx, ev)
	case "button":
		var ev ButtonEvent
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			slog.Warn("Undecodable button event", "error", err)
			return
		}
		f.handler.HandleButton(ctx, ev)
	case "modal":
		var ev ModalEvent
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			slog.Warn("Undecodable modal event", "error", err)
			return
		}
		f.handler.HandleModal(ctx, ev)
	default:
		slog.Debug("Ignoring gateway frame", "type", frame.Type)
	}
}
