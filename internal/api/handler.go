// Package api provides the internal ops HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/charcord/internal/gateway"
	"github.com/ashureev/charcord/internal/store"
)

// Handler serves introspection and admin endpoints backed by the repository.
type Handler struct {
	repo      store.Repository
	messenger gateway.Messenger
}

// NewHandler creates a Handler with common dependencies.
func NewHandler(repo store.Repository, messenger gateway.Messenger) *Handler {
	return &Handler{repo: repo, messenger: messenger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the ops endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/personas", h.listPersonas)
	r.Delete("/api/personas/{id}", h.deletePersona)
	r.Get("/api/bans", h.listBans)
	r.Delete("/api/bans/{userID}", h.deleteBan)
}

type personaSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	GuildID     string `json:"guild_id"`
	ChannelID   string `json:"channel_id"`
	CallTrigger string `json:"call_trigger"`
	Backend     string `json:"backend"`
	CreatedAt   string `json:"created_at"`
}

func (h *Handler) listPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := h.repo.ListPersonas(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list personas")
		return
	}

	out := make([]personaSummary, 0, len(personas))
	for _, p := range personas {
		out = append(out, personaSummary{
			ID:          p.ID,
			Name:        p.Name,
			GuildID:     p.GuildID,
			ChannelID:   p.ChannelID,
			CallTrigger: p.CallTrigger,
			Backend:     string(p.Backend),
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		})
	}
	JSON(w, http.StatusOK, out)
}

func (h *Handler) deletePersona(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		Error(w, http.StatusBadRequest, "missing persona id")
		return
	}

	persona, err := h.repo.GetPersona(r.Context(), id)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to look up persona")
		return
	}
	if persona == nil {
		Error(w, http.StatusNotFound, "no such persona")
		return
	}

	ep := gateway.Endpoint{ID: persona.EndpointID, Secret: persona.EndpointSecret}
	if err := h.messenger.DeleteEndpoint(r.Context(), ep); err != nil && !errors.Is(err, gateway.ErrEndpointGone) {
		slog.Warn("Failed to delete persona endpoint", "persona_id", id, "error", err)
	}

	if err := h.repo.DeletePersona(r.Context(), id); err != nil {
		Error(w, http.StatusInternalServerError, "failed to delete persona")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

type banRecord struct {
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) listBans(w http.ResponseWriter, r *http.Request) {
	bans, err := h.repo.ListBans(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list bans")
		return
	}

	out := make([]banRecord, 0, len(bans))
	for _, b := range bans {
		out = append(out, banRecord{
			UserID:    b.UserID,
			Reason:    b.Reason,
			ExpiresAt: b.ExpiresAt.Format(time.RFC3339),
			CreatedAt: b.CreatedAt.Format(time.RFC3339),
		})
	}
	JSON(w, http.StatusOK, out)
}

func (h *Handler) deleteBan(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		Error(w, http.StatusBadRequest, "missing user id")
		return
	}

	ban, err := h.repo.GetBan(r.Context(), userID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to look up ban")
		return
	}
	if ban == nil {
		Error(w, http.StatusNotFound, "no ban for user")
		return
	}

	if err := h.repo.DeleteBan(r.Context(), userID); err != nil {
		Error(w, http.StatusInternalServerError, "failed to delete ban")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted", "user_id": userID})
}
