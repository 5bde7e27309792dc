// Package handlers contains the HTTP endpoints that sit next to the
// WebSocket surface.
package handlers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"igo/pkg/logger"
)

// Launcher starts an AI client for a player key
type Launcher interface {
	Start(ctx context.Context, playerKey, aiSecret string) error
}

// AIHandler exposes the AI server's start endpoint. The endpoint is
// protected with a double-submit XSRF cookie: GET hands out the cookie,
// POST must echo it in the X-Xsrf-Token header. That keeps browsers from
// being tricked into spawning opponents while requiring no server-side
// token state.
type AIHandler struct {
	launcher Launcher
	log      *logger.ColoredLogger
}

// NewAIHandler creates the handler
func NewAIHandler(launcher Launcher, log *logger.ColoredLogger) *AIHandler {
	return &AIHandler{launcher: launcher, log: log}
}

// HandleStart serves both halves of the start exchange
func (h *AIHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.issueToken(w)
	case http.MethodPost:
		h.start(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AIHandler) issueToken(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "_xsrf",
		Value:    uuid.NewString(),
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusOK)
}

func (h *AIHandler) start(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("_xsrf")
	if err != nil {
		http.Error(w, "missing XSRF cookie", http.StatusForbidden)
		return
	}
	header := r.Header.Get("X-Xsrf-Token")
	if header == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		http.Error(w, "XSRF token mismatch", http.StatusForbidden)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	playerKey := r.PostFormValue("player_key")
	aiSecret := r.PostFormValue("ai_secret")
	if playerKey == "" || aiSecret == "" {
		http.Error(w, "player_key and ai_secret are required", http.StatusBadRequest)
		return
	}

	if err := h.launcher.Start(r.Context(), playerKey, aiSecret); err != nil {
		h.log.Error("Could not start AI client for key %s: %v", playerKey, err)
		http.Error(w, "could not start AI client", http.StatusInternalServerError)
		return
	}

	h.log.Info("Started AI client for key %s", playerKey)
	fmt.Fprintln(w, "ok")
}
