package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"chat-sync/auth"
	"chat-sync/observability"
)

// Handler upgrades HTTP requests to websocket sessions. The bearer credential
// is resolved before the upgrade; a rejected credential terminates the
// connection attempt with no protocol event processed.
type Handler struct {
	log      *slog.Logger
	router   *Router
	verifier auth.ITokenVerifier
	monitor  *observability.Monitor
	upgrader websocket.Upgrader
}

func NewHandler(log *slog.Logger, router *Router, verifier auth.ITokenVerifier,
	monitor *observability.Monitor) *Handler {
	return &Handler{
		log:      log,
		router:   router,
		verifier: verifier,
		monitor:  monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens, not origins, gate access to this endpoint.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeWS authenticates the handshake, upgrades the connection and starts
// the session pumps.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		h.log.Warn("Handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Authentication error: invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	session := newSession(h.log, conn, h.router, h.monitor, identity)
	h.monitor.IncrConnections()
	h.log.Info("Client connected",
		"user_id", identity.UserID, "username", identity.Username, "remote", r.RemoteAddr)

	go session.writePump()
	// The request context is canceled when this handler returns; the session
	// outlives it, so its work runs under a fresh context.
	go session.readPump(context.Background())
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chat-sync server is running")
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}
