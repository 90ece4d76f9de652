// Package ws implements the persistent duplex transport: one authenticated
// websocket connection per client, carrying room subscriptions and message
// submissions, with fan-out delivered from the broker's room topics.
package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/platform/broker"
	"github.com/parley-chat/parley/internal/shared"
)

// Handler upgrades HTTP requests to websocket connections.
type Handler struct {
	logger   *slog.Logger
	extract  *auth.Extractor
	rooms    *chat.RoomService
	messages *chat.MessageService
	broker   broker.Broker
	upgrader websocket.Upgrader
}

// NewHandler constructs a websocket Handler.
func NewHandler(logger *slog.Logger, extract *auth.Extractor, rooms *chat.RoomService, messages *chat.MessageService, b broker.Broker) *Handler {
	return &Handler{
		logger:   logger,
		extract:  extract,
		rooms:    rooms,
		messages: messages,
		broker:   b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates the connection-open request exactly once and
// binds the resulting principal to the connection for its whole lifetime.
// Subsequent frames on the connection are never re-authenticated. A missing
// or invalid token does not close the socket; the connection proceeds
// anonymously and privileged operations are rejected frame by frame.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal := h.extract.Authenticate(r.Header.Get(auth.HeaderName))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = shared.ContextWithPrincipal(ctx, principal)

	client := newClient(ctx, cancel, conn, principal, h)
	if principal != nil {
		h.logger.Info("websocket connected", slog.String("subject", principal.Subject))
	} else {
		h.logger.Info("websocket connected anonymously")
	}

	go client.writePump()
	client.readPump()
}
