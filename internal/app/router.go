package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Extractor   *auth.Extractor
	AuthHandler *auth.Handler
	ChatHandler *chat.Handler
	WSHandler   http.Handler
}

// NewRouter constructs the chi.Router with Parley defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:    params.Logger,
		Config:    params.Config,
		Extractor: params.Extractor,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	timeout := 30 * time.Second
	if params.Config != nil && params.Config.AppRequestTimeout > 0 {
		timeout = params.Config.AppRequestTimeout
	}
	loginLimit := 10
	if params.Config != nil && params.Config.LoginRateLimit > 0 {
		loginLimit = params.Config.LoginRateLimit
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(chimw.Timeout(timeout))

		api.Route("/auth", func(ar chi.Router) {
			ar.Use(httprate.Limit(loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			params.AuthHandler.MountRoutes(ar)
		})
		api.Route("/rooms", func(cr chi.Router) {
			params.ChatHandler.MountRoutes(cr)
		})
	})

	// The duplex transport: identity is asserted once at the upgrade
	// request and bound for the connection's lifetime.
	r.Handle("/ws", params.WSHandler)

	return r
}
