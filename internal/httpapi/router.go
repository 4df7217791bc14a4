// internal/httpapi/router.go
// Package httpapi composes the domain handlers into the public HTTP surface.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"lostfound/internal/actionlog"
	"lostfound/internal/claims"
	"lostfound/internal/items"
	"lostfound/internal/matching"
	"lostfound/internal/platform/httpx"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the services exposed over HTTP.
type Deps struct {
	Items     items.Service
	Matching  matching.Service
	Claims    claims.Service
	Resolver  claims.Resolver
	ActionLog *actionlog.Store
	Health    Pinger
	Limiter   *ActorLimiter
	Logger    zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(d.Logger))

	r.Get("/healthz", healthz(d.Health))

	items.NewHandler(d.Items).Routes(r)
	matching.NewHandler(d.Matching).Routes(r)

	var submit []func(http.Handler) http.Handler
	if d.Limiter != nil {
		submit = append(submit, d.Limiter.Middleware)
	}
	claims.NewHandler(d.Claims, d.Resolver).Routes(r, submit...)
	actionlog.NewHandler(d.ActionLog).Routes(r)

	return r
}

func healthz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.PingContext(ctx); err != nil {
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
