package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/sprintpoker/backend/internal/registry"
	"github.com/sprintpoker/backend/internal/ws"
)

type Options struct {
	AllowedOrigins []string
}

func SetupRoutes(reg *registry.Registry, log *zap.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(reg))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(reg, log, ws.Options{OriginPatterns: opts.AllowedOrigins}))

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(r)
}
