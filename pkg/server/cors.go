package server

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS wraps mux with the configured cross-origin policy (spec §6
// config "api = { host, port, cors_origins }").
func WithCORS(mux http.Handler, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}
