package httpserver

import (
	"net/http"
	"time"

	"simkyc/internal/platform/config"
)

// New builds the HTTP server. Webhook bodies are small, so the read limits
// stay tight.
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
