package httpapi

import (
	"net/http"
	"time"

	"minewatch-server/internal/config"
)

// NewServer wraps mux with request logging. WriteTimeout is left unset because
// a form submission may block on the alert email.
func NewServer(cfg config.Config, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
