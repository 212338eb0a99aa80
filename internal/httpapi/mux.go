package httpapi

import (
	"database/sql"
	"net/http"

	"minewatch-server/internal/metrics"
)

// NewMux registers the process-level routes: health, metrics and static
// assets. mqtt may be nil when telemetry ingest is disabled.
func NewMux(db *sql.DB, store StoreChecker, staticDir string, m *metrics.Metrics, mqtt ConnectionChecker) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, store, mqtt)
	mux.Handle("GET /metrics", m.Handler())
	if staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	return mux
}
