package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"minewatch-server/internal/utils"
)

// StoreChecker is satisfied by the reading store.
type StoreChecker interface {
	Ensure() error
}

// ConnectionChecker reports broker connectivity; it never fails the check.
type ConnectionChecker interface {
	IsConnected() bool
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db    *sql.DB
	store StoreChecker
	mqtt  ConnectionChecker
}

func NewHealthchecker(db *sql.DB, store StoreChecker, mqtt ConnectionChecker) healthchecker {
	return &healthcheckerImpl{db: db, store: store, mqtt: mqtt}
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var ok int
	if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}
	if h.store != nil {
		if err := h.store.Ensure(); err != nil {
			slog.Error("failed to check sensor store", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to check sensor store")
			return
		}
	}

	mqttState := "disabled"
	if h.mqtt != nil {
		mqttState = "disconnected"
		if h.mqtt.IsConnected() {
			mqttState = "connected"
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "mqtt": mqttState})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, store StoreChecker, mqtt ConnectionChecker) {
	healthchecker := NewHealthchecker(db, store, mqtt)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
