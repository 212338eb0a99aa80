package controller

import (
	"context"
	"net/http"
	"time"

	"minewatch-server/internal/modules/sensors/alert"
	"minewatch-server/internal/modules/sensors/service"
	"minewatch-server/internal/modules/sensors/store"
)

type SensorController interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Submitter is the part of the submission service the handlers use.
type Submitter interface {
	Submit(ctx context.Context, sub service.Submission) (service.Outcome, error)
}

type sensorControllerImpl struct {
	service  Submitter
	store    store.ReadingStore
	attempts alert.AttemptRepository
	classes  []string
	now      func() time.Time
}

// NewSensorController wires the dashboard and API handlers. attempts may be nil,
// in which case the alert log endpoint returns an empty list.
func NewSensorController(svc Submitter, st store.ReadingStore, attempts alert.AttemptRepository, classes []string) SensorController {
	return &sensorControllerImpl{
		service:  svc,
		store:    st,
		attempts: attempts,
		classes:  classes,
		now:      time.Now,
	}
}

func (c *sensorControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", c.handleDashboard)
	mux.HandleFunc("POST /predict", c.handlePredict)
	mux.HandleFunc("GET /partials/status", c.handleStatusPartial)
	mux.HandleFunc("GET /partials/forecast", c.handleForecastPartial)
	mux.HandleFunc("GET /partials/map", c.handleMapPartial)
	mux.HandleFunc("GET /export.xlsx", c.handleExport)

	mux.HandleFunc("GET /api/v1/sites", c.handleSites)
	mux.HandleFunc("GET /api/v1/readings", c.handleReadings)
	mux.HandleFunc("POST /api/v1/readings", c.handleCreateReading)
	mux.HandleFunc("GET /api/v1/markers", c.handleMarkers)
	mux.HandleFunc("GET /api/v1/alerts", c.handleAlerts)
	mux.HandleFunc("GET /api/v1/classes", c.handleClasses)
}
