package sensors

import (
	"database/sql"
	"log/slog"
	"net/http"

	"minewatch-server/internal/config"
	"minewatch-server/internal/metrics"
	"minewatch-server/internal/modules/sensors/alert"
	"minewatch-server/internal/modules/sensors/classifier"
	"minewatch-server/internal/modules/sensors/controller"
	"minewatch-server/internal/modules/sensors/service"
	"minewatch-server/internal/modules/sensors/store"
	"minewatch-server/internal/mqtt"
)

// Feature holds what the sensors module needs from the process.
type Feature struct {
	Config     config.Config
	DB         *sql.DB
	Store      store.ReadingStore
	Classifier *classifier.Classifier
	// Sender nil leaves alerts unconfigured; every attempt is recorded as failed.
	Sender  alert.Sender
	Metrics *metrics.Metrics
	// Subscriber nil disables telemetry ingest.
	Subscriber mqtt.MQTTSubscriber
	Logger     *slog.Logger
}

func RegisterFeature(mux *http.ServeMux, f Feature) *service.Service {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var attempts alert.AttemptRepository
	if f.DB != nil {
		attempts = alert.NewAttemptRepository(f.DB)
	}
	opts := []alert.Option{alert.WithMetrics(f.Metrics), alert.WithLogger(logger)}
	if attempts != nil {
		opts = append(opts, alert.WithAttempts(attempts))
	}
	notifier := alert.NewNotifier(f.Sender, f.Config.AlertFrom, alert.SplitRecipients(f.Config.AlertTo), opts...)

	svc := service.NewService(f.Classifier, f.Store, notifier, f.Metrics, logger)
	if f.Subscriber != nil {
		svc.Register(f.Subscriber)
	}

	sensorController := controller.NewSensorController(svc, f.Store, attempts, f.Classifier.Classes())
	sensorController.RegisterRoutes(mux)
	return svc
}
