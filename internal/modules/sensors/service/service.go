// Package service runs the submission pipeline shared by the dashboard form
// and MQTT telemetry: classify, stamp, store, and alert on danger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"minewatch-server/internal/metrics"
	"minewatch-server/internal/modules/sensors/alert"
	"minewatch-server/internal/modules/sensors/sites"
	"minewatch-server/internal/modules/sensors/status"
	"minewatch-server/internal/modules/sensors/store"
	"minewatch-server/internal/modules/sensors/types"
)

var (
	ErrUnknownSite   = errors.New("unknown site")
	ErrInvalidValues = errors.New("invalid sensor values")
)

// Ingest sources, used as the metrics label.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

type Classifier interface {
	Predict(v types.Values) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, a alert.Alert) alert.Result
}

type Submission struct {
	Site   string
	Values types.Values
	Source string
	// Time zero means now.
	Time time.Time
}

type Outcome struct {
	Reading   types.Reading `json:"reading"`
	Dangerous bool          `json:"dangerous"`
	// Alert is set only when an alert was attempted.
	Alert *alert.Result `json:"alert,omitempty"`
}

type Service struct {
	classifier Classifier
	store      store.ReadingStore
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(c Classifier, s store.ReadingStore, n Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		classifier: c,
		store:      s,
		notifier:   n,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the reading clock; tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Submit stores one classified reading. A dangerous reading triggers exactly
// one alert attempt, after the row is stored; its failure is reported in the
// Outcome, not as an error.
func (s *Service) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	if _, ok := sites.Lookup(sub.Site); !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownSite, sub.Site)
	}
	if err := sub.Values.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidValues, err)
	}

	start := time.Now()
	label, err := s.classifier.Predict(sub.Values)
	s.metrics.ObserveClassify(time.Since(start))
	if err != nil {
		return Outcome{}, fmt.Errorf("classify: %w", err)
	}

	ts := sub.Time
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.In(time.Local).Truncate(time.Second)
	r := types.Reading{
		Time:         ts,
		RawTimestamp: ts.Format(types.TimeLayout),
		Site:         sub.Site,
		Values:       sub.Values,
		Status:       label,
	}
	if err := s.store.Append(r); err != nil {
		return Outcome{}, fmt.Errorf("store reading: %w", err)
	}
	s.metrics.ObserveReading(sub.Source, label)
	s.logger.Info("reading stored", "site", r.Site, "status", label, "source", sub.Source)

	out := Outcome{Reading: r, Dangerous: status.IsDangerous(label)}
	if out.Dangerous {
		res := s.notifier.Notify(ctx, alert.Alert{Site: r.Site, Time: r.Time, Values: r.Values})
		out.Alert = &res
	}
	return out, nil
}
