package service

import (
	"context"
	"time"

	"minewatch-server/internal/mqtt"
	"minewatch-server/internal/telemetry"
)

// handlerTimeout bounds one telemetry submission, alert email included.
const handlerTimeout = 60 * time.Second

// Register routes validated telemetry into Submit.
func (s *Service) Register(subscriber mqtt.MQTTSubscriber) {
	subscriber.SetMessageHandler(s.handleTelemetry)
}

func (s *Service) handleTelemetry(t telemetry.Telemetry) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	sub := Submission{Site: t.Site, Values: t.Values(), Source: SourceMQTT}
	if t.Timestamp != nil {
		sub.Time = *t.Timestamp
	}
	out, err := s.Submit(ctx, sub)
	if err != nil {
		return err
	}
	if out.Alert != nil && !out.Alert.OK {
		s.logger.Warn("telemetry alert not delivered", "site", t.Site, "message", out.Alert.Message)
	}
	return nil
}
