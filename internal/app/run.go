package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"minewatch-server/internal/config"
	db "minewatch-server/internal/db"
	httpapi "minewatch-server/internal/httpapi"
	"minewatch-server/internal/metrics"
	"minewatch-server/internal/migrate"
	sensors "minewatch-server/internal/modules/sensors"
	"minewatch-server/internal/modules/sensors/alert"
	"minewatch-server/internal/modules/sensors/classifier"
	"minewatch-server/internal/modules/sensors/store"
	sensorviews "minewatch-server/internal/modules/sensors/views"
	"minewatch-server/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"dataCSVPath", cfg.DataCSVPath,
		"modelPath", cfg.ModelPath,
		"encoderPath", cfg.EncoderPath,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"smtpHost", cfg.SMTPHost,
		"smtpPort", cfg.SMTPPort,
		"mailEnabled", cfg.MailEnabled(),
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)

	model, err := classifier.Load(cfg.ModelPath, cfg.EncoderPath)
	if err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}
	slog.Info("classifier loaded", "classes", model.Classes())

	if err := sensorviews.LoadTemplates(); err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.DataCSVPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	readings := store.New(cfg.DataCSVPath)
	if err := readings.Ensure(); err != nil {
		return fmt.Errorf("sensor store: %w", err)
	}

	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(dbConn); err != nil {
		return err
	}
	slog.Info("database connection successful")

	var sender alert.Sender
	if cfg.MailEnabled() {
		sender, err = alert.NewSMTPSender(alert.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.SMTPTimeout,
		})
		if err != nil {
			return fmt.Errorf("smtp sender: %w", err)
		}
	} else {
		slog.Warn("alert mail not configured; dangerous readings will be logged as failed alerts")
	}

	m := metrics.New()

	// The handler must be attached before Connect: the broker may deliver
	// queued QoS 1 messages right after CONNACK.
	var subscriber *mqtt.Subscriber
	var mqttHealth httpapi.ConnectionChecker
	if cfg.MQTTEnabled() {
		subscriber, err = mqtt.NewSubscriber(cfg, slog.Default().With("component", "mqtt"))
		if err != nil {
			return err
		}
		mqttHealth = subscriber
	}

	mux := httpapi.NewMux(dbConn, readings, cfg.StaticDir, m, mqttHealth)
	feature := sensors.Feature{
		Config:     cfg,
		DB:         dbConn,
		Store:      readings,
		Classifier: model,
		Sender:     sender,
		Metrics:    m,
		Logger:     slog.Default(),
	}
	if subscriber != nil {
		feature.Subscriber = subscriber
	}
	sensors.RegisterFeature(mux, feature)

	if subscriber != nil {
		// A short timeout keeps startup responsive when the broker is down;
		// the subscriber keeps connecting in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt not connected at startup (http continues)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		slog.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
