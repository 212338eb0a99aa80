package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	// DataCSVPath is the flat file holding one row per submitted reading.
	DataCSVPath string
	ModelPath   string
	EncoderPath string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	SQLLog                bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTimeout  time.Duration
	AlertFrom    string
	AlertTo      string

	// MQTTBroker empty disables telemetry ingest.
	MQTTBroker   string
	MQTTPort     int
	MQTTTopic    string
	MQTTClientID string
}

// MailEnabled reports whether enough SMTP settings are present to attempt a send.
func (c Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.AlertFrom != "" && c.AlertTo != ""
}

func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir := env("STATIC_DIR", "static")
	staticDir, err = filepath.Abs(staticDir)
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", staticDir, err)
	}

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}
	sqlLog, err := envBool("SQL_LOG", false)
	if err != nil {
		return Config{}, err
	}

	smtpPort, err := envInt("SMTP_PORT", 465)
	if err != nil {
		return Config{}, err
	}
	if smtpPort <= 0 || smtpPort > 65535 {
		return Config{}, fmt.Errorf("invalid SMTP_PORT %d (must be 1-65535)", smtpPort)
	}
	smtpTimeout, err := envDuration("SMTP_TIMEOUT", 0)
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (must be 1-65535)", mqttPort)
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		HTTPAddr:              env("HTTP_ADDR", ":8080"),
		StaticDir:             staticDir,
		DataCSVPath:           env("DATA_CSV_PATH", "sensor_data.csv"),
		ModelPath:             env("MODEL_PATH", "artifacts/model_sensor.json"),
		EncoderPath:           env("ENCODER_PATH", "artifacts/label_encoder.json"),
		SQLiteDriver:          env("DB_DRIVER", "sqlite3"),
		SQLiteDSN:             env("SQLITE_DSN", ""),
		SQLitePath:            env("SQLITE_PATH", "data/minewatch.db"),
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		SQLLog:                sqlLog,
		SMTPHost:              env("SMTP_HOST", ""),
		SMTPPort:              smtpPort,
		SMTPUsername:          env("SMTP_USERNAME", ""),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		SMTPTimeout:           smtpTimeout,
		AlertFrom:             env("ALERT_FROM", ""),
		AlertTo:               env("ALERT_TO", ""),
		MQTTBroker:            env("MQTT_BROKER", ""),
		MQTTPort:              mqttPort,
		MQTTTopic:             env("MQTT_TOPIC", "minewatch/sites/+/readings"),
		MQTTClientID:          env("MQTT_CLIENT_ID", "minewatch-server-"+uuid.NewString()[:8]),
	}, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
