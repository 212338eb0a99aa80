package sensors

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minewatch-server/internal/config"
	"minewatch-server/internal/metrics"
	"minewatch-server/internal/migrate"
	"minewatch-server/internal/modules/sensors/alert"
	"minewatch-server/internal/modules/sensors/classifier"
	"minewatch-server/internal/modules/sensors/service"
	"minewatch-server/internal/modules/sensors/store"
	"minewatch-server/internal/telemetry"
)

type fakeSubscriber struct {
	handler func(telemetry.Telemetry) error
}

func (f *fakeSubscriber) SetMessageHandler(h func(telemetry.Telemetry) error) { f.handler = h }

func newFeature(t *testing.T) (Feature, *fakeSubscriber) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrate.Run(db))

	root := filepath.Join("..", "..", "..", "artifacts")
	c, err := classifier.Load(filepath.Join(root, "model_sensor.json"), filepath.Join(root, "label_encoder.json"))
	require.NoError(t, err)

	sub := &fakeSubscriber{}
	return Feature{
		Config:     config.Config{AlertFrom: "ops@example.com", AlertTo: "hse@example.com"},
		DB:         db,
		Store:      store.New(filepath.Join(t.TempDir(), "sensor_data.csv")),
		Classifier: c,
		Metrics:    metrics.New(),
		Subscriber: sub,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, sub
}

func TestRegisterFeature_unconfiguredMailIsAudited(t *testing.T) {
	f, sub := newFeature(t)
	mux := http.NewServeMux()
	svc := RegisterFeature(mux, f)
	require.NotNil(t, svc)
	require.NotNil(t, sub.handler, "telemetry handler not attached")

	body := `{"site":"DMLZ","vibration_g":1.8,"temperature_c":90,"pressure_bar":4.5,"humidity_pct":95}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/readings", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out service.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Dangerous)
	require.NotNil(t, out.Alert)
	assert.False(t, out.Alert.OK)
	assert.Contains(t, out.Alert.Message, alert.ErrNotConfigured.Error())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var attempts []alert.Attempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, "DMLZ", attempts[0].Site)
	assert.False(t, attempts[0].OK)
}

func TestRegisterFeature_withoutDatabase(t *testing.T) {
	f, _ := newFeature(t)
	f.DB = nil
	f.Subscriber = nil
	mux := http.NewServeMux()
	RegisterFeature(mux, f)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/classes", nil))
	assert.Contains(t, rec.Body.String(), "Bahaya")
}
