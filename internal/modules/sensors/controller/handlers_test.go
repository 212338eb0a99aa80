package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"minewatch-server/internal/modules/sensors/alert"
	"minewatch-server/internal/modules/sensors/service"
	"minewatch-server/internal/modules/sensors/types"
	"minewatch-server/internal/modules/sensors/views"
)

type mockStore struct {
	rows    []types.Reading
	loadErr error
}

func (m *mockStore) Append(r types.Reading) error {
	m.rows = append(m.rows, r)
	return nil
}

func (m *mockStore) LoadAll() ([]types.Reading, error) {
	return m.rows, m.loadErr
}

func (m *mockStore) LoadSite(site string) ([]types.Reading, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var out []types.Reading
	for _, r := range m.rows {
		if r.Site == site {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) LatestBySite() (map[string]types.Reading, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := map[string]types.Reading{}
	for _, r := range m.rows {
		out[r.Site] = r
	}
	return out, nil
}

func (m *mockStore) Ensure() error { return nil }

type mockSubmitter struct {
	got []service.Submission
	out service.Outcome
	err error
}

func (m *mockSubmitter) Submit(_ context.Context, sub service.Submission) (service.Outcome, error) {
	m.got = append(m.got, sub)
	return m.out, m.err
}

type mockAttempts struct {
	list []alert.Attempt
	err  error
}

func (m *mockAttempts) InsertAttempt(context.Context, alert.Attempt) error { return nil }

func (m *mockAttempts) ListAttempts(_ context.Context, limit int) ([]alert.Attempt, error) {
	return m.list, m.err
}

var baseTime = time.Date(2025, 6, 10, 8, 0, 0, 0, time.Local)

func rowsFor(site string, n int) []types.Reading {
	out := make([]types.Reading, n)
	for i := range out {
		ts := baseTime.Add(time.Duration(i) * time.Hour)
		out[i] = types.Reading{
			Time:         ts,
			RawTimestamp: ts.Format(types.TimeLayout),
			Site:         site,
			Values:       types.Values{Vibration: 0.4, Temperature: 30 + i, Pressure: 1.1, Humidity: 40},
			Status:       "Aman",
		}
	}
	return out
}

func loadTemplates(t *testing.T) {
	t.Helper()
	if err := views.LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates(): %v", err)
	}
}

func newTestController(st *mockStore, sub *mockSubmitter, attempts alert.AttemptRepository) *sensorControllerImpl {
	ctrl := NewSensorController(sub, st, attempts, []string{"Aman", "Bahaya", "Perlu Perhatian"}).(*sensorControllerImpl)
	ctrl.now = func() time.Time { return baseTime }
	return ctrl
}

func Test_handleDashboard(t *testing.T) {
	t.Run("returns 404 when path is not /", func(t *testing.T) {
		ctrl := newTestController(&mockStore{}, &mockSubmitter{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		rec := httptest.NewRecorder()

		ctrl.handleDashboard(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("returns 500 when the store fails", func(t *testing.T) {
		ctrl := newTestController(&mockStore{loadErr: errors.New("disk gone")}, &mockSubmitter{}, nil)
		rec := httptest.NewRecorder()

		ctrl.handleDashboard(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		if !strings.Contains(rec.Body.String(), "failed to load readings") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("renders the selected site", func(t *testing.T) {
		loadTemplates(t)
		ctrl := newTestController(&mockStore{rows: rowsFor("DOZ", 6)}, &mockSubmitter{}, nil)
		rec := httptest.NewRecorder()

		ctrl.handleDashboard(rec, httptest.NewRequest(http.MethodGet, "/?lokasi=DOZ&sensor=suhu", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("Content-Type = %q; want text/html", ct)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "<strong>Lokasi:</strong> DOZ") {
			t.Errorf("status panel not showing DOZ")
		}
		if !strings.Contains(body, `value="suhu" selected`) {
			t.Errorf("selected channel not kept")
		}
	})
}

func Test_handlePredict(t *testing.T) {
	loadTemplates(t)

	t.Run("dangerous reading shows bell and alert result", func(t *testing.T) {
		sub := &mockSubmitter{out: service.Outcome{
			Reading:   types.Reading{Site: "DMLZ", Status: "Bahaya"},
			Dangerous: true,
			Alert:     &alert.Result{OK: false, Message: "Gagal mengirim email: dial tcp: timeout"},
		}}
		ctrl := newTestController(&mockStore{}, sub, nil)
		form := url.Values{"lokasi": {"DMLZ"}, "getaran": {"1.8"}, "suhu": {"90"}, "tekanan": {"4.5"}, "kelembapan": {"95"}}
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()

		ctrl.handlePredict(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if len(sub.got) != 1 {
			t.Fatalf("Submit called %d times; want 1", len(sub.got))
		}
		got := sub.got[0]
		want := types.Values{Vibration: 1.8, Temperature: 90, Pressure: 4.5, Humidity: 95}
		if got.Site != "DMLZ" || got.Values != want || got.Source != service.SourceHTTP {
			t.Errorf("submission = %+v", got)
		}
		body := rec.Body.String()
		for _, s := range []string{"Prediksi: <strong>Bahaya</strong>", "<audio autoplay>", "Gagal mengirim email: dial tcp: timeout"} {
			if !strings.Contains(body, s) {
				t.Errorf("body missing %q", s)
			}
		}
	})

	t.Run("submit failure shows an error flash", func(t *testing.T) {
		sub := &mockSubmitter{err: errors.New("store reading: read-only file system")}
		ctrl := newTestController(&mockStore{}, sub, nil)
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("lokasi=DOZ"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()

		ctrl.handlePredict(rec, req)

		body := rec.Body.String()
		if !strings.Contains(body, "Gagal memproses data") {
			t.Errorf("error flash missing; body = %q", body)
		}
		if strings.Contains(body, "<audio") {
			t.Error("bell rendered for a failed submission")
		}
	})
}

func Test_partials(t *testing.T) {
	loadTemplates(t)
	ctrl := newTestController(&mockStore{rows: rowsFor("DOZ", 6)}, &mockSubmitter{}, nil)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		target  string
		want    string
	}{
		{"status", ctrl.handleStatusPartial, "/partials/status?lokasi=DOZ", `id="status-panel"`},
		{"forecast", ctrl.handleForecastPartial, "/partials/forecast?lokasi=DOZ&sensor=tekanan", `id="forecast-panel"`},
		{"map", ctrl.handleMapPartial, "/partials/map", `id="map-panel"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
			if strings.Contains(rec.Body.String(), "<!DOCTYPE html>") {
				t.Error("partial rendered the full page")
			}
		})
	}
}

func Test_handleReadings(t *testing.T) {
	rows := append(rowsFor("DOZ", 5), rowsFor("DMLZ", 2)...)
	ctrl := newTestController(&mockStore{rows: rows}, &mockSubmitter{}, nil)

	t.Run("keeps the newest limit rows of a site", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ctrl.handleReadings(rec, httptest.NewRequest(http.MethodGet, "/api/v1/readings?site=DOZ&limit=2", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got []types.Reading
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 2 || got[1].Temperature != 34 {
			t.Errorf("got %+v; want the last two DOZ rows", got)
		}
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ctrl.handleReadings(rec, httptest.NewRequest(http.MethodGet, "/api/v1/readings?site=KPC+%28Kaltim%29", nil))
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Errorf("body = %q; want []", body)
		}
	})

	for _, target := range []string{"/api/v1/readings?site=Atlantis", "/api/v1/readings?limit=0", "/api/v1/readings?limit=x"} {
		t.Run("bad request "+target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ctrl.handleReadings(rec, httptest.NewRequest(http.MethodGet, target, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func Test_handleCreateReading(t *testing.T) {
	valid := `{"site":"DOZ","vibration_g":0.5,"temperature_c":35,"pressure_bar":1.2,"humidity_pct":45}`

	t.Run("stores and returns the outcome", func(t *testing.T) {
		sub := &mockSubmitter{out: service.Outcome{Reading: types.Reading{Site: "DOZ", Status: "Aman"}}}
		ctrl := newTestController(&mockStore{}, sub, nil)
		rec := httptest.NewRecorder()

		ctrl.handleCreateReading(rec, httptest.NewRequest(http.MethodPost, "/api/v1/readings", strings.NewReader(valid)))

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusCreated)
		}
		if len(sub.got) != 1 || sub.got[0].Values.Temperature != 35 || !sub.got[0].Time.IsZero() {
			t.Errorf("submission = %+v", sub.got)
		}
		if !strings.Contains(rec.Body.String(), `"status":"Aman"`) {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest},
		{"missing value", `{"site":"DOZ","vibration_g":0.5}`, nil, http.StatusBadRequest},
		{"unknown site", valid, fmt.Errorf("%w: %q", service.ErrUnknownSite, "DOZ"), http.StatusBadRequest},
		{"store failure", valid, errors.New("store reading: disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newTestController(&mockStore{}, &mockSubmitter{err: tt.err}, nil)
			rec := httptest.NewRecorder()
			ctrl.handleCreateReading(rec, httptest.NewRequest(http.MethodPost, "/api/v1/readings", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d; want %d", rec.Code, tt.want)
			}
		})
	}
}

func Test_handleAlerts(t *testing.T) {
	t.Run("no audit log", func(t *testing.T) {
		ctrl := newTestController(&mockStore{}, &mockSubmitter{}, nil)
		rec := httptest.NewRecorder()
		ctrl.handleAlerts(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Errorf("body = %q; want []", body)
		}
	})

	t.Run("lists attempts", func(t *testing.T) {
		repo := &mockAttempts{list: []alert.Attempt{{ID: "a1", Site: "DMLZ", OK: true}}}
		ctrl := newTestController(&mockStore{}, &mockSubmitter{}, repo)
		rec := httptest.NewRecorder()
		ctrl.handleAlerts(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?limit=5", nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"a1"`) {
			t.Errorf("status = %d body = %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("repository error", func(t *testing.T) {
		ctrl := newTestController(&mockStore{}, &mockSubmitter{}, &mockAttempts{err: errors.New("locked")})
		rec := httptest.NewRecorder()
		ctrl.handleAlerts(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}

func Test_handleExport(t *testing.T) {
	ctrl := newTestController(&mockStore{rows: rowsFor("Batu Hijau (NTB)", 3)}, &mockSubmitter{}, nil)

	t.Run("missing site", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ctrl.handleExport(rec, httptest.NewRequest(http.MethodGet, "/export.xlsx", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("workbook download", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ctrl.handleExport(rec, httptest.NewRequest(http.MethodGet, "/export.xlsx?site=Batu+Hijau+%28NTB%29", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %q", rec.Code, rec.Body.String())
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "riwayat-batu-hijau-ntb.xlsx") {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
			t.Error("body is not a zip container")
		}
	})
}

func TestRegisterRoutes(t *testing.T) {
	ctrl := newTestController(&mockStore{rows: rowsFor("DOZ", 1)}, &mockSubmitter{}, nil)
	mux := http.NewServeMux()
	ctrl.RegisterRoutes(mux)

	tests := []struct {
		method, target string
		want           int
		contains       string
	}{
		{http.MethodGet, "/api/v1/sites", http.StatusOK, `"name":"Adaro (Kalsel)"`},
		{http.MethodGet, "/api/v1/markers", http.StatusOK, `"color":"green"`},
		{http.MethodGet, "/api/v1/classes", http.StatusOK, `"Perlu Perhatian"`},
		{http.MethodGet, "/predict", http.StatusNotFound, ""},
		{http.MethodPost, "/", http.StatusMethodNotAllowed, ""},
		{http.MethodDelete, "/api/v1/readings", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d; want %d", rec.Code, tt.want)
			}
			if tt.contains != "" && !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body missing %q; got %q", tt.contains, rec.Body.String())
			}
		})
	}
}
