package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minewatch-server/internal/modules/sensors/types"
)

func ptr(f float64) *float64 { return &f }

func valid() Telemetry {
	return Telemetry{Site: "DMLZ", Vibration: ptr(1.8), Temperature: ptr(90), Pressure: ptr(4.5), Humidity: ptr(95)}
}

func TestValidate(t *testing.T) {
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Telemetry){
		"missing site":      func(t *Telemetry) { t.Site = "  " },
		"missing vibration": func(t *Telemetry) { t.Vibration = nil },
		"missing humidity":  func(t *Telemetry) { t.Humidity = nil },
		"vibration high":    func(t *Telemetry) { t.Vibration = ptr(2.5) },
		"temperature low":   func(t *Telemetry) { t.Temperature = ptr(-4) },
		"pressure high":     func(t *Telemetry) { t.Pressure = ptr(6) },
		"humidity high":     func(t *Telemetry) { t.Humidity = ptr(100.5) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			tel := valid()
			mutate(&tel)
			assert.Error(t, tel.Validate())
		})
	}
}

func TestValuesRoundsIntegerChannels(t *testing.T) {
	tel := valid()
	tel.Temperature = ptr(35.6)
	tel.Humidity = ptr(44.4)
	assert.Equal(t, types.Values{Vibration: 1.8, Temperature: 36, Pressure: 4.5, Humidity: 44}, tel.Values())
}

func TestFromValuesJSON(t *testing.T) {
	ts := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	tel := FromValues("DOZ", ts, types.Values{Vibration: 0.5, Temperature: 35, Pressure: 1.2, Humidity: 45})

	raw, err := json.Marshal(tel)
	require.NoError(t, err)
	assert.JSONEq(t, `{"site":"DOZ","timestamp":"2025-06-10T09:00:00Z","vibration_g":0.5,"temperature_c":35,"pressure_bar":1.2,"humidity_pct":45}`, string(raw))

	var back Telemetry
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NoError(t, back.Validate())
	assert.Equal(t, types.Values{Vibration: 0.5, Temperature: 35, Pressure: 1.2, Humidity: 45}, back.Values())

	noTime := FromValues("DOZ", time.Time{}, types.Values{})
	assert.Nil(t, noTime.Timestamp)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "minewatch/sites/batu-hijau-ntb/readings", Topic("Batu Hijau (NTB)"))
	assert.Equal(t, "minewatch/sites/dmlz/readings", Topic("DMLZ"))
	assert.Equal(t, "minewatch/sites/grasberg-open-pit/readings", Topic("Grasberg Open Pit"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "tambang-martabe-sumut", Slug("Tambang Martabe (Sumut)"))
	assert.Equal(t, "kpc-kaltim", Slug("  KPC (Kaltim)"))
	assert.Equal(t, "", Slug("()"))
}
