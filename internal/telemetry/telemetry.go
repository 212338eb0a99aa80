// Package telemetry defines the reading payload exchanged over MQTT.
package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"minewatch-server/internal/modules/sensors/types"
)

// TopicPrefix is the root under which every site publishes.
const TopicPrefix = "minewatch/sites"

// DefaultTopic subscribes to every site.
const DefaultTopic = TopicPrefix + "/+/readings"

// Telemetry is one reading as published by a site gateway. Timestamp is
// optional; the receiver stamps its own clock when absent.
type Telemetry struct {
	Site        string     `json:"site"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Vibration   *float64   `json:"vibration_g"`
	Temperature *float64   `json:"temperature_c"`
	Pressure    *float64   `json:"pressure_bar"`
	Humidity    *float64   `json:"humidity_pct"`
}

// Validate requires a site and all four values within their input ranges.
func (t Telemetry) Validate() error {
	if strings.TrimSpace(t.Site) == "" {
		return errors.New("site is required")
	}
	fields := []struct {
		ch types.Channel
		v  *float64
	}{
		{types.ChannelVibration, t.Vibration},
		{types.ChannelTemperature, t.Temperature},
		{types.ChannelPressure, t.Pressure},
		{types.ChannelHumidity, t.Humidity},
	}
	for _, f := range fields {
		info := f.ch.Info()
		if f.v == nil {
			return fmt.Errorf("%s is required", f.ch)
		}
		if *f.v < info.Min || *f.v > info.Max {
			return fmt.Errorf("%s out of range: %v (must be %v-%v)", f.ch, *f.v, info.Min, info.Max)
		}
	}
	return nil
}

// Values converts a validated payload; integer channels are rounded.
func (t Telemetry) Values() types.Values {
	return types.Values{
		Vibration:   deref(t.Vibration),
		Temperature: int(deref(t.Temperature) + 0.5),
		Pressure:    deref(t.Pressure),
		Humidity:    int(deref(t.Humidity) + 0.5),
	}
}

// FromValues builds a payload for publishing.
func FromValues(site string, ts time.Time, v types.Values) Telemetry {
	temp := float64(v.Temperature)
	hum := float64(v.Humidity)
	t := Telemetry{
		Site:        site,
		Vibration:   &v.Vibration,
		Temperature: &temp,
		Pressure:    &v.Pressure,
		Humidity:    &hum,
	}
	if !ts.IsZero() {
		t.Timestamp = &ts
	}
	return t
}

// Topic is the publish topic of a site, e.g. "Batu Hijau (NTB)" becomes
// minewatch/sites/batu-hijau-ntb/readings.
func Topic(site string) string {
	return TopicPrefix + "/" + Slug(site) + "/readings"
}

// Slug lower-cases site and collapses every run of other characters to a dash.
func Slug(site string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(site) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
