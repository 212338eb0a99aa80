// Package session decodes the dashboard view state carried in request
// parameters. Nothing is kept server-side between requests.
package session

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"minewatch-server/internal/modules/sensors/sites"
	"minewatch-server/internal/modules/sensors/types"
)

// Form field names.
const (
	KeySite    = "lokasi"
	KeyChannel = "sensor"
)

type State struct {
	Site    string
	Values  types.Values
	Channel types.Channel
}

var defaultValues = types.Values{Vibration: 0.5, Temperature: 35, Pressure: 1.2, Humidity: 45}

func Default() State {
	return State{
		Site:    sites.Default().Name,
		Values:  defaultValues,
		Channel: types.ChannelVibration,
	}
}

// FromValues overlays q on the defaults. Unknown sites and channels fall back to
// the default, unparsable numbers keep the default, and out-of-range numbers are
// clamped to the channel input range.
func FromValues(q url.Values) State {
	s := Default()
	if name := strings.TrimSpace(q.Get(KeySite)); name != "" {
		if _, ok := sites.Lookup(name); ok {
			s.Site = name
		}
	}
	if ch, err := types.ParseChannel(strings.TrimSpace(q.Get(KeyChannel))); err == nil {
		s.Channel = ch
	}

	s.Values.Vibration = floatParam(q, types.ChannelVibration, s.Values.Vibration)
	s.Values.Temperature = int(floatParam(q, types.ChannelTemperature, float64(s.Values.Temperature)))
	s.Values.Pressure = floatParam(q, types.ChannelPressure, s.Values.Pressure)
	s.Values.Humidity = int(floatParam(q, types.ChannelHumidity, float64(s.Values.Humidity)))
	return s
}

func floatParam(q url.Values, ch types.Channel, def float64) float64 {
	raw := strings.TrimSpace(q.Get(string(ch)))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return def
	}
	info := ch.Info()
	if info.Step >= 1 {
		v = math.Round(v)
	}
	return math.Min(math.Max(v, info.Min), info.Max)
}

// Query encodes s so links and HTMX requests keep the current selection.
func (s State) Query() url.Values {
	q := url.Values{}
	q.Set(KeySite, s.Site)
	q.Set(KeyChannel, string(s.Channel))
	q.Set(string(types.ChannelVibration), strconv.FormatFloat(s.Values.Vibration, 'f', -1, 64))
	q.Set(string(types.ChannelTemperature), strconv.Itoa(s.Values.Temperature))
	q.Set(string(types.ChannelPressure), strconv.FormatFloat(s.Values.Pressure, 'f', -1, 64))
	q.Set(string(types.ChannelHumidity), strconv.Itoa(s.Values.Humidity))
	return q
}
