// Package forecast extrapolates a linear trend over a site's history to estimate
// when a channel will reach its safety threshold.
package forecast

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"minewatch-server/internal/modules/sensors/types"
)

const (
	// MinPoints is the smallest history a trend is fitted to.
	MinPoints = 5
	// Horizon is the number of one-hour steps extrapolated.
	Horizon = 50
)

const (
	MsgInsufficient = "Butuh minimal 5 titik data historis per lokasi untuk membuat prediksi tren."
	MsgSafe         = "Aman dalam 50 jam ke depan"
	msgCrossingFmt  = "Perkiraan melewati batas dalam %d jam"
)

type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

type Result struct {
	Channel   types.Channel `json:"channel"`
	Threshold float64       `json:"threshold"`
	Points    int           `json:"points"`
	// Insufficient is set when fewer than MinPoints values were given; no fit is made.
	Insufficient bool    `json:"insufficient"`
	Intercept    float64 `json:"intercept"`
	Slope        float64 `json:"slope"`
	Future       []Point `json:"future,omitempty"`
	// CrossingHours is the first future step at or above Threshold, or -1.
	CrossingHours int    `json:"crossing_hours"`
	Message       string `json:"message"`
}

func (r Result) Crossed() bool {
	return r.CrossingHours >= 0
}

// Forecast fits value = Intercept + Slope*i over i = 0..n-1 by ordinary least
// squares and evaluates it at i = n..n+Horizon-1. Future times start at last and
// advance one hour per step.
func Forecast(values []float64, ch types.Channel, last time.Time) Result {
	res := Result{
		Channel:       ch,
		Threshold:     ch.Info().Threshold,
		Points:        len(values),
		CrossingHours: -1,
	}
	if len(values) < MinPoints {
		res.Insufficient = true
		res.Message = MsgInsufficient
		return res
	}

	x := make([]float64, len(values))
	for i := range x {
		x[i] = float64(i)
	}
	res.Intercept, res.Slope = stat.LinearRegression(x, values, nil, false)

	res.Future = make([]Point, Horizon)
	n := float64(len(values))
	for i := range res.Future {
		v := res.Intercept + res.Slope*(n+float64(i))
		res.Future[i] = Point{Time: last.Add(time.Duration(i) * time.Hour), Value: v}
		if res.CrossingHours < 0 && v >= res.Threshold {
			res.CrossingHours = i
		}
	}

	if res.Crossed() {
		res.Message = fmt.Sprintf(msgCrossingFmt, res.CrossingHours)
	} else {
		res.Message = MsgSafe
	}
	return res
}

// ForReadings forecasts one channel of readings sorted by time ascending.
func ForReadings(readings []types.Reading, ch types.Channel) Result {
	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.Values.Get(ch)
	}
	var last time.Time
	if len(readings) > 0 {
		last = readings[len(readings)-1].Time
	}
	return Forecast(values, ch, last)
}
