package types

import (
	"fmt"
	"time"
)

// TimeLayout is the on-disk and display format of reading timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// Values are the four manually entered measurements, in classifier feature order.
type Values struct {
	Vibration   float64 `json:"vibration_g"`
	Temperature int     `json:"temperature_c"`
	Pressure    float64 `json:"pressure_bar"`
	Humidity    int     `json:"humidity_pct"`
}

// Features returns the values in the fixed order the classifier was trained on.
func (v Values) Features() []float64 {
	return []float64{v.Vibration, float64(v.Temperature), v.Pressure, float64(v.Humidity)}
}

// Get returns the value of one channel.
func (v Values) Get(ch Channel) float64 {
	switch ch {
	case ChannelVibration:
		return v.Vibration
	case ChannelTemperature:
		return float64(v.Temperature)
	case ChannelPressure:
		return v.Pressure
	case ChannelHumidity:
		return float64(v.Humidity)
	default:
		return 0
	}
}

// Reading is one stored row. Time is zero when the stored timestamp could not be
// parsed; RawTimestamp always holds the text as stored.
type Reading struct {
	Time         time.Time `json:"time"`
	RawTimestamp string    `json:"timestamp"`
	Site         string    `json:"site"`
	Values
	Status string `json:"status"`
}

// Timestamp is the display form of the reading time.
func (r Reading) Timestamp() string {
	if r.Time.IsZero() {
		return r.RawTimestamp
	}
	return r.Time.Format(TimeLayout)
}

type Channel string

const (
	ChannelVibration   Channel = "getaran"
	ChannelTemperature Channel = "suhu"
	ChannelPressure    Channel = "tekanan"
	ChannelHumidity    Channel = "kelembapan"
)

// Channels lists every channel in feature order.
var Channels = []Channel{ChannelVibration, ChannelTemperature, ChannelPressure, ChannelHumidity}

// ChannelInfo carries the input bounds, safety threshold and chart color of a channel.
type ChannelInfo struct {
	Label     string
	Unit      string
	Min       float64
	Max       float64
	Step      float64
	Threshold float64
	Color     string
}

var channelInfo = map[Channel]ChannelInfo{
	ChannelVibration:   {Label: "Getaran", Unit: "g", Min: 0, Max: 2, Step: 0.1, Threshold: 1.5, Color: "orange"},
	ChannelTemperature: {Label: "Suhu", Unit: "°C", Min: 0, Max: 100, Step: 1, Threshold: 80, Color: "red"},
	ChannelPressure:    {Label: "Tekanan", Unit: "bar", Min: 0, Max: 5, Step: 0.1, Threshold: 4.0, Color: "blue"},
	ChannelHumidity:    {Label: "Kelembapan", Unit: "%", Min: 0, Max: 100, Step: 1, Threshold: 90, Color: "green"},
}

func (c Channel) Info() ChannelInfo {
	return channelInfo[c]
}

func (c Channel) Valid() bool {
	_, ok := channelInfo[c]
	return ok
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown sensor channel %q", s)
	}
	return c, nil
}

// Validate checks every value against its channel input range.
func (v Values) Validate() error {
	for _, ch := range Channels {
		info := ch.Info()
		if x := v.Get(ch); x < info.Min || x > info.Max {
			return fmt.Errorf("%s %v outside %v..%v %s", ch, x, info.Min, info.Max, info.Unit)
		}
	}
	return nil
}
