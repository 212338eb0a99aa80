// Package mapview builds the site markers drawn on the dashboard map.
package mapview

import (
	"html"

	"minewatch-server/internal/modules/sensors/sites"
	"minewatch-server/internal/modules/sensors/status"
	"minewatch-server/internal/modules/sensors/types"
)

// Marker is consumed by the Leaflet script; Popup is trusted HTML with every
// stored value escaped.
type Marker struct {
	Name   string       `json:"name"`
	Lat    float64      `json:"lat"`
	Lon    float64      `json:"lon"`
	Color  status.Color `json:"color"`
	Status string       `json:"status,omitempty"`
	Time   string       `json:"time,omitempty"`
	Popup  string       `json:"popup"`
	// HasData is false for sites without any stored reading.
	HasData bool `json:"has_data"`
}

// View is the full map payload.
type View struct {
	CenterLat float64  `json:"center_lat"`
	CenterLon float64  `json:"center_lon"`
	Zoom      int      `json:"zoom"`
	Markers   []Marker `json:"markers"`
}

// Markers returns one marker per site in the given order, colored by the site's
// latest reading. Readings for sites outside the list are ignored.
func Markers(list []sites.Site, latest map[string]types.Reading) []Marker {
	out := make([]Marker, 0, len(list))
	for _, s := range list {
		m := Marker{Name: s.Name, Lat: s.Lat, Lon: s.Lon}
		name := "<b>" + html.EscapeString(s.Name) + "</b>"
		if r, ok := latest[s.Name]; ok {
			m.HasData = true
			m.Status = r.Status
			m.Time = r.Timestamp()
			m.Color = status.ColorFor(r.Status)
			m.Popup = name + "<br>Status: " + html.EscapeString(r.Status) + "<br>Waktu: " + html.EscapeString(m.Time)
		} else {
			m.Color = status.Gray
			m.Popup = name + "<br>Status: (belum ada data)"
		}
		out = append(out, m)
	}
	return out
}

// Build assembles the map for the fixed site registry.
func Build(latest map[string]types.Reading) View {
	return View{
		CenterLat: sites.CenterLat,
		CenterLon: sites.CenterLon,
		Zoom:      sites.DefaultZoom,
		Markers:   Markers(sites.All(), latest),
	}
}
