// Package sites holds the fixed set of monitored mine locations.
package sites

import "sort"

type Site struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Map defaults covering the Indonesian sites.
const (
	CenterLat   = -2.5
	CenterLon   = 117.0
	DefaultZoom = 5
)

var registry = []Site{
	{Name: "Grasberg Open Pit", Lat: -4.05602, Lon: 137.11320},
	{Name: "DMLZ", Lat: -4.06790, Lon: 137.11050},
	{Name: "DOZ", Lat: -4.07800, Lon: 137.11700},
	{Name: "Big Gossan", Lat: -4.07080, Lon: 137.10460},
	{Name: "Kucing Liar", Lat: -4.04900, Lon: 137.12700},
	{Name: "Batu Hijau (NTB)", Lat: -8.2000, Lon: 117.5000},
	{Name: "Tambang Martabe (Sumut)", Lat: 1.6000, Lon: 99.2000},
	{Name: "Adaro (Kalsel)", Lat: -2.7000, Lon: 115.4300},
	{Name: "KPC (Kaltim)", Lat: 0.5600, Lon: 117.5600},
	{Name: "Pongkor (Jabar)", Lat: -6.5580, Lon: 106.5826},
}

// All returns the sites in registry order.
func All() []Site {
	out := make([]Site, len(registry))
	copy(out, registry)
	return out
}

// Sorted returns the sites ordered by name, as shown in the site selector.
func Sorted() []Site {
	out := All()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Default is the first site alphabetically.
func Default() Site {
	return Sorted()[0]
}

func Lookup(name string) (Site, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}
	return Site{}, false
}
