// Package status maps classifier labels to severity.
package status

import "strings"

const (
	DangerTerm  = "bahaya"
	CautionTerm = "perlu"
)

type Color string

const (
	Red    Color = "red"
	Orange Color = "orange"
	Green  Color = "green"
	Gray   Color = "gray"
)

// IsDangerous reports whether label starts with the danger term, ignoring case.
func IsDangerous(label string) bool {
	return strings.HasPrefix(strings.ToLower(label), DangerTerm)
}

// ColorFor returns the marker color for a label. An empty label means no status
// was recorded and maps to gray.
func ColorFor(label string) Color {
	if label == "" {
		return Gray
	}
	s := strings.ToLower(label)
	switch {
	case strings.HasPrefix(s, DangerTerm):
		return Red
	case strings.Contains(s, CautionTerm):
		return Orange
	default:
		return Green
	}
}
