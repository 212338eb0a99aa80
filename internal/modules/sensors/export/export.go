// Package export writes reading history as an XLSX workbook.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"minewatch-server/internal/modules/sensors/status"
	"minewatch-server/internal/modules/sensors/types"
)

const (
	SheetName   = "Data Sensor"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var Header = []string{"Waktu", "Lokasi", "Getaran (g)", "Suhu (°C)", "Tekanan (bar)", "Kelembapan (%)", "Status"}

var columnWidths = []float64{20, 24, 12, 12, 14, 15, 18}

// statusFill colors the status cell like the map marker.
var statusFill = map[status.Color]string{
	status.Red:    "#F8D7DA",
	status.Orange: "#FFE5B4",
	status.Green:  "#D4EDDA",
	status.Gray:   "#E2E3E5",
}

// Readings renders readings, one row each, under a styled header.
func Readings(readings []types.Reading) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet(SheetName); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	// Indices shift once the default sheet is gone.
	index, err := f.GetSheetIndex(SheetName)
	if err != nil {
		return nil, fmt.Errorf("sheet index: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	fills := make(map[status.Color]int, len(statusFill))
	for c, hex := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{hex}, Pattern: 1},
		})
		if err != nil {
			return nil, fmt.Errorf("status style: %w", err)
		}
		fills[c] = id
	}

	if err := f.SetSheetRow(SheetName, "A1", &Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, w); err != nil {
			return nil, fmt.Errorf("column width: %w", err)
		}
	}

	for i, r := range readings {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []any{r.Timestamp(), r.Site, r.Vibration, r.Temperature, r.Pressure, r.Humidity, r.Status}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		statusCell, _ := excelize.CoordinatesToCellName(len(Header), row)
		if err := f.SetCellStyle(SheetName, statusCell, statusCell, fills[status.ColorFor(r.Status)]); err != nil {
			return nil, fmt.Errorf("style row %d: %w", row, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
