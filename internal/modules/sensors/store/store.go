// Package store keeps sensor readings in a flat CSV file used as an
// append-only log:
//
//	timestamp,lokasi,getaran,suhu,tekanan,kelembapan,status
//
// Appends from this process are serialized. Other processes writing the same
// file are not coordinated with, so a concurrent writer can still lose rows.
package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"minewatch-server/internal/modules/sensors/types"
)

// Columns is the header of the data file.
var Columns = []string{"timestamp", "lokasi", "getaran", "suhu", "tekanan", "kelembapan", "status"}

// ErrStoreCorrupt marks a data file whose header or layout cannot be read.
var ErrStoreCorrupt = errors.New("sensor store corrupt")

// Alternative timestamp layouts accepted when reading files written by other tools.
var fallbackLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02",
}

type ReadingStore interface {
	// Append re-reads the file and appends one row.
	Append(r types.Reading) error
	// LoadAll returns every reading ordered by timestamp ascending.
	LoadAll() ([]types.Reading, error)
	LoadSite(site string) ([]types.Reading, error)
	// LatestBySite returns the most recent reading of each site that has one.
	LatestBySite() (map[string]types.Reading, error)
	// Ensure creates the file with its header when it is missing or empty.
	Ensure() error
}

type csvStore struct {
	path string
	mu   sync.Mutex
}

func New(path string) ReadingStore {
	return &csvStore{path: path}
}

func (s *csvStore) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure()
}

func (s *csvStore) ensure() error {
	info, err := os.Stat(s.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", s.path, err)
	}
	w := csv.NewWriter(f)
	_ = w.Write(Columns)
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	return f.Close()
}

func (s *csvStore) Append(r types.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(); err != nil {
		return err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	// Refuse to append rows under a header we cannot interpret.
	_, tornAt, err := parse(raw)
	if err != nil {
		return err
	}
	// An unterminated trailing record would swallow the new row.
	if tornAt >= 0 {
		slog.Warn("dropping torn trailing sensor row", "path", s.path, "offset", tornAt)
		if err := os.Truncate(s.path, tornAt); err != nil {
			return fmt.Errorf("truncate %s: %w", s.path, err)
		}
		raw = raw[:tornAt]
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	// A previous torn write may have left the last row without a newline.
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		if _, err := f.Write([]byte("\n")); err != nil {
			_ = f.Close()
			return fmt.Errorf("append %s: %w", s.path, err)
		}
	}
	w := csv.NewWriter(f)
	_ = w.Write(formatRow(r))
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", s.path, err)
	}
	return f.Close()
}

func (s *csvStore) LoadAll() ([]types.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	readings, _, err := parse(raw)
	if errors.Is(err, ErrStoreCorrupt) {
		slog.Warn("sensor store unreadable, treating as empty", "path", s.path, "error", err)
		return []types.Reading{}, nil
	}
	if err != nil {
		return nil, err
	}
	sortReadings(readings)
	return readings, nil
}

func (s *csvStore) LoadSite(site string) ([]types.Reading, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	out := make([]types.Reading, 0, len(all))
	for _, r := range all {
		if r.Site == site {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *csvStore) LatestBySite() (map[string]types.Reading, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	return Latest(all), nil
}

// Latest picks the last reading per site from readings sorted ascending.
func Latest(sorted []types.Reading) map[string]types.Reading {
	out := make(map[string]types.Reading)
	for _, r := range sorted {
		out[r.Site] = r
	}
	return out
}

func formatRow(r types.Reading) []string {
	ts := r.RawTimestamp
	if !r.Time.IsZero() {
		ts = r.Time.Format(types.TimeLayout)
	}
	return []string{
		ts,
		r.Site,
		strconv.FormatFloat(r.Vibration, 'f', -1, 64),
		strconv.Itoa(r.Temperature),
		strconv.FormatFloat(r.Pressure, 'f', -1, 64),
		strconv.Itoa(r.Humidity),
		r.Status,
	}
}

// parse reads the file record by record. Malformed records are skipped; when
// the last record is malformed its byte offset is returned as tornAt so that
// Append can cut it off, otherwise tornAt is -1.
func parse(raw []byte) ([]types.Reading, int64, error) {
	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []types.Reading{}, -1, nil
	}
	if err != nil {
		return nil, -1, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			return nil, -1, fmt.Errorf("%w: missing column %q", ErrStoreCorrupt, c)
		}
	}

	out := []types.Reading{}
	tornAt := int64(-1)
	for {
		start := cr.InputOffset()
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Warn("skipping malformed sensor row", "offset", start, "error", err)
			tornAt = start
			continue
		}
		tornAt = -1
		r, err := parseRecord(rec, idx)
		if err != nil {
			line, _ := cr.FieldPos(0)
			slog.Warn("skipping unreadable sensor row", "line", line, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, tornAt, nil
}

func parseRecord(rec []string, idx map[string]int) (types.Reading, error) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var (
		r   types.Reading
		err error
	)
	r.RawTimestamp = field("timestamp")
	r.Time = parseTime(r.RawTimestamp)
	r.Site = field("lokasi")
	r.Status = field("status")

	if r.Vibration, err = strconv.ParseFloat(field("getaran"), 64); err != nil {
		return r, fmt.Errorf("getaran: %w", err)
	}
	if r.Temperature, err = parseInt(field("suhu")); err != nil {
		return r, fmt.Errorf("suhu: %w", err)
	}
	if r.Pressure, err = strconv.ParseFloat(field("tekanan"), 64); err != nil {
		return r, fmt.Errorf("tekanan: %w", err)
	}
	if r.Humidity, err = parseInt(field("kelembapan")); err != nil {
		return r, fmt.Errorf("kelembapan: %w", err)
	}
	return r, nil
}

// parseInt also accepts integral decimals such as "35.0".
func parseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

func parseTime(s string) time.Time {
	if t, err := time.ParseInLocation(types.TimeLayout, s, time.Local); err == nil {
		return t
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// sortReadings orders by parsed time; if any timestamp failed to parse the
// column is compared as text instead.
func sortReadings(rs []types.Reading) {
	parsed := true
	for _, r := range rs {
		if r.Time.IsZero() {
			parsed = false
			break
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if parsed {
			return rs[i].Time.Before(rs[j].Time)
		}
		return rs[i].RawTimestamp < rs[j].RawTimestamp
	})
}
