package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minewatch-server/internal/modules/sensors/types"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 6, 10, hour, min, 0, 0, time.Local)
}

func reading(site string, ts time.Time, status string) types.Reading {
	return types.Reading{
		Time:   ts,
		Site:   site,
		Values: types.Values{Vibration: 0.7, Temperature: 41, Pressure: 1.3, Humidity: 55},
		Status: status,
	}
}

func newTestStore(t *testing.T) (ReadingStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "sensor_data.csv")
	return New(path), path
}

func TestLoadAll_missingFileCreatesHeader(t *testing.T) {
	s, path := newTestStore(t)

	got, err := s.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, got)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"timestamp", "lokasi", "getaran", "suhu", "tekanan", "kelembapan", "status"}, records[0])
}

func TestAppend_roundTripsEveryField(t *testing.T) {
	s, _ := newTestStore(t)

	var want []types.Reading
	for i := 0; i < 25; i++ {
		r := types.Reading{
			Time: at(0, 0).Add(time.Duration(i) * time.Minute),
			Site: []string{"DMLZ", "Big Gossan", "Adaro (Kalsel)"}[i%3],
			Values: types.Values{
				Vibration:   float64(i%21) / 10,
				Temperature: i * 4 % 101,
				Pressure:    float64(i%51) / 10,
				Humidity:    i * 3 % 101,
			},
			Status: []string{"Aman", "Perlu Perhatian", "Bahaya"}[i%3],
		}
		r.RawTimestamp = r.Time.Format(types.TimeLayout)
		require.NoError(t, s.Append(r))
		want = append(want, r)
	}

	got, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Time.Equal(got[i].Time), "row %d time", i)
		got[i].Time = want[i].Time
		assert.Equal(t, want[i], got[i], "row %d", i)
	}
}

func TestAppend_quotesSiteNamesWithCommas(t *testing.T) {
	s, _ := newTestStore(t)
	r := reading("Pit 7, North", at(9, 0), "Aman")
	require.NoError(t, s.Append(r))

	got, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Pit 7, North", got[0].Site)
}

func TestLoadAll_sortsByTimestamp(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Append(reading("DOZ", at(12, 0), "c")))
	require.NoError(t, s.Append(reading("DOZ", at(8, 0), "a")))
	require.NoError(t, s.Append(reading("DOZ", at(10, 0), "b")))

	got, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Status, got[1].Status, got[2].Status})
}

func TestLoadAll_columnsMatchedByName(t *testing.T) {
	_, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := "status,lokasi,timestamp,kelembapan,tekanan,suhu,getaran,extra\n" +
		"Aman,DMLZ,2025-06-10 07:00:00,60.0,1.5,30,0.4,x\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := New(path).LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DMLZ", got[0].Site)
	assert.Equal(t, types.Values{Vibration: 0.4, Temperature: 30, Pressure: 1.5, Humidity: 60}, got[0].Values)
	assert.Equal(t, "Aman", got[0].Status)
}

func TestCorruptHeader(t *testing.T) {
	_, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("foo,bar\n1,2\n"), 0o644))
	s := New(path)

	got, err := s.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, got)

	err = s.Append(reading("DMLZ", at(1, 0), "Aman"))
	assert.ErrorIs(t, err, ErrStoreCorrupt)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "foo,bar\n1,2\n", string(raw), "corrupt file must not be modified")
}

func TestLoadAll_malformedTimestampKeptRaw(t *testing.T) {
	_, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := strings.Join([]string{
		strings.Join(Columns, ","),
		"2025-06-10 09:00:00,DMLZ,0.5,35,1.2,45,Aman",
		"not-a-time,DMLZ,0.6,36,1.2,45,Aman",
		"2025-06-10 08:00:00,DMLZ,0.7,37,1.2,45,Bahaya",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := New(path).LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Text ordering applies once any timestamp is unparsed.
	assert.Equal(t, "2025-06-10 08:00:00", got[0].RawTimestamp)
	assert.Equal(t, "2025-06-10 09:00:00", got[1].RawTimestamp)
	assert.Equal(t, "not-a-time", got[2].RawTimestamp)
	assert.True(t, got[2].Time.IsZero())
	assert.Equal(t, "not-a-time", got[2].Timestamp())
}

func TestLoadAll_skipsUnreadableRows(t *testing.T) {
	_, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := strings.Join(Columns, ",") + "\n" +
		"2025-06-10 09:00:00,DMLZ,abc,35,1.2,45,Aman\n" +
		"2025-06-10 10:00:00,DMLZ,0.5,35,1.2,45,Aman\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := New(path).LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-06-10 10:00:00", got[0].RawTimestamp)
}

func TestAppend_repairsMissingTrailingNewline(t *testing.T) {
	_, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := strings.Join(Columns, ",") + "\n2025-06-10 09:00:00,DMLZ,0.5,35,1.2,45,Aman"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	s := New(path)

	require.NoError(t, s.Append(reading("DMLZ", at(11, 0), "Bahaya")))

	got, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bahaya", got[1].Status)
}

func TestTornTrailingRow(t *testing.T) {
	_, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	good := strings.Join(Columns, ",") + "\n" +
		"2025-06-10 09:00:00,DMLZ,0.5,35,1.2,45,Aman\n"
	require.NoError(t, os.WriteFile(path, []byte(good+`2025-06-10 10:00:00,"Adaro (Kal`), 0o644))
	s := New(path)

	got, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1, "history before the torn row survives")
	assert.Equal(t, "2025-06-10 09:00:00", got[0].RawTimestamp)

	require.NoError(t, s.Append(reading("DOZ", at(11, 0), "Bahaya")))

	got, err = s.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "DOZ", got[1].Site)
	assert.Equal(t, "Bahaya", got[1].Status)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), good))
	assert.NotContains(t, string(raw), "Adaro (Kal")
}

func TestLoadSiteAndLatestBySite(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Append(reading("DMLZ", at(10, 0), "Bahaya")))
	require.NoError(t, s.Append(reading("DMLZ", at(8, 0), "Aman")))
	require.NoError(t, s.Append(reading("DOZ", at(9, 0), "Perlu Perhatian")))

	dmlz, err := s.LoadSite("DMLZ")
	require.NoError(t, err)
	require.Len(t, dmlz, 2)
	assert.Equal(t, "Aman", dmlz[0].Status)

	latest, err := s.LatestBySite()
	require.NoError(t, err)
	assert.Len(t, latest, 2)
	assert.Equal(t, "Bahaya", latest["DMLZ"].Status)
	assert.Equal(t, "Perlu Perhatian", latest["DOZ"].Status)
}

func TestAppend_concurrentInProcessWritersKeepEveryRow(t *testing.T) {
	s, _ := newTestStore(t)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := reading(fmt.Sprintf("site-%d", i), at(0, 0).Add(time.Duration(i)*time.Second), "Aman")
			assert.NoError(t, s.Append(r))
		}(i)
	}
	wg.Wait()

	got, err := s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, got, n)
}

func TestEnsure_keepsExistingContent(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Append(reading("DMLZ", at(10, 0), "Aman")))
	require.NoError(t, s.Ensure())

	got, err := New(path).LoadAll()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
