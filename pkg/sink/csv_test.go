package sink

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenoscope/golmr/pkg/acquire"
)

func testCycle(start time.Time, channels ...int) acquire.Cycle {
	c := acquire.Cycle{Start: start}
	for _, ch := range channels {
		c.Readings = append(c.Readings, acquire.Reading{
			Channel:     ch,
			Timestamp:   start.Unix(),
			Capacitance: 100.0 + float64(ch),
			Samples:     10,
		})
	}
	return c
}

func TestCSV_WriteCycle(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSV(dir, 100)
	require.NoError(t, err)
	defer sink.Close()

	start := time.Unix(1693526400, 0)
	require.NoError(t, sink.WriteCycle(testCycle(start, 1, 2, 4)))

	path := sink.Path()
	assert.Equal(t, filepath.Join(dir, "levelmeters_1693526400.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"1", "1693526400", "101"}, records[0])
	assert.Equal(t, []string{"2", "1693526400", "102"}, records[1])
	assert.Equal(t, []string{"4", "1693526400", "104"}, records[2])
}

func TestCSV_AppendsAcrossCycles(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSV(dir, 100)
	require.NoError(t, err)
	defer sink.Close()

	start := time.Unix(1693526400, 0)
	require.NoError(t, sink.WriteCycle(testCycle(start, 1)))
	require.NoError(t, sink.WriteCycle(testCycle(start.Add(3*time.Second), 1)))

	f, err := os.Open(sink.Path())
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2, "both cycles land in the same file before rotation")
}

func TestCSV_Rotation(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSV(dir, 2)
	require.NoError(t, err)
	defer sink.Close()

	start := time.Unix(1693526400, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, sink.WriteCycle(testCycle(start.Add(time.Duration(i)*3*time.Second), 1)))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "levelmeters_*.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 2, "four cycles with rotate_cycles=2 give two files")
}

func TestCSV_CloseIdempotent(t *testing.T) {
	sink, err := NewCSV(t.TempDir(), 10)
	require.NoError(t, err)

	require.NoError(t, sink.WriteCycle(testCycle(time.Unix(1693526400, 0), 1)))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
}
