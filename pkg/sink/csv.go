package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xenoscope/golmr/pkg/acquire"
)

// DefaultRotateCycles is how many cycles go into one CSV file before a fresh
// timestamped file is started.
const DefaultRotateCycles = 2000

// CSV appends each cycle's readings to outputs/levelmeters_<unix>.csv,
// rotating to a new timestamped file every rotateCycles cycles so a long run
// never grows a single unbounded file.
type CSV struct {
	dir          string
	rotateCycles int

	cycles int
	file   *os.File
	w      *csv.Writer
}

// NewCSV creates the output directory if needed and returns the sink.
// The first file is opened lazily on the first cycle.
func NewCSV(dir string, rotateCycles int) (*CSV, error) {
	if rotateCycles <= 0 {
		rotateCycles = DefaultRotateCycles
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &CSV{dir: dir, rotateCycles: rotateCycles}, nil
}

// WriteCycle implements acquire.Sink.
func (c *CSV) WriteCycle(cycle acquire.Cycle) error {
	if c.cycles%c.rotateCycles == 0 {
		if err := c.rotate(cycle.Start); err != nil {
			return err
		}
	}
	c.cycles++

	for _, r := range cycle.Readings {
		rec := []string{
			strconv.Itoa(r.Channel),
			strconv.FormatInt(r.Timestamp, 10),
			strconv.FormatFloat(r.Capacitance, 'f', -1, 64),
		}
		if err := c.w.Write(rec); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Path returns the file currently being written, empty before the first cycle.
func (c *CSV) Path() string {
	if c.file == nil {
		return ""
	}
	return c.file.Name()
}

// Close flushes and closes the current file. Safe to call multiple times.
func (c *CSV) Close() error {
	if c.file == nil {
		return nil
	}
	c.w.Flush()
	err := c.file.Close()
	c.file = nil
	c.w = nil
	if err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	return nil
}

// rotate closes the current file and opens levelmeters_<unix>.csv.
func (c *CSV) rotate(now time.Time) error {
	if err := c.Close(); err != nil {
		return err
	}

	name := filepath.Join(c.dir, fmt.Sprintf("levelmeters_%d.csv", now.Unix()))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv output: %w", err)
	}
	c.file = f
	c.w = csv.NewWriter(f)
	return nil
}
