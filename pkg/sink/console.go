// Package sink provides output consumers for acquisition cycles.
package sink

import (
	"fmt"
	"io"

	"github.com/xenoscope/golmr/pkg/acquire"
)

// Console prints one "channel, unix timestamp, capacitance" line per reading.
type Console struct {
	w io.Writer
}

// NewConsole creates a console sink writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Header prints the column legend once, before the first cycle.
func (c *Console) Header() {
	fmt.Fprintln(c.w, "Channel, UNIX Time Stamp, Capacitance [pF]")
}

// WriteCycle implements acquire.Sink.
func (c *Console) WriteCycle(cycle acquire.Cycle) error {
	for _, r := range cycle.Readings {
		if _, err := fmt.Fprintf(c.w, "%d, %d, %.4f\n", r.Channel, r.Timestamp, r.Capacitance); err != nil {
			return err
		}
	}
	return nil
}
