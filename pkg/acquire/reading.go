// Package acquire drives the continuous measurement loop over the configured
// level-meter channels.
package acquire

import (
	"fmt"
	"regexp"
	"time"

	"github.com/xenoscope/golmr/pkg/calib"
	"github.com/xenoscope/golmr/pkg/config"
)

// Channel identifies one level-meter tap with its calibration constants.
// Immutable for the process lifetime; the topology comes from configuration,
// never from runtime discovery.
type Channel struct {
	ID    int
	Label string
	Cal   calib.Calibration
}

// Reading is the reduced, calibrated result for one channel in one cycle.
type Reading struct {
	Channel     int     // Channel id
	Timestamp   int64   // Cycle UNIX timestamp in seconds (not per-sample time)
	Capacitance float64 // Mean capacitance in pF
	Samples     int     // Successful samples folded into the mean
}

// Cycle is one full pass over the configured channels, the unit of output.
// A channel whose samples all failed has no Reading in the cycle.
type Cycle struct {
	Start    time.Time
	Readings []Reading
}

// Sink consumes completed cycles. Ownership of the readings passes to the
// sink; the acquisition core retains no history.
type Sink interface {
	WriteCycle(c Cycle) error
}

// ChannelsFromConfig builds the channel list from static configuration.
func ChannelsFromConfig(cfgs []config.ChannelConfig) []Channel {
	channels := make([]Channel, 0, len(cfgs))
	for _, c := range cfgs {
		cal := calib.Calibration{Offset: c.Offset, Slope: c.Slope, Poly: c.Poly}
		if cal.Slope == 0 && len(cal.Poly) == 0 {
			cal = calib.Identity()
		}
		channels = append(channels, Channel{ID: c.ID, Label: c.Label, Cal: cal})
	}
	return channels
}

var channelNumbers = regexp.MustCompile(`\d+`)

// SelectChannels resolves a channel selection string against the configured
// set. "a" selects all level meters (1-5), "s" the short level meters (1-3),
// "l" the long level meters (4-5); anything else is read as a list of
// channel numbers ("1,3 5"). The reference channel 6 is only sampled when
// requested explicitly.
func SelectChannels(all []Channel, selection string) ([]Channel, error) {
	var ids []int
	switch selection {
	case "", "a":
		ids = []int{1, 2, 3, 4, 5}
	case "s":
		ids = []int{1, 2, 3}
	case "l":
		ids = []int{4, 5}
	default:
		for _, m := range channelNumbers.FindAllString(selection, -1) {
			var id int
			fmt.Sscanf(m, "%d", &id)
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("invalid channel selection %q", selection)
		}
	}

	byID := make(map[int]Channel, len(all))
	for _, ch := range all {
		byID[ch.ID] = ch
	}

	selected := make([]Channel, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		ch, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("channel %d is not configured", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, ch)
	}
	return selected, nil
}
