package lmr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xenoscope/golmr/pkg/config"
)

// Mock simulates the level-meter readout board for testing and development.
// It parses the same command framing as the real board and synthesizes
// slowly rising per-channel levels with deterministic noise. Channels listed
// in DeadChannels never answer, which makes the read path time out exactly
// like a disconnected level meter.
type Mock struct {
	cfg *config.MockConfig

	mu        sync.Mutex
	open      bool
	pending   []byte
	startTime time.Time

	// Board mode state, driven by the same setup commands as the real board.
	echo    bool
	verbose bool
	debug   bool
	speed   byte
}

// NewMock creates a mocked board transport.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			BaseLevel:     100.0,
			FillRate:      0.05,
			NoiseLevel:    0.2,
			ResponseDelay: 10 * time.Millisecond,
		}
	}
	return &Mock{cfg: cfg, speed: 'f'}
}

// Open simulates acquiring the device node.
func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return fmt.Errorf("%w: already open", ErrConnection)
	}
	m.open = true
	m.startTime = time.Now()
	m.pending = nil
	return nil
}

// Close releases the simulated port. Safe to call multiple times.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = false
	m.pending = nil
	return nil
}

// IsOpen returns whether the simulated port is held.
func (m *Mock) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Write parses incoming command frames and queues the board's response bytes.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return 0, ErrNotOpen
	}

	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m.handleCommand(line)
	}
	return len(p), nil
}

// Read pops queued response bytes after the simulated response latency.
// With nothing queued it behaves like a read timeout: n == 0, no error.
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return 0, ErrNotOpen
	}
	m.mu.Unlock()

	if m.cfg.ResponseDelay > 0 {
		time.Sleep(m.cfg.ResponseDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return 0, nil
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

// handleCommand reacts to one board command. Unknown commands are ignored,
// matching the silent behavior of the real firmware with echo off.
func (m *Mock) handleCommand(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "echo", "verbose", "debug":
		on := len(fields) > 1 && fields[1] == "1"
		switch fields[0] {
		case "echo":
			m.echo = on
		case "verbose":
			m.verbose = on
		case "debug":
			m.debug = on
		}
	case "f", "s":
		m.speed = fields[0][0]
	case "getmode":
		m.queue(m.modeReply())
	case "m":
		// Smartec trigger: single channel board, channel 1 semantics.
		m.queueReading(1, 1)
	case "r", "a":
		if len(fields) != 3 {
			return
		}
		channel, err := strconv.Atoi(fields[1])
		if err != nil {
			return
		}
		readings, err := strconv.Atoi(fields[2])
		if err != nil || readings < 1 {
			return
		}
		if fields[0] == "a" {
			// Board-side averaging returns a single value.
			readings = 1
		}
		m.queueReading(channel, readings)
	}
}

// queueReading synthesizes the response lines for a channel read command.
func (m *Mock) queueReading(channel, readings int) {
	for _, dead := range m.cfg.DeadChannels {
		if channel == dead {
			return
		}
	}
	if channel < MinChannel || channel > MaxChannel {
		return
	}

	for i := 0; i < readings; i++ {
		v := m.level(channel, time.Now())
		m.queue(fmt.Sprintf(" %.4f\r\n", v))
	}
}

// level computes the simulated raw value for a channel. The reference
// channel holds steady at the base level; the meter channels fill slowly,
// with sin/cos noise standing in for electrical pickup.
func (m *Mock) level(channel int, now time.Time) float64 {
	elapsed := now.Sub(m.startTime).Seconds()

	noise := (math.Sin(elapsed*97.0) + math.Cos(elapsed*131.0)) * m.cfg.NoiseLevel * 0.5

	if channel == MaxChannel {
		return m.cfg.BaseLevel + noise*0.01
	}

	// Offset channels from each other so plots are distinguishable.
	base := m.cfg.BaseLevel * (1 + 0.1*float64(channel-1))
	return base + m.cfg.FillRate*elapsed + noise
}

// modeReply formats the getmode response the way the board prints it.
func (m *Mock) modeReply() string {
	var b strings.Builder
	fmt.Fprintf(&b, " S%c\r\n", m.speed)
	fmt.Fprintf(&b, " V%s\r\n", onOff(m.verbose))
	fmt.Fprintf(&b, " E%s\r\n", onOff(m.echo))
	fmt.Fprintf(&b, " D%s\r\n", onOff(m.debug))
	return b.String()
}

func (m *Mock) queue(s string) {
	m.pending = append(m.pending, s...)
}

func onOff(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
