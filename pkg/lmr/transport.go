package lmr

import (
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/xenoscope/golmr/pkg/config"
)

const (
	// DefaultBaudRate is the line speed of the level-meter readout board.
	DefaultBaudRate = 115200
	// ReadBufferSize is the read chunk size for board responses.
	ReadBufferSize = 256
)

// Serial is the Transport implementation over a physical or virtual serial port.
type Serial struct {
	cfg config.SerialConfig

	mu   sync.Mutex
	conn serial.Port
	open bool
}

// NewSerial creates a serial transport for the given line configuration.
func NewSerial(cfg config.SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	return &Serial{cfg: cfg}
}

// Ports returns the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Open acquires the device node with the configured line settings.
// A missing or busy device node is a connection error; rejected line
// settings are a configuration error.
func (s *Serial) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return fmt.Errorf("%w: already open", ErrConnection)
	}

	mode, err := lineMode(s.cfg)
	if err != nil {
		return err
	}

	conn, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrConnection, s.cfg.Port, err)
	}

	if err := conn.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
		conn.Close()
		return fmt.Errorf("%w: read timeout %s: %v", ErrConfiguration, s.cfg.ReadTimeout, err)
	}

	s.conn = conn
	s.open = true
	return nil
}

// Write sends a command frame to the board.
func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	conn, open := s.conn, s.open
	s.mu.Unlock()

	if !open {
		return 0, ErrNotOpen
	}

	n, err := conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial write: %w", err)
	}
	if n < len(p) {
		return n, fmt.Errorf("serial write: short write %d of %d bytes", n, len(p))
	}
	return n, nil
}

// Read blocks up to the configured read timeout and returns the bytes
// received so far. A timeout with no data returns n == 0 and no error.
func (s *Serial) Read(p []byte) (int, error) {
	s.mu.Lock()
	conn, open := s.conn, s.open
	s.mu.Unlock()

	if !open {
		return 0, ErrNotOpen
	}

	n, err := conn.Read(p)
	if err != nil {
		return n, fmt.Errorf("serial read: %w", err)
	}
	return n, nil
}

// Close releases the device node. Safe to call multiple times.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.open = false
	if err != nil {
		return fmt.Errorf("serial close: %w", err)
	}
	return nil
}

// IsOpen returns whether the port is currently held.
func (s *Serial) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// lineMode translates the serial configuration into a port mode.
func lineMode(cfg config.SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.Parity {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("%w: parity %q", ErrConfiguration, cfg.Parity)
	}

	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %d", ErrConfiguration, cfg.StopBits)
	}

	return mode, nil
}
