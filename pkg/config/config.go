package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Board       BoardConfig       `yaml:"board"`
	Channels    []ChannelConfig   `yaml:"channels"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Output      OutputConfig      `yaml:"output"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial line configuration.
type SerialConfig struct {
	Port         string        `yaml:"port"`
	BaudRate     int           `yaml:"baud_rate"`
	Parity       string        `yaml:"parity"`    // none, odd, even
	StopBits     int           `yaml:"stop_bits"` // 1 or 2
	DataBits     int           `yaml:"data_bits"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	CommandDelay time.Duration `yaml:"command_delay"` // Wait between command write and response read
}

// BoardConfig selects the readout board variant and its measurement mode.
type BoardConfig struct {
	Variant       string `yaml:"variant"` // "readout" (multi-channel board) or "smartec" (single-channel UTI board)
	Speed         string `yaml:"speed"`   // "fast" (~100 samples/s) or "slow" (~10 samples/s)
	VerifySetup   bool   `yaml:"verify_setup"`
	CloseAfterRun bool   `yaml:"close_after_run"`
}

// ChannelConfig describes one level-meter channel and its calibration constants.
// Capacitance is computed as offset + slope*raw, or, when poly is set, as the
// polynomial poly[0] + poly[1]*raw + poly[2]*raw^2 + ...
type ChannelConfig struct {
	ID     int       `yaml:"id"`
	Label  string    `yaml:"label"`
	Offset float64   `yaml:"offset"`
	Slope  float64   `yaml:"slope"`
	Poly   []float64 `yaml:"poly,omitempty"`
}

// MeasurementConfig contains acquisition parameters.
type MeasurementConfig struct {
	SamplesPerChannel int           `yaml:"samples_per_channel"`
	CyclePeriod       time.Duration `yaml:"cycle_period"`
	Retries           int           `yaml:"retries"` // Retry attempts per sample on I/O or decode failure
}

// OutputConfig contains reading sink configuration.
type OutputConfig struct {
	Verbose      bool   `yaml:"verbose"`
	SaveCSV      bool   `yaml:"save_csv"`
	Dir          string `yaml:"dir"`
	RotateCycles int    `yaml:"rotate_cycles"` // Cycles per CSV file before rotating
	SQLitePath   string `yaml:"sqlite_path"`   // Empty disables the SQLite sink
	MetricsAddr  string `yaml:"metrics_addr"`  // Empty disables the Prometheus listener
}

// MockConfig contains mock board configuration.
type MockConfig struct {
	BaseLevel     float64       `yaml:"base_level"`     // Starting raw level value (pF equivalent)
	FillRate      float64       `yaml:"fill_rate"`      // Simulated level drift (pF/s)
	NoiseLevel    float64       `yaml:"noise_level"`    // Noise amplitude (pF)
	ResponseDelay time.Duration `yaml:"response_delay"` // Simulated board response latency
	DeadChannels  []int         `yaml:"dead_channels"`  // Channels that never answer (for gap testing)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:         "/dev/ttyUSB0",
			BaudRate:     115200,
			Parity:       "none",
			StopBits:     1,
			DataBits:     8,
			ReadTimeout:  2 * time.Second,
			CommandDelay: 200 * time.Millisecond,
		},
		Board: BoardConfig{
			Variant:       "readout",
			Speed:         "fast",
			VerifySetup:   true,
			CloseAfterRun: false,
		},
		Channels: []ChannelConfig{
			{ID: 1, Label: "SLM 1", Slope: 1},
			{ID: 2, Label: "SLM 2", Slope: 1},
			{ID: 3, Label: "SLM 3", Slope: 1},
			{ID: 4, Label: "LLM (upper)", Slope: 1},
			{ID: 5, Label: "LLM (lower)", Slope: 1},
			{ID: 6, Label: "Reference 100 pF", Slope: 1},
		},
		Measurement: MeasurementConfig{
			SamplesPerChannel: 10,
			CyclePeriod:       3 * time.Second,
			Retries:           2,
		},
		Output: OutputConfig{
			Verbose:      true,
			SaveCSV:      true,
			Dir:          "outputs",
			RotateCycles: 2000,
		},
		Mock: MockConfig{
			BaseLevel:     100.0,
			FillRate:      0.05,
			NoiseLevel:    0.2,
			ResponseDelay: 10 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Channel returns the configuration for the channel with the given id.
func (c *Config) Channel(id int) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// Validate checks configured values that have no usable zero fallback.
func (c *Config) Validate() error {
	if c.Measurement.SamplesPerChannel < 1 {
		return fmt.Errorf("samples_per_channel must be positive, got %d", c.Measurement.SamplesPerChannel)
	}
	switch c.Serial.Parity {
	case "none", "odd", "even":
	default:
		return fmt.Errorf("unsupported parity %q", c.Serial.Parity)
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return fmt.Errorf("stop_bits must be 1 or 2, got %d", c.Serial.StopBits)
	}
	switch c.Board.Variant {
	case "readout", "smartec":
	default:
		return fmt.Errorf("unknown board variant %q", c.Board.Variant)
	}
	switch c.Board.Speed {
	case "fast", "slow":
	default:
		return fmt.Errorf("board speed must be fast or slow, got %q", c.Board.Speed)
	}
	seen := make(map[int]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if seen[ch.ID] {
			return fmt.Errorf("duplicate channel id %d", ch.ID)
		}
		seen[ch.ID] = true
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.Parity == "" {
		c.Serial.Parity = def.Serial.Parity
	}
	if c.Serial.StopBits == 0 {
		c.Serial.StopBits = def.Serial.StopBits
	}
	if c.Serial.DataBits == 0 {
		c.Serial.DataBits = def.Serial.DataBits
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}
	if c.Serial.CommandDelay == 0 {
		c.Serial.CommandDelay = def.Serial.CommandDelay
	}

	if c.Board.Variant == "" {
		c.Board.Variant = def.Board.Variant
	}
	if c.Board.Speed == "" {
		c.Board.Speed = def.Board.Speed
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}

	if c.Measurement.SamplesPerChannel == 0 {
		c.Measurement.SamplesPerChannel = def.Measurement.SamplesPerChannel
	}
	if c.Measurement.CyclePeriod == 0 {
		c.Measurement.CyclePeriod = def.Measurement.CyclePeriod
	}
	if c.Measurement.Retries == 0 {
		c.Measurement.Retries = def.Measurement.Retries
	}

	if c.Output.Dir == "" {
		c.Output.Dir = def.Output.Dir
	}
	if c.Output.RotateCycles == 0 {
		c.Output.RotateCycles = def.Output.RotateCycles
	}

	if c.Mock.BaseLevel == 0 {
		c.Mock.BaseLevel = def.Mock.BaseLevel
	}
	if c.Mock.NoiseLevel == 0 {
		c.Mock.NoiseLevel = def.Mock.NoiseLevel
	}
	if c.Mock.ResponseDelay == 0 {
		c.Mock.ResponseDelay = def.Mock.ResponseDelay
	}
}
