package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "none", cfg.Serial.Parity)
	assert.Equal(t, 1, cfg.Serial.StopBits)
	assert.Equal(t, 8, cfg.Serial.DataBits)
	assert.Equal(t, 2*time.Second, cfg.Serial.ReadTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Serial.CommandDelay)
	assert.Equal(t, "readout", cfg.Board.Variant)
	assert.Len(t, cfg.Channels, 6)
	assert.Equal(t, "SLM 1", cfg.Channels[0].Label)
	assert.Equal(t, "Reference 100 pF", cfg.Channels[5].Label)
	assert.Equal(t, 10, cfg.Measurement.SamplesPerChannel)
	assert.Equal(t, 3*time.Second, cfg.Measurement.CyclePeriod)
	assert.Equal(t, 2000, cfg.Output.RotateCycles)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"
  baud_rate: 9600

board:
  variant: "readout"
  speed: "slow"

channels:
  - id: 1
    label: "SLM 1"
    offset: 2.5
    slope: 1.1
  - id: 6
    label: "Reference 100 pF"
    slope: 1

measurement:
  samples_per_channel: 5
`
	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "slow", cfg.Board.Speed)
	assert.Len(t, cfg.Channels, 2)
	assert.Equal(t, 2.5, cfg.Channels[0].Offset)
	assert.Equal(t, 5, cfg.Measurement.SamplesPerChannel)

	// Missing fields fall back to defaults
	assert.Equal(t, "none", cfg.Serial.Parity)
	assert.Equal(t, 3*time.Second, cfg.Measurement.CyclePeriod)
	assert.Equal(t, 2000, cfg.Output.RotateCycles)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("serial: [not a mapping")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	_, err = Load(tmpfile.Name())
	assert.Error(t, err)
}

func TestSaveAndLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB3"
	cfg.Board.CloseAfterRun = true
	cfg.Channels[0].Offset = -1.25
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", loaded.Serial.Port)
	assert.True(t, loaded.Board.CloseAfterRun)
	assert.Equal(t, -1.25, loaded.Channels[0].Offset)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero samples per channel",
			mutate:  func(c *Config) { c.Measurement.SamplesPerChannel = 0 },
			wantErr: true,
		},
		{
			name:    "bad parity",
			mutate:  func(c *Config) { c.Serial.Parity = "mark" },
			wantErr: true,
		},
		{
			name:    "bad stop bits",
			mutate:  func(c *Config) { c.Serial.StopBits = 3 },
			wantErr: true,
		},
		{
			name:    "unknown board variant",
			mutate:  func(c *Config) { c.Board.Variant = "fluke" },
			wantErr: true,
		},
		{
			name:    "bad speed",
			mutate:  func(c *Config) { c.Board.Speed = "turbo" },
			wantErr: true,
		},
		{
			name:    "duplicate channel ids",
			mutate:  func(c *Config) { c.Channels[1].ID = 1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChannel_Lookup(t *testing.T) {
	cfg := Default()

	ch, ok := cfg.Channel(4)
	require.True(t, ok)
	assert.Equal(t, "LLM (upper)", ch.Label)

	_, ok = cfg.Channel(42)
	assert.False(t, ok)
}
