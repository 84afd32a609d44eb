package lmr

import (
	"fmt"
	"strings"
	"time"

	"github.com/xenoscope/golmr/pkg/config"
)

// Configure drives the readout board into the known acquisition state:
// command echo off, verbose output off, debug output off, and the configured
// measurement speed. Board acknowledgements are drained and discarded.
// Only the multi-channel readout board understands these commands; for the
// smartec variant this is a no-op.
func Configure(t Transport, cfg config.BoardConfig, delay time.Duration) error {
	if cfg.Variant != "readout" {
		return nil
	}

	speed := "f"
	if cfg.Speed == "slow" {
		speed = "s"
	}

	cmds := []string{"echo 0\n", "verbose 0\n", "debug 0\n", speed + "\n"}
	for _, cmd := range cmds {
		if _, err := t.Write([]byte(cmd)); err != nil {
			return fmt.Errorf("board setup %q: %w", strings.TrimSpace(cmd), err)
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	drain(t)

	if cfg.VerifySetup {
		return VerifyMode(t, cfg, delay)
	}
	return nil
}

// VerifyMode asks the board for its mode state and checks the reply tokens
// against the expected configuration. A diverging board state is a
// configuration error: acquisition on a misconfigured board yields garbage.
func VerifyMode(t Transport, cfg config.BoardConfig, delay time.Duration) error {
	if cfg.Variant != "readout" {
		return nil
	}

	if _, err := t.Write([]byte("getmode\n")); err != nil {
		return fmt.Errorf("getmode: %w", err)
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	got := modeTokens(drain(t))
	want := expectedMode(cfg)
	if len(got) != len(want) {
		return fmt.Errorf("%w: board mode %v, want %v", ErrConfiguration, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: board mode %v, want %v", ErrConfiguration, got, want)
		}
	}
	return nil
}

// expectedMode lists the getmode reply tokens for a properly set up board:
// speed, verbose off, echo off, debug off.
func expectedMode(cfg config.BoardConfig) []string {
	speed := "Sf"
	if cfg.Speed == "slow" {
		speed = "Ss"
	}
	return []string{speed, "V0", "E0", "D0"}
}

// modeTokens splits a getmode reply into its per-line tokens, stripping the
// space/CR padding the board emits.
func modeTokens(raw []byte) []string {
	var tokens []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.Trim(line, " \r")
		if line != "" {
			tokens = append(tokens, line)
		}
	}
	return tokens
}

// drain reads until the port goes quiet and returns everything received.
func drain(t Transport) []byte {
	var out []byte
	buf := make([]byte, ReadBufferSize)
	for {
		n, err := t.Read(buf)
		if err != nil || n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}
