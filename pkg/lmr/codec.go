package lmr

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Codec translates between per-channel read requests and the wire bytes of a
// particular board. Encoding is a pure function of the channel id; decoding
// validates the response frame and extracts the numeric payload.
type Codec interface {
	EncodeReadRequest(channel int) ([]byte, error)
	DecodeResponse(raw []byte) (float64, error)
}

const (
	// ModeRaw requests single raw readings from the readout board.
	ModeRaw = 'r'
	// ModeAveraged requests one board-side averaged value per command.
	ModeAveraged = 'a'

	// MinChannel and MaxChannel bound the readout board channel numbering.
	MinChannel = 1
	MaxChannel = 6
)

// ReadoutCodec frames commands for the multi-channel level-meter readout
// board. A read request is the ASCII command "<mode> <channel> <readings>\n";
// the board answers with CR/LF-terminated ASCII decimal lines.
type ReadoutCodec struct {
	Mode     byte // ModeRaw or ModeAveraged
	Readings int  // Readings per command; the board averages these in ModeAveraged
}

// NewReadoutCodec returns a codec issuing single raw readings per request,
// leaving averaging to the acquisition layer.
func NewReadoutCodec() *ReadoutCodec {
	return &ReadoutCodec{Mode: ModeRaw, Readings: 1}
}

// EncodeReadRequest produces the command selecting and triggering a reading
// on the given channel.
func (c *ReadoutCodec) EncodeReadRequest(channel int) ([]byte, error) {
	if channel < MinChannel || channel > MaxChannel {
		return nil, fmt.Errorf("%w: channel %d outside %d..%d", ErrConfiguration, channel, MinChannel, MaxChannel)
	}
	mode := c.Mode
	if mode != ModeRaw && mode != ModeAveraged {
		return nil, fmt.Errorf("%w: mode %q", ErrConfiguration, mode)
	}
	readings := c.Readings
	if readings <= 0 {
		readings = 1
	}
	return []byte(fmt.Sprintf("%c %d %d\n", mode, channel, readings)), nil
}

// DecodeResponse extracts the numeric value from the first complete response
// line. Empty or unterminated input is Incomplete (the caller may retry after
// more bytes arrive); a terminated but unparseable line is Malformed.
func (c *ReadoutCodec) DecodeResponse(raw []byte) (float64, error) {
	return decodeLine(raw)
}

// SmartecCodec frames commands for the single-channel smartec UTI evaluation
// board. The board has one input, so the channel id is pinned to 1; the
// trigger command and the line-based decimal response format are fixed by
// the board firmware.
type SmartecCodec struct{}

// EncodeReadRequest produces the fixed measurement trigger. Any channel other
// than 1 is rejected, the board has a single input.
func (c *SmartecCodec) EncodeReadRequest(channel int) ([]byte, error) {
	if channel != 1 {
		return nil, fmt.Errorf("%w: smartec board has a single channel, got %d", ErrConfiguration, channel)
	}
	return []byte("m\n"), nil
}

// DecodeResponse extracts the numeric value from the first complete line.
func (c *SmartecCodec) DecodeResponse(raw []byte) (float64, error) {
	return decodeLine(raw)
}

// decodeLine parses the first non-blank newline-terminated line of a board
// response, stripping the space/CR padding the board emits around values.
func decodeLine(raw []byte) (float64, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return 0, &DecodeError{Kind: DecodeIncomplete, Raw: raw}
	}

	rest := raw
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			// Payload arrived but its frame terminator did not: truncated response.
			return 0, &DecodeError{Kind: DecodeIncomplete, Raw: raw}
		}

		line := strings.Trim(string(rest[:idx]), " \r\n")
		rest = rest[idx+1:]
		if line == "" {
			// Blank line before the value, keep scanning.
			continue
		}

		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, &DecodeError{Kind: DecodeMalformed, Raw: raw}
		}
		return value, nil
	}
}
