package lmr

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// DefaultRetries is the retry bound per sample on transient faults.
const DefaultRetries = 2

// Sampler obtains one validated raw value for one channel, hiding transient
// I/O and decode faults behind a bounded retry. The port stays open across
// retries; exhaustion is reported, never fatal.
type Sampler struct {
	transport Transport
	codec     Codec
	retries   int
	delay     time.Duration
}

// NewSampler creates a sampler over the given transport and codec.
// delay is the wait between command write and response read; the readout
// board needs roughly 200ms to answer.
func NewSampler(t Transport, c Codec, retries int, delay time.Duration) *Sampler {
	if retries < 0 {
		retries = DefaultRetries
	}
	return &Sampler{
		transport: t,
		codec:     c,
		retries:   retries,
		delay:     delay,
	}
}

// Sample issues one read command for the channel and decodes the response.
// Transient faults are retried up to the configured bound; when all attempts
// fail the returned error wraps ErrSampleExhausted together with the last
// cause. Configuration faults (invalid channel) are returned immediately.
func (s *Sampler) Sample(ctx context.Context, channel int) (float64, error) {
	req, err := s.codec.EncodeReadRequest(channel)
	if err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if attempt > 0 {
			log.Printf("Retrying channel %d sample (attempt %d/%d): %v", channel, attempt+1, s.retries+1, lastErr)
		}

		value, err := s.attempt(ctx, req)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}

	return 0, fmt.Errorf("%w: channel %d: %w", ErrSampleExhausted, channel, lastErr)
}

// attempt performs a single write/read/decode round trip.
func (s *Sampler) attempt(ctx context.Context, req []byte) (float64, error) {
	if _, err := s.transport.Write(req); err != nil {
		return 0, err
	}

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	// Accumulate until a frame decodes or the port goes quiet. Each Read is
	// bounded by the transport read timeout, so the attempt cannot hang.
	var resp []byte
	buf := make([]byte, ReadBufferSize)
	for {
		n, err := s.transport.Read(buf)
		if err != nil {
			return 0, err
		}
		resp = append(resp, buf[:n]...)

		value, derr := s.codec.DecodeResponse(resp)
		if derr == nil {
			return value, nil
		}
		if n == 0 || !IsIncomplete(derr) {
			// Timed out with nothing decodable, or the frame is corrupt.
			return 0, derr
		}
	}
}

// Exhausted reports whether err marks a sample whose retries all failed.
func Exhausted(err error) bool {
	return errors.Is(err, ErrSampleExhausted)
}
