package acquire

import (
	"context"
	"log"
	"time"
)

// Sampler obtains one validated raw value for one channel, retrying
// transient faults internally. *lmr.Sampler satisfies this.
type Sampler interface {
	Sample(ctx context.Context, channel int) (float64, error)
}

// Observer receives acquisition diagnostics. All methods must be cheap;
// they are called from the sampling loop.
type Observer interface {
	SampleOK(channel int)
	SampleFailed(channel int)
	ChannelGap(channel int)
	Capacitance(channel int, pF float64)
	CycleDone(elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) SampleOK(int)             {}
func (nopObserver) SampleFailed(int)         {}
func (nopObserver) ChannelGap(int)           {}
func (nopObserver) Capacitance(int, float64) {}
func (nopObserver) CycleDone(time.Duration)  {}

// Scheduler repeats acquisition cycles until cancelled: every channel in
// configured order, N samples per channel, mean of the calibrated successes.
// Cycles are strictly sequential and each cycle's start time comes from the
// wall clock, so the loop never drifts cumulatively.
type Scheduler struct {
	sampler           Sampler
	channels          []Channel
	samplesPerChannel int
	period            time.Duration
	sinks             []Sink
	observer          Observer

	closer        interface{ Close() error }
	closeAfterRun bool
}

// New creates a scheduler sampling the given channels in order.
func New(sampler Sampler, channels []Channel, samplesPerChannel int, period time.Duration, sinks ...Sink) *Scheduler {
	if samplesPerChannel < 1 {
		samplesPerChannel = 1
	}
	return &Scheduler{
		sampler:           sampler,
		channels:          channels,
		samplesPerChannel: samplesPerChannel,
		period:            period,
		sinks:             sinks,
		observer:          nopObserver{},
	}
}

// SetObserver registers a diagnostics observer. Must be called before Run.
func (s *Scheduler) SetObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

// CloseOnExit makes Run close the given handle (normally the transport)
// when it returns. Without it the port stays open for a later run to reuse.
func (s *Scheduler) CloseOnExit(c interface{ Close() error }) {
	s.closer = c
	s.closeAfterRun = true
}

// Run loops acquisition cycles until the context is cancelled. Sampling
// faults never stop the loop; only cancellation does. A cycle interrupted
// mid-way still hands its completed readings to the sinks before Run
// returns, so no emitted channel is lost.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.release()

	for {
		start := time.Now()
		cycle, err := s.runCycle(ctx, start)

		if len(cycle.Readings) > 0 {
			s.emit(cycle)
		}
		if err != nil {
			// Cancellation is the only error a cycle surfaces.
			return nil
		}
		s.observer.CycleDone(time.Since(start))

		idle := s.period - time.Since(start)
		if idle < 0 {
			idle = 0
		}
		timer := time.NewTimer(idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runCycle samples every channel once. On cancellation it returns the
// readings completed so far together with the context error.
func (s *Scheduler) runCycle(ctx context.Context, start time.Time) (Cycle, error) {
	cycle := Cycle{Start: start}

	for _, ch := range s.channels {
		values := make([]float64, 0, s.samplesPerChannel)
		for i := 0; i < s.samplesPerChannel; i++ {
			if err := ctx.Err(); err != nil {
				return cycle, err
			}

			raw, err := s.sampler.Sample(ctx, ch.ID)
			if err != nil {
				if ctx.Err() != nil {
					return cycle, ctx.Err()
				}
				s.observer.SampleFailed(ch.ID)
				continue
			}
			s.observer.SampleOK(ch.ID)
			values = append(values, ch.Cal.Capacitance(raw))
		}

		if len(values) == 0 {
			// A gap, not a fabricated zero: the channel is skipped this cycle.
			log.Printf("Warning: no valid samples for channel %d (%s) this cycle", ch.ID, ch.Label)
			s.observer.ChannelGap(ch.ID)
			continue
		}

		capacitance := mean(values)
		s.observer.Capacitance(ch.ID, capacitance)
		cycle.Readings = append(cycle.Readings, Reading{
			Channel:     ch.ID,
			Timestamp:   start.Unix(),
			Capacitance: capacitance,
			Samples:     len(values),
		})
	}

	return cycle, nil
}

// emit hands the cycle to every sink. Sink failures are logged, not fatal:
// a full disk must not halt acquisition of the remaining sinks.
func (s *Scheduler) emit(cycle Cycle) {
	for _, sink := range s.sinks {
		if err := sink.WriteCycle(cycle); err != nil {
			log.Printf("Sink error: %v", err)
		}
	}
}

// release closes the transport if the close-on-exit policy asked for it.
func (s *Scheduler) release() {
	if !s.closeAfterRun || s.closer == nil {
		return
	}
	if err := s.closer.Close(); err != nil {
		log.Printf("Error closing transport: %v", err)
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
