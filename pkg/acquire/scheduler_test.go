package acquire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenoscope/golmr/pkg/calib"
)

var errNoReply = errors.New("sample retries exhausted")

// fakeSampler returns canned raw values per channel; channels in fail never
// produce a value. onSample runs before each sample and can cancel the run.
type fakeSampler struct {
	values   map[int]float64
	fail     map[int]bool
	failNext map[int]int // Fail the first n calls for a channel
	onSample func(channel int)
	calls    []int
}

func (f *fakeSampler) Sample(ctx context.Context, channel int) (float64, error) {
	if f.onSample != nil {
		f.onSample(channel)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.calls = append(f.calls, channel)
	if f.fail[channel] {
		return 0, errNoReply
	}
	if f.failNext[channel] > 0 {
		f.failNext[channel]--
		return 0, errNoReply
	}
	return f.values[channel], nil
}

// stopSink captures cycles and cancels the run after limit cycles.
type stopSink struct {
	cycles []Cycle
	limit  int
	cancel context.CancelFunc
}

func (s *stopSink) WriteCycle(c Cycle) error {
	s.cycles = append(s.cycles, c)
	if len(s.cycles) >= s.limit {
		s.cancel()
	}
	return nil
}

type countingCloser struct{ closed int }

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func linearChannels(ids ...int) []Channel {
	channels := make([]Channel, 0, len(ids))
	for _, id := range ids {
		channels = append(channels, Channel{ID: id, Cal: calib.Identity()})
	}
	return channels
}

func TestScheduler_AllSamplesSucceed(t *testing.T) {
	sampler := &fakeSampler{values: map[int]float64{1: 10, 2: 20}}
	channels := []Channel{
		{ID: 1, Cal: calib.Linear(1, 2)},
		{ID: 2, Cal: calib.Identity()},
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &stopSink{limit: 1, cancel: cancel}

	sched := New(sampler, channels, 4, time.Millisecond, sink)
	require.NoError(t, sched.Run(ctx))

	require.Len(t, sink.cycles, 1)
	readings := sink.cycles[0].Readings
	require.Len(t, readings, 2)

	assert.Equal(t, 1, readings[0].Channel)
	assert.InDelta(t, 1+2*10.0, readings[0].Capacitance, 1e-9)
	assert.Equal(t, 4, readings[0].Samples)

	assert.Equal(t, 2, readings[1].Channel)
	assert.InDelta(t, 20.0, readings[1].Capacitance, 1e-9)
	assert.Equal(t, 4, readings[1].Samples)

	// Cycle timestamp, not per-sample time
	assert.Equal(t, readings[0].Timestamp, readings[1].Timestamp)
	assert.Equal(t, sink.cycles[0].Start.Unix(), readings[0].Timestamp)
}

func TestScheduler_DeadChannelLeavesGap(t *testing.T) {
	// Channels 1-5, N=10; channel 1 reads raw 100, channel 3 never answers.
	sampler := &fakeSampler{
		values: map[int]float64{1: 100, 2: 1, 4: 4, 5: 5},
		fail:   map[int]bool{3: true},
	}
	channels := linearChannels(1, 2, 3, 4, 5)
	channels[0].Cal = calib.Linear(0.5, 1.25)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &stopSink{limit: 1, cancel: cancel}

	sched := New(sampler, channels, 10, time.Millisecond, sink)
	require.NoError(t, sched.Run(ctx))

	require.Len(t, sink.cycles, 1)
	readings := sink.cycles[0].Readings
	require.Len(t, readings, 4, "channel 3 must produce a gap, not a reading")

	ids := make([]int, 0, len(readings))
	for _, r := range readings {
		ids = append(ids, r.Channel)
		assert.Equal(t, 10, r.Samples)
	}
	assert.Equal(t, []int{1, 2, 4, 5}, ids)
	assert.InDelta(t, 0.5+1.25*100, readings[0].Capacitance, 1e-9)
}

func TestScheduler_PartialFailuresReduceCount(t *testing.T) {
	sampler := &fakeSampler{
		values:   map[int]float64{1: 50},
		failNext: map[int]int{1: 3},
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &stopSink{limit: 1, cancel: cancel}

	sched := New(sampler, linearChannels(1), 10, time.Millisecond, sink)
	require.NoError(t, sched.Run(ctx))

	require.Len(t, sink.cycles, 1)
	readings := sink.cycles[0].Readings
	require.Len(t, readings, 1)
	assert.Equal(t, 7, readings[0].Samples)
	assert.InDelta(t, 50.0, readings[0].Capacitance, 1e-9)
}

func TestScheduler_CancelMidCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	sampler := &fakeSampler{values: map[int]float64{1: 1, 2: 2, 3: 3, 4: 4, 5: 5}}
	sampler.onSample = func(channel int) {
		if channel == 3 {
			cancel()
		}
	}

	sink := &stopSink{limit: 100, cancel: func() {}}
	closer := &countingCloser{}

	sched := New(sampler, linearChannels(1, 2, 3, 4, 5), 2, time.Hour, sink)
	sched.CloseOnExit(closer)
	require.NoError(t, sched.Run(ctx))

	// Channels 1 and 2 were emitted, 3-5 were not sampled
	require.Len(t, sink.cycles, 1)
	readings := sink.cycles[0].Readings
	require.Len(t, readings, 2)
	assert.Equal(t, 1, readings[0].Channel)
	assert.Equal(t, 2, readings[1].Channel)
	for _, call := range sampler.calls {
		assert.NotContains(t, []int{4, 5}, call)
	}

	assert.Equal(t, 1, closer.closed, "transport must be closed exactly once")
}

func TestScheduler_PortLeftOpenWithoutClosePolicy(t *testing.T) {
	sampler := &fakeSampler{values: map[int]float64{1: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &stopSink{limit: 1, cancel: cancel}
	closer := &countingCloser{}

	sched := New(sampler, linearChannels(1), 1, time.Millisecond, sink)
	require.NoError(t, sched.Run(ctx))

	assert.Equal(t, 0, closer.closed)
}

func TestScheduler_TimestampsNonDecreasing(t *testing.T) {
	sampler := &fakeSampler{values: map[int]float64{1: 1, 2: 2}}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &stopSink{limit: 3, cancel: cancel}

	sched := New(sampler, linearChannels(1, 2), 2, time.Millisecond, sink)
	require.NoError(t, sched.Run(ctx))

	require.Len(t, sink.cycles, 3)
	last := map[int]int64{}
	for _, cycle := range sink.cycles {
		require.Len(t, cycle.Readings, 2, "no duplicate or missing channels per cycle")
		seen := map[int]bool{}
		for _, r := range cycle.Readings {
			assert.False(t, seen[r.Channel])
			seen[r.Channel] = true
			assert.GreaterOrEqual(t, r.Timestamp, last[r.Channel])
			last[r.Channel] = r.Timestamp
		}
	}
}

func TestScheduler_ObserverCallbacks(t *testing.T) {
	sampler := &fakeSampler{
		values: map[int]float64{1: 10},
		fail:   map[int]bool{2: true},
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &stopSink{limit: 1, cancel: cancel}

	obs := &recordingObserver{}
	sched := New(sampler, linearChannels(1, 2), 3, time.Millisecond, sink)
	sched.SetObserver(obs)
	require.NoError(t, sched.Run(ctx))

	assert.Equal(t, 3, obs.ok[1])
	assert.Equal(t, 3, obs.failed[2])
	assert.Equal(t, 1, obs.gaps[2])
	assert.Equal(t, 0, obs.gaps[1])
	assert.InDelta(t, 10.0, obs.capacitance[1], 1e-9)
}

type recordingObserver struct {
	ok          map[int]int
	failed      map[int]int
	gaps        map[int]int
	capacitance map[int]float64
	cycles      int
}

func (r *recordingObserver) SampleOK(ch int) {
	if r.ok == nil {
		r.ok = map[int]int{}
	}
	r.ok[ch]++
}

func (r *recordingObserver) SampleFailed(ch int) {
	if r.failed == nil {
		r.failed = map[int]int{}
	}
	r.failed[ch]++
}

func (r *recordingObserver) ChannelGap(ch int) {
	if r.gaps == nil {
		r.gaps = map[int]int{}
	}
	r.gaps[ch]++
}

func (r *recordingObserver) Capacitance(ch int, pF float64) {
	if r.capacitance == nil {
		r.capacitance = map[int]float64{}
	}
	r.capacitance[ch] = pF
}

func (r *recordingObserver) CycleDone(time.Duration) {
	r.cycles++
}
