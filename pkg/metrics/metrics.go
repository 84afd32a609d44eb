// Package metrics exposes acquisition counters to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xenoscope/golmr/pkg/acquire"
)

// Ensure Prom implements the acquisition observer.
var _ acquire.Observer = (*Prom)(nil)

// Prom counts samples, failures, gaps and cycles, and tracks the latest
// capacitance per channel.
type Prom struct {
	samplesOK     *prometheus.CounterVec
	samplesFailed *prometheus.CounterVec
	gaps          *prometheus.CounterVec
	cycles        prometheus.Counter
	cycleSeconds  prometheus.Histogram
	capacitance   *prometheus.GaugeVec
}

// New registers the acquisition metrics with reg (the default registry when
// reg is nil) and returns the observer.
func New(reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prom{
		samplesOK: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "golmr_samples_total",
			Help: "Successful raw samples per channel.",
		}, []string{"channel"}),
		samplesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "golmr_sample_failures_total",
			Help: "Samples dropped after exhausting retries, per channel.",
		}, []string{"channel"}),
		gaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "golmr_channel_gaps_total",
			Help: "Cycles in which a channel produced no reading at all.",
		}, []string{"channel"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "golmr_cycles_total",
			Help: "Completed acquisition cycles.",
		}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "golmr_cycle_duration_seconds",
			Help:    "Active sampling time per cycle, excluding the idle period.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		capacitance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "golmr_capacitance_pf",
			Help: "Latest mean capacitance per channel in pF.",
		}, []string{"channel"}),
	}

	reg.MustRegister(p.samplesOK, p.samplesFailed, p.gaps, p.cycles, p.cycleSeconds, p.capacitance)
	return p
}

// SampleOK implements acquire.Observer.
func (p *Prom) SampleOK(channel int) {
	p.samplesOK.WithLabelValues(strconv.Itoa(channel)).Inc()
}

// SampleFailed implements acquire.Observer.
func (p *Prom) SampleFailed(channel int) {
	p.samplesFailed.WithLabelValues(strconv.Itoa(channel)).Inc()
}

// ChannelGap implements acquire.Observer.
func (p *Prom) ChannelGap(channel int) {
	p.gaps.WithLabelValues(strconv.Itoa(channel)).Inc()
}

// Capacitance implements acquire.Observer.
func (p *Prom) Capacitance(channel int, pF float64) {
	p.capacitance.WithLabelValues(strconv.Itoa(channel)).Set(pF)
}

// CycleDone implements acquire.Observer.
func (p *Prom) CycleDone(elapsed time.Duration) {
	p.cycles.Inc()
	p.cycleSeconds.Observe(elapsed.Seconds())
}
