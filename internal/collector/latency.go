package collector

import (
	"time"

	"github.com/codahale/hdrhistogram"
)

// Publish latencies are recorded in microseconds.
const (
	LatencyMin     = 1
	LatencyMax     = int64(time.Minute / time.Microsecond)
	LatencySigFigs = 3
)

// NewLatencyHistogram returns a histogram with the bounds every session and
// fold uses, so histograms can always be merged.
func NewLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(LatencyMin, LatencyMax, LatencySigFigs)
}

// RecordLatency records d, clamped to the histogram bounds.
func RecordLatency(h *hdrhistogram.Histogram, d time.Duration) {
	us := d.Microseconds()
	if us < LatencyMin {
		us = LatencyMin
	} else if us > LatencyMax {
		us = LatencyMax
	}
	_ = h.RecordValue(us)
}

// DurationMetrics summarises a latency distribution.
type DurationMetrics struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	P50   time.Duration
	P90   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// ComputeDurationMetrics reads a latency histogram. A nil or empty
// histogram yields zero metrics.
func ComputeDurationMetrics(h *hdrhistogram.Histogram) DurationMetrics {
	if h == nil || h.TotalCount() == 0 {
		return DurationMetrics{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return DurationMetrics{
		Count: h.TotalCount(),
		Min:   us(h.Min()),
		Max:   us(h.Max()),
		Avg:   time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   us(h.ValueAtQuantile(50)),
		P90:   us(h.ValueAtQuantile(90)),
		P95:   us(h.ValueAtQuantile(95)),
		P99:   us(h.ValueAtQuantile(99)),
	}
}

// mergeInto adds src to dst, creating dst when needed.
func mergeInto(dst, src *hdrhistogram.Histogram) *hdrhistogram.Histogram {
	if src == nil {
		return dst
	}
	if dst == nil {
		dst = NewLatencyHistogram()
	}
	dst.Merge(src)
	return dst
}
