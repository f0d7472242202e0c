// Package metrics implements the aggregator (C5) that ingests per-request
// observations with minimal contention, and the read-only snapshot (C6)
// the UI and final report consume.
package metrics

import (
	"time"

	"github.com/bpowers/loadgen/internal/config"
)

// ThroughputPoint is one sample of (elapsed seconds, requests/sec).
type ThroughputPoint struct {
	TimestampS float64
	ReqPerSec  float64
}

// LatencyPoint is one sample of (elapsed seconds, average latency ms).
type LatencyPoint struct {
	TimestampS float64
	AvgMS      float64
}

// HistogramBucket is one equal-width bucket of the response-time
// histogram, its lower bound and the number of samples that fell in it.
type HistogramBucket struct {
	MarkMS float64
	Count  uint64
}

// ReportQuantiles are the percentiles the text report prints under
// "Latency distribution".
var ReportQuantiles = []float64{10, 25, 50, 75, 90, 95, 99}

// Snapshot is a consistent, read-only view of everything the UI and the
// final report need. It is safe to read while workers keep producing
// metrics: fields may advance between two calls, but each call sees
// internally consistent data.
type Snapshot struct {
	// Config echo.
	URL             string
	Method          config.Method
	Headers         []config.Header
	TargetRequests  int
	Concurrent      int
	Duration        time.Duration
	StartTime       time.Time
	EndTime         time.Time
	HasEndTime      bool

	// Counters.
	CompletedRequests  uint64
	ErrorCount         uint64
	TotalBytesSent     uint64
	TotalBytesReceived uint64
	StatusCounts       map[int]uint64

	// Latency scalars, in milliseconds.
	MinMS float64
	MaxMS float64
	P50MS float64
	P90MS float64
	P95MS float64
	P99MS float64

	// CurrentThroughput is the instantaneous requests/sec over the
	// trailing 1s window, as opposed to Throughput()'s whole-run average.
	CurrentThroughput float64

	// Time series, each bounded to at most 60 entries.
	ThroughputSeries []ThroughputPoint
	LatencySeries    []LatencyPoint

	// HistogramBuckets is the full-run response-time histogram, bucketed
	// into equal-width bins for the text report and charts tab.
	HistogramBuckets []HistogramBucket
	// QuantileMS maps a percentile (10, 25, 50, 75, 90, 95, 99) to its
	// latency in milliseconds, computed from the full-run HDR histogram.
	QuantileMS map[float64]float64

	IsComplete bool
	ShouldQuit bool
}

// Elapsed returns the wall-clock span of the run so far: EndTime-StartTime
// once complete and the end time is recorded, otherwise now-StartTime.
func (s Snapshot) Elapsed() time.Duration {
	if s.HasEndTime {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// Throughput returns the overall requests/second computed over Elapsed().
func (s Snapshot) Throughput() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.CompletedRequests) / elapsed
}
