package report

import (
	"bytes"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/loadgen/internal/metrics"
)

func TestWriteProducesEveryStableSection(t *testing.T) {
	u, err := url.Parse("http://example.com")
	require.NoError(t, err)

	start := time.Now().Add(-time.Second)
	snap := metrics.Snapshot{
		URL:                u.String(),
		StartTime:          start,
		EndTime:            start.Add(time.Second),
		HasEndTime:         true,
		CompletedRequests:  100,
		ErrorCount:         5,
		TotalBytesSent:     1000,
		TotalBytesReceived: 2000,
		StatusCounts:       map[int]uint64{200: 95, 500: 3},
		MinMS:              1,
		MaxMS:              50,
		P50MS:              10,
		P90MS:              20,
		P95MS:              30,
		P99MS:              45,
		QuantileMS: map[float64]float64{
			10: 2, 25: 4, 50: 10, 75: 15, 90: 20, 95: 30, 99: 45,
		},
		HistogramBuckets: []metrics.HistogramBucket{
			{MarkMS: 0, Count: 50},
			{MarkMS: 10, Count: 30},
			{MarkMS: 20, Count: 0},
		},
		IsComplete: true,
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))
	out := buf.String()

	assert.Contains(t, out, "Summary:")
	assert.Contains(t, out, "Requests/sec:")
	assert.Contains(t, out, "Response time histogram:")
	assert.Contains(t, out, "Latency distribution:")
	assert.Contains(t, out, "50% in")
	assert.Contains(t, out, "Status code distribution:")
	assert.Contains(t, out, "[200]\t95 responses")
	assert.Contains(t, out, "[500]\t3 responses")
	assert.Contains(t, out, "[Connection Error]\t2 responses")
}

func TestWriteOmitsConnectionErrorLineWhenNoneOccurred(t *testing.T) {
	snap := metrics.Snapshot{
		StartTime:         time.Now(),
		HasEndTime:        false,
		CompletedRequests: 10,
		ErrorCount:        0,
		StatusCounts:      map[int]uint64{200: 10},
		QuantileMS:        map[float64]float64{},
		HistogramBuckets:  []metrics.HistogramBucket{{MarkMS: 0, Count: 10}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))
	assert.NotContains(t, buf.String(), "Connection Error")
}
