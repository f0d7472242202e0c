// Package report renders a final Snapshot as the stable hey-style text
// report: a fixed contract consumers may parse or diff across runs.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bpowers/loadgen/internal/metrics"
)

// barWidth is the maximum width, in ■ characters, of a histogram bar.
const barWidth = 40

// Write renders s to w in the -o hey text format.
func Write(w io.Writer, s metrics.Snapshot) error {
	completed := s.CompletedRequests

	var sizePerRequest float64
	if completed > 0 {
		sizePerRequest = float64(s.TotalBytesReceived) / float64(completed)
	}

	weightedAvgMS := s.P50MS*0.6 + s.P90MS*0.3 + s.P95MS*0.1

	lines := []string{
		"Summary:",
		fmt.Sprintf("  Total:        %.4f secs", s.Elapsed().Seconds()),
		fmt.Sprintf("  Slowest:      %.4f secs", s.MaxMS/1000),
		fmt.Sprintf("  Fastest:      %.4f secs", s.MinMS/1000),
		fmt.Sprintf("  Average:      %.4f secs", weightedAvgMS/1000),
		fmt.Sprintf("  Requests/sec: %.4f", s.Throughput()),
		"",
		fmt.Sprintf("  Total data:   %d bytes", s.TotalBytesReceived),
		fmt.Sprintf("  Size/request: %.0f bytes", sizePerRequest),
		"",
		"Response time histogram:",
	}

	lines = append(lines, histogramLines(s.HistogramBuckets)...)
	lines = append(lines, "", "Latency distribution:")
	lines = append(lines, latencyLines(s.QuantileMS)...)
	lines = append(lines, "", "Status code distribution:")
	lines = append(lines, statusLines(s.StatusCounts, s.ErrorCount)...)

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func histogramLines(buckets []metrics.HistogramBucket) []string {
	var maxCount uint64
	for _, b := range buckets {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}

	out := make([]string, 0, len(buckets))
	for _, b := range buckets {
		barLen := 0
		if maxCount > 0 {
			barLen = int(float64(b.Count) / float64(maxCount) * barWidth)
		}
		if b.Count > 0 && barLen == 0 {
			barLen = 1
		}
		out = append(out, fmt.Sprintf("  %.3f [%d]\t|%s", b.MarkMS/1000, b.Count, strings.Repeat("■", barLen)))
	}
	return out
}

func latencyLines(quantileMS map[float64]float64) []string {
	out := make([]string, 0, len(metrics.ReportQuantiles))
	for _, q := range metrics.ReportQuantiles {
		out = append(out, fmt.Sprintf("  %.0f%% in %.4f secs", q, quantileMS[q]/1000))
	}
	return out
}

// statusLines reports per-status-code counts plus, when transport errors
// occurred, a trailing "[Connection Error]" line. statusCounts never
// contains an entry for code 0 (transport failures never reach a status
// code), so the connection-error count is derived as errorCount minus
// every non-2xx status code already counted.
func statusLines(statusCounts map[int]uint64, errorCount uint64) []string {
	codes := make([]int, 0, len(statusCounts))
	var accountedErrors uint64
	for code, count := range statusCounts {
		codes = append(codes, code)
		if code/100 != 2 {
			accountedErrors += count
		}
	}
	sort.Ints(codes)

	out := make([]string, 0, len(codes)+1)
	for _, code := range codes {
		out = append(out, fmt.Sprintf("  [%d]\t%d responses", code, statusCounts[code]))
	}

	if connErrors := errorCount - accountedErrors; connErrors > 0 {
		out = append(out, fmt.Sprintf("  [Connection Error]\t%d responses", connErrors))
	}
	return out
}
