// Package executor performs a single HTTP transaction and turns its
// outcome, success or failure alike, into a config.RequestMetric.
package executor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bpowers/loadgen/internal/config"
)

const (
	// frameOverheadBytes approximates the request-line, Host header, and
	// other HTTP/1.1 framing that isn't captured by summing header pairs.
	frameOverheadBytes = 50
)

// Execute issues one HTTP transaction described by job via c, fully reads
// the response body, and returns the resulting metric. It never returns an
// error: every outcome, including a transport failure, is expressed as a
// RequestMetric with StatusCode 0 and IsError true.
func Execute(ctx context.Context, c *http.Client, job config.RequestJob) config.RequestMetric {
	bytesSent := estimateBytesSent(job)

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	req, err := buildRequest(ctx, job)
	if err != nil {
		return config.RequestMetric{
			TimestampS: time.Since(job.StartInstant).Seconds(),
			IsError:    true,
			BytesSent:  bytesSent,
		}
	}

	requestStart := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		latency := time.Since(requestStart)
		return config.RequestMetric{
			TimestampS: time.Since(job.StartInstant).Seconds(),
			LatencyMS:  float64(latency) / float64(time.Millisecond),
			StatusCode: 0,
			IsError:    true,
			BytesSent:  bytesSent,
		}
	}
	defer resp.Body.Close()

	n, _ := io.Copy(io.Discard, resp.Body)
	latency := time.Since(requestStart)

	statusClass := resp.StatusCode / 100

	return config.RequestMetric{
		TimestampS:    time.Since(job.StartInstant).Seconds(),
		LatencyMS:     float64(latency) / float64(time.Millisecond),
		StatusCode:    resp.StatusCode,
		IsError:       statusClass != 2,
		BytesSent:     bytesSent,
		BytesReceived: uint64(n),
	}
}

func buildRequest(ctx context.Context, job config.RequestJob) (*http.Request, error) {
	var body io.Reader
	if len(job.Body) > 0 {
		body = bytes.NewReader(job.Body)
	}

	req, err := http.NewRequestWithContext(ctx, string(job.Method), job.URL.String(), body)
	if err != nil {
		return nil, err
	}

	for _, h := range job.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	if job.BasicAuth != nil {
		req.SetBasicAuth(job.BasicAuth.Username, job.BasicAuth.Password)
	}

	return req, nil
}

func estimateBytesSent(job config.RequestJob) uint64 {
	var total uint64
	total += uint64(len(job.Method))
	total += uint64(len(job.URL.EscapedPath()))
	if q := job.URL.RawQuery; q != "" {
		total += uint64(len(q))
	}
	for _, h := range job.Headers {
		total += uint64(len(h.Name) + len(h.Value))
	}
	total += uint64(len(job.Body))
	total += frameOverheadBytes
	return total
}
