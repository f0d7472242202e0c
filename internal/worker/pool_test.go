package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/loadgen/internal/config"
)

type fakeSink struct {
	mu      sync.Mutex
	metrics []config.RequestMetric
}

func (f *fakeSink) Record(m config.RequestMetric) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, m)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.metrics)
}

func TestPoolExecutesSubmittedJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := &config.TestConfig{URL: u, Method: config.MethodGET, Concurrent: 4}
	sink := &fakeSink{}
	pool := New(cfg, srv.Client(), sink)

	ctx := context.Background()
	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		job := config.RequestJob{URL: u, Method: config.MethodGET, StartInstant: time.Now()}
		require.True(t, pool.Submit(ctx, job))
	}

	require.Eventually(t, func() bool {
		return sink.count() == jobCount
	}, time.Second, 5*time.Millisecond)

	pool.Stop()
	pool.Wait()
}

func TestPoolSubmitRespectsContextCancellation(t *testing.T) {
	u, err := url.Parse("http://example.com")
	require.NoError(t, err)

	// Construct a Pool directly with no worker goroutines draining it, and
	// a single-slot queue, so Submit is guaranteed to block on the full
	// channel and the only way out is the cancelled context.
	pool := &Pool{jobs: make(chan config.RequestJob, 1)}
	pool.jobs <- config.RequestJob{URL: u}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := pool.Submit(ctx, config.RequestJob{URL: u})
	assert.False(t, ok)
}
