// Package worker implements the fixed-size pool of cooperative workers that
// pull RequestJobs from a shared queue, execute them against the shared
// HTTP client, and emit RequestMetrics to the aggregator.
package worker

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bpowers/loadgen/internal/config"
	"github.com/bpowers/loadgen/internal/executor"
	"github.com/bpowers/loadgen/internal/logging"
)

var log = logging.For("worker")

const jobReceiveTimeout = 100 * time.Millisecond

// jobQueueFactor sizes the shared job channel relative to concurrency.
// metricQueueFactor is not referenced in this package: the metric channel
// is the aggregator's ingest queue, sized by its own factor of the same value.
const (
	jobQueueFactor    = 100
	metricQueueFactor = 50
)

// MetricSink is anything that can absorb a finished RequestMetric. The
// aggregator satisfies this; tests can substitute a channel-backed fake.
type MetricSink interface {
	Record(config.RequestMetric)
}

// Pool is a fixed-size set of workers sharing one job queue and one HTTP
// client. Workers stop when running flips to false, checking on a
// ~100ms cadence so they don't block shutdown indefinitely on an empty
// queue.
type Pool struct {
	client    *http.Client
	jobs      chan config.RequestJob
	sink      MetricSink
	running   int32
	rateLimit float64

	wg sync.WaitGroup
}

// New builds a Pool of cfg.Concurrent workers sharing client, submitting
// finished metrics to sink.
func New(cfg *config.TestConfig, client *http.Client, sink MetricSink) *Pool {
	p := &Pool{
		client:    client,
		jobs:      make(chan config.RequestJob, cfg.Concurrent*jobQueueFactor),
		sink:      sink,
		rateLimit: cfg.RateLimit,
	}
	atomic.StoreInt32(&p.running, 1)

	for i := 0; i < cfg.Concurrent; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

// Submit hands a job to the pool, blocking if the job queue is full. This
// backpressure is what keeps the submission task's rate matched to the
// pool's drain rate.
func (p *Pool) Submit(ctx context.Context, job config.RequestJob) bool {
	select {
	case p.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop flips the running flag so every worker exits at its next job-receive
// timeout or job completion.
func (p *Pool) Stop() {
	atomic.StoreInt32(&p.running, 0)
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) isRunning() bool {
	return atomic.LoadInt32(&p.running) != 0
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	var limiter *rate.Limiter
	if p.rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.rateLimit), 1)
	}

	for p.isRunning() {
		job, ok := p.receiveJob()
		if !ok {
			continue
		}

		if limiter != nil {
			_ = limiter.Wait(context.Background())
		}

		metric := executor.Execute(context.Background(), p.client, job)
		p.sink.Record(metric)
	}
}

// receiveJob waits up to jobReceiveTimeout for a job so the worker can
// re-check the running flag periodically even when the queue is empty.
func (p *Pool) receiveJob() (config.RequestJob, bool) {
	timer := time.NewTimer(jobReceiveTimeout)
	defer timer.Stop()

	select {
	case job := <-p.jobs:
		return job, true
	case <-timer.C:
		return config.RequestJob{}, false
	}
}
