// Package driver implements the workload driver (C4): it produces
// RequestJobs honoring the request-count and duration caps, submits them to
// a worker pool, and signals completion to the aggregator.
package driver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bpowers/loadgen/internal/client"
	"github.com/bpowers/loadgen/internal/config"
	"github.com/bpowers/loadgen/internal/logging"
	"github.com/bpowers/loadgen/internal/metrics"
	"github.com/bpowers/loadgen/internal/worker"
)

var log = logging.For("driver")

// safetyCapRequests bounds an otherwise-unbounded run (requests==0 &&
// duration==0), per the spec's internal safety cap.
const safetyCapRequests = 1_000_000

// submissionBatchSize is how many jobs the submission loop issues before
// yielding cooperatively.
const submissionBatchSize = 1000

// drainWindow is how long the driver waits after the last job is submitted
// for in-flight responses to complete and be ingested before marking the
// aggregator complete.
const drainWindow = 500 * time.Millisecond

// Driver owns one run's lifecycle: Initialized -> Running -> Draining ->
// Complete, or Cancelled from any non-terminal state.
type Driver struct {
	cfg        *config.TestConfig
	aggregator *metrics.Aggregator
	pool       *worker.Pool
	running    int32
}

// New validates cfg and builds a Driver ready to Run. The aggregator's
// StartTime is used as the monotonic origin for every job this driver
// submits.
func New(cfg *config.TestConfig, aggregator *metrics.Aggregator) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{cfg: cfg, aggregator: aggregator}
	atomic.StoreInt32(&d.running, 1)
	return d, nil
}

// Stop requests cancellation: the submission loop stops at the next batch
// boundary and workers exit at their next job-receive timeout.
func (d *Driver) Stop() {
	atomic.StoreInt32(&d.running, 0)
}

func (d *Driver) isRunning() bool {
	return atomic.LoadInt32(&d.running) != 0
}

// Run blocks until the run completes, the request cap or duration cap
// trips, or Stop is called. It always returns once the aggregator has been
// marked complete.
func (d *Driver) Run(ctx context.Context) {
	httpClient := client.New(d.cfg)
	d.pool = worker.New(d.cfg, httpClient, d.aggregator)

	if d.cfg.Duration > 0 {
		go d.runDurationTimer(d.cfg.Duration)
	}

	d.submit(ctx)

	d.pool.Stop()

	time.Sleep(drainWindow)

	d.aggregator.MarkComplete()

	d.pool.Wait()

	log.WithField("completed", true).Debug("run finished")
}

func (d *Driver) runDurationTimer(duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	<-timer.C
	d.Stop()
}

func (d *Driver) submit(ctx context.Context) {
	jobsToSubmit := safetyCapRequests
	if d.cfg.Requests > 0 {
		jobsToSubmit = d.cfg.Requests
		if jobsToSubmit > safetyCapRequests {
			jobsToSubmit = safetyCapRequests
		}
	}

	submitted := 0
	for submitted < jobsToSubmit {
		if !d.isRunning() {
			return
		}

		batchEnd := submitted + submissionBatchSize
		if batchEnd > jobsToSubmit {
			batchEnd = jobsToSubmit
		}

		for ; submitted < batchEnd; submitted++ {
			if !d.isRunning() {
				return
			}
			job := config.NewJob(d.cfg, d.aggregator.StartTime())
			if !d.pool.Submit(ctx, job) {
				return
			}
		}

		// Yield cooperatively between batches so the duration timer and
		// external cancellation get a chance to run.
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
