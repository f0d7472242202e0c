package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/paulbellamy/ratecounter"

	"github.com/bpowers/loadgen/internal/config"
	"github.com/bpowers/loadgen/internal/logging"
)

var log = logging.For("metrics")

const (
	// Histogram range and precision, expressed in microseconds: 5
	// significant figures across one microsecond to one hour.
	histMinUs   int64 = 1
	histMaxUs   int64 = int64(time.Hour / time.Microsecond)
	histSigFigs int64 = 5

	maxRecentLatencies         = 100
	maxRecentThroughputBuckets = 30
	maxSeriesEntries           = 60

	statsRefreshInterval = 500 * time.Millisecond

	ingestQueueFactor = 50
)

type throughputBucket struct {
	second int64
	count  uint64
}

// Aggregator ingests RequestMetrics with minimal contention and maintains
// the derived statistics a Snapshot exposes. Hot-path counters are plain
// atomics; min/max latency use compare-and-swap loops; everything that
// needs a map or the histogram is updated by the background processor,
// which takes a short write lock once per queued metric (updates are not
// grouped under a single lock acquisition), so ingest never blocks on the
// heavyweight path.
type Aggregator struct {
	url            string
	method         config.Method
	headers        []config.Header
	targetRequests int
	concurrent     int
	durationCap    time.Duration
	startTime      time.Time

	completedRequests  uint64
	errorCount         uint64
	totalBytesSent     uint64
	totalBytesReceived uint64

	minLatencyUs int64
	maxLatencyUs int64

	p50Us int64
	p90Us int64
	p95Us int64
	p99Us int64

	ingestCh chan config.RequestMetric
	dropOnce sync.Once

	// rateCounter tracks the instantaneous requests/sec over a 1s rolling
	// window, independent of the coarser per-second throughputSeries used
	// for the charts tab. Its own internal locking makes it safe to hit
	// from Record's hot path.
	rateCounter *ratecounter.RateCounter

	mu                      sync.RWMutex
	hist                    *hdrhistogram.Histogram
	statusCounts            map[int]uint64
	recentLatencies         []float64
	recentThroughputBuckets []throughputBucket
	throughputSeries        []ThroughputPoint
	latencySeries           []LatencyPoint
	lastSeriesSampleS       float64
	lastStatsRefresh        time.Time

	isComplete   int32
	endTime      time.Time
	completeOnce sync.Once

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an Aggregator for cfg. The run's start instant is captured
// now; callers that need the exact same instant used by the driver should
// read StartTime() back and derive jobs from it.
func New(cfg *config.TestConfig) *Aggregator {
	var rawURL string
	if cfg.URL != nil {
		rawURL = cfg.URL.String()
	}
	a := &Aggregator{
		url:            rawURL,
		method:         cfg.Method,
		headers:        cfg.Headers,
		targetRequests: cfg.Requests,
		concurrent:     cfg.Concurrent,
		durationCap:    cfg.Duration,
		startTime:      time.Now(),

		minLatencyUs: math.MaxInt64,
		maxLatencyUs: 0,

		hist:         hdrhistogram.New(histMinUs, histMaxUs, int(histSigFigs)),
		statusCounts: make(map[int]uint64),
		rateCounter:  ratecounter.NewRateCounter(time.Second),

		lastStatsRefresh: time.Now(),

		stopCh: make(chan struct{}),
	}
	a.ingestCh = make(chan config.RequestMetric, cfg.Concurrent*ingestQueueFactor)
	a.wg.Add(1)
	go a.processLoop()
	return a
}

// StartTime returns the monotonic origin this aggregator's run began at.
func (a *Aggregator) StartTime() time.Time {
	return a.startTime
}

// Record ingests one metric. It is non-blocking and wait-free on the hot
// path: atomics are updated immediately, and the metric is hand off to the
// batch processor via a buffered channel. If that channel is full (which
// should not happen given the bounded backpressure upstream), the metric is
// dropped from the histogram/status-count path and a warning is logged
// once; completed_requests has already been incremented so the driver's
// completion check stays valid.
func (a *Aggregator) Record(m config.RequestMetric) {
	if atomic.LoadInt32(&a.isComplete) != 0 {
		return
	}

	atomic.AddUint64(&a.completedRequests, 1)
	atomic.AddUint64(&a.totalBytesSent, m.BytesSent)
	atomic.AddUint64(&a.totalBytesReceived, m.BytesReceived)
	if m.IsError {
		atomic.AddUint64(&a.errorCount, 1)
	}
	a.rateCounter.Incr(1)

	latencyUs := int64(m.LatencyMS * 1000)
	casMin(&a.minLatencyUs, latencyUs)
	casMax(&a.maxLatencyUs, latencyUs)

	select {
	case a.ingestCh <- m:
	default:
		a.dropOnce.Do(func() {
			log.Warn("metric channel full, dropping metrics from histogram/status breakdown")
		})
	}

	a.checkCompletion()
}

func casMin(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v >= cur {
			return
		}
		if atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

func casMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

func (a *Aggregator) checkCompletion() {
	completed := atomic.LoadUint64(&a.completedRequests)
	elapsed := time.Since(a.startTime)

	targetHit := a.targetRequests > 0 && completed >= uint64(a.targetRequests)
	durationHit := a.durationCap > 0 && elapsed >= a.durationCap

	if targetHit || durationHit {
		a.MarkComplete()
	}
}

// MarkComplete is idempotent: only the first call sets end_time.
func (a *Aggregator) MarkComplete() {
	a.completeOnce.Do(func() {
		atomic.StoreInt32(&a.isComplete, 1)
		a.mu.Lock()
		a.endTime = time.Now()
		a.mu.Unlock()
	})
}

// IsComplete reports whether the run has finished.
func (a *Aggregator) IsComplete() bool {
	return atomic.LoadInt32(&a.isComplete) != 0
}

// Stop shuts the batch processor goroutine down, draining whatever remains
// queued first.
func (a *Aggregator) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *Aggregator) processLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case m := <-a.ingestCh:
			a.applyOne(m)
		case <-ticker.C:
			a.drainAvailable()
			a.refreshPercentilesIfDue()
		case <-a.stopCh:
			a.drainAvailable()
			a.refreshPercentilesIfDue()
			return
		}
	}
}

func (a *Aggregator) drainAvailable() {
	for {
		select {
		case m := <-a.ingestCh:
			a.applyOne(m)
		default:
			return
		}
	}
}

// applyOne folds a single metric into the status map, histogram, rolling
// windows and time series under a short write lock.
func (a *Aggregator) applyOne(m config.RequestMetric) {
	latencyUs := int64(m.LatencyMS * 1000)

	a.mu.Lock()
	defer a.mu.Unlock()

	if m.StatusCode > 0 {
		a.statusCounts[m.StatusCode]++
	}
	_ = a.hist.RecordValue(latencyUs)

	a.recentLatencies = append(a.recentLatencies, m.LatencyMS)
	if len(a.recentLatencies) > maxRecentLatencies {
		a.recentLatencies = a.recentLatencies[len(a.recentLatencies)-maxRecentLatencies:]
	}

	elapsed := time.Since(a.startTime).Seconds()
	secondBucket := int64(math.Floor(elapsed))
	if n := len(a.recentThroughputBuckets); n > 0 && a.recentThroughputBuckets[n-1].second == secondBucket {
		a.recentThroughputBuckets[n-1].count++
	} else {
		a.recentThroughputBuckets = append(a.recentThroughputBuckets, throughputBucket{second: secondBucket, count: 1})
		if len(a.recentThroughputBuckets) > maxRecentThroughputBuckets {
			a.recentThroughputBuckets = a.recentThroughputBuckets[len(a.recentThroughputBuckets)-maxRecentThroughputBuckets:]
		}
	}

	if elapsed-a.lastSeriesSampleS >= 1.0 {
		a.lastSeriesSampleS = elapsed

		var recentCount uint64
		window := a.recentThroughputBuckets
		if len(window) > 10 {
			window = window[len(window)-10:]
		}
		for _, b := range window {
			recentCount += b.count
		}
		var tps float64
		if len(window) > 0 {
			tps = float64(recentCount) / float64(len(window))
		}
		a.throughputSeries = append(a.throughputSeries, ThroughputPoint{TimestampS: elapsed, ReqPerSec: tps})
		if len(a.throughputSeries) > maxSeriesEntries {
			a.throughputSeries = a.throughputSeries[len(a.throughputSeries)-maxSeriesEntries:]
		}

		var sum float64
		for _, l := range a.recentLatencies {
			sum += l
		}
		var avg float64
		if len(a.recentLatencies) > 0 {
			avg = sum / float64(len(a.recentLatencies))
		}
		a.latencySeries = append(a.latencySeries, LatencyPoint{TimestampS: elapsed, AvgMS: avg})
		if len(a.latencySeries) > maxSeriesEntries {
			a.latencySeries = a.latencySeries[len(a.latencySeries)-maxSeriesEntries:]
		}
	}
}

func (a *Aggregator) refreshPercentilesIfDue() {
	a.mu.Lock()
	due := time.Since(a.lastStatsRefresh) >= statsRefreshInterval
	if due {
		a.lastStatsRefresh = time.Now()
	}
	if !due {
		a.mu.Unlock()
		return
	}
	p50 := a.hist.ValueAtQuantile(50)
	p90 := a.hist.ValueAtQuantile(90)
	p95 := a.hist.ValueAtQuantile(95)
	p99 := a.hist.ValueAtQuantile(99)
	a.mu.Unlock()

	atomic.StoreInt64(&a.p50Us, p50)
	atomic.StoreInt64(&a.p90Us, p90)
	atomic.StoreInt64(&a.p95Us, p95)
	atomic.StoreInt64(&a.p99Us, p99)
}

// Snapshot returns a consistent, read-only view of the aggregator's state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	statusCounts := make(map[int]uint64, len(a.statusCounts))
	for k, v := range a.statusCounts {
		statusCounts[k] = v
	}
	throughputSeries := make([]ThroughputPoint, len(a.throughputSeries))
	copy(throughputSeries, a.throughputSeries)
	latencySeries := make([]LatencyPoint, len(a.latencySeries))
	copy(latencySeries, a.latencySeries)
	endTime := a.endTime

	quantileMS := make(map[float64]float64, len(ReportQuantiles))
	for _, q := range ReportQuantiles {
		quantileMS[q] = float64(a.hist.ValueAtQuantile(q)) / 1000
	}
	buckets := bucketize(a.hist, histogramBucketCount)
	a.mu.RUnlock()

	minUs := atomic.LoadInt64(&a.minLatencyUs)
	minMS := 0.0
	if minUs != math.MaxInt64 {
		minMS = float64(minUs) / 1000
	}

	isComplete := a.IsComplete()

	return Snapshot{
		URL:            a.url,
		Method:         a.method,
		Headers:        a.headers,
		TargetRequests: a.targetRequests,
		Concurrent:     a.concurrent,
		Duration:       a.durationCap,
		StartTime:      a.startTime,
		EndTime:        endTime,
		HasEndTime:     isComplete && !endTime.IsZero(),

		CompletedRequests:  atomic.LoadUint64(&a.completedRequests),
		ErrorCount:         atomic.LoadUint64(&a.errorCount),
		TotalBytesSent:     atomic.LoadUint64(&a.totalBytesSent),
		TotalBytesReceived: atomic.LoadUint64(&a.totalBytesReceived),
		StatusCounts:       statusCounts,

		MinMS: minMS,
		MaxMS: float64(atomic.LoadInt64(&a.maxLatencyUs)) / 1000,
		P50MS: float64(atomic.LoadInt64(&a.p50Us)) / 1000,
		P90MS: float64(atomic.LoadInt64(&a.p90Us)) / 1000,
		P95MS: float64(atomic.LoadInt64(&a.p95Us)) / 1000,
		P99MS: float64(atomic.LoadInt64(&a.p99Us)) / 1000,

		CurrentThroughput: float64(a.rateCounter.Rate()),

		ThroughputSeries: throughputSeries,
		LatencySeries:    latencySeries,
		HistogramBuckets: buckets,
		QuantileMS:       quantileMS,

		IsComplete: isComplete,
	}
}

// histogramBucketCount is the number of equal-width buckets the text
// report's "Response time histogram" section prints, matching hey's
// default.
const histogramBucketCount = 10

// bucketize folds the HDR histogram's full, compressed distribution into n
// equal-width buckets spanning [hist.Min(), hist.Max()] so the report and
// charts tab can show a shape without retaining every raw sample. It walks
// CumulativeDistribution()'s brackets and re-bins their count deltas by
// value, since the underlying histogram is itself bucketed logarithmically
// rather than with the fixed linear width a report wants.
func bucketize(hist *hdrhistogram.Histogram, n int) []HistogramBucket {
	minMS := float64(hist.Min()) / 1000
	maxMS := float64(hist.Max()) / 1000

	if hist.TotalCount() == 0 || maxMS <= minMS {
		return []HistogramBucket{{MarkMS: minMS, Count: uint64(hist.TotalCount())}}
	}

	width := (maxMS - minMS) / float64(n)
	counts := make([]uint64, n)

	var prevCount int64
	for _, b := range hist.CumulativeDistribution() {
		delta := b.Count - prevCount
		prevCount = b.Count
		if delta <= 0 {
			continue
		}
		valMS := float64(b.ValueAt) / 1000
		idx := int((valMS - minMS) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		counts[idx] += uint64(delta)
	}

	buckets := make([]HistogramBucket, n)
	for i := 0; i < n; i++ {
		buckets[i] = HistogramBucket{MarkMS: minMS + width*float64(i), Count: counts[i]}
	}
	return buckets
}

// Reset restores the aggregator to a fresh-run state for cfg, for the
// interactive UI's "r" restart action. Reset is itself idempotent: calling
// it while a previous run is still complete simply starts a new one.
func (a *Aggregator) Reset(cfg *config.TestConfig) {
	a.Stop()

	a.mu.Lock()
	a.url = cfg.URL.String()
	a.method = cfg.Method
	a.headers = cfg.Headers
	a.targetRequests = cfg.Requests
	a.concurrent = cfg.Concurrent
	a.durationCap = cfg.Duration
	a.startTime = time.Now()

	a.hist = hdrhistogram.New(histMinUs, histMaxUs, int(histSigFigs))
	a.statusCounts = make(map[int]uint64)
	a.rateCounter = ratecounter.NewRateCounter(time.Second)
	a.recentLatencies = nil
	a.recentThroughputBuckets = nil
	a.throughputSeries = nil
	a.latencySeries = nil
	a.lastSeriesSampleS = 0
	a.lastStatsRefresh = time.Now()
	a.endTime = time.Time{}
	a.mu.Unlock()

	atomic.StoreUint64(&a.completedRequests, 0)
	atomic.StoreUint64(&a.errorCount, 0)
	atomic.StoreUint64(&a.totalBytesSent, 0)
	atomic.StoreUint64(&a.totalBytesReceived, 0)
	atomic.StoreInt64(&a.minLatencyUs, math.MaxInt64)
	atomic.StoreInt64(&a.maxLatencyUs, 0)
	atomic.StoreInt64(&a.p50Us, 0)
	atomic.StoreInt64(&a.p90Us, 0)
	atomic.StoreInt64(&a.p95Us, 0)
	atomic.StoreInt64(&a.p99Us, 0)
	atomic.StoreInt32(&a.isComplete, 0)

	a.completeOnce = sync.Once{}
	a.dropOnce = sync.Once{}
	a.stopCh = make(chan struct{})
	a.ingestCh = make(chan config.RequestMetric, cfg.Concurrent*ingestQueueFactor)

	a.wg.Add(1)
	go a.processLoop()
}
