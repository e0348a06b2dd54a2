package upd

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the request latency histogram buckets in
// nanoseconds, from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

const numCategories = int(CatTensor) + 1

// Metrics tracks operational statistics of an isolate. Counters are
// atomic so snapshots may be taken from any goroutine.
type Metrics struct {
	// Request counters, indexed by category
	RequestOps    [numCategories]atomic.Uint64
	RequestErrors [numCategories]atomic.Uint64

	// Lock statistics
	LockGrants   atomic.Uint64
	LockTimeouts atomic.Uint64

	// Watch statistics
	WatchDeliveries atomic.Uint64

	// File lifecycle
	FilesCreated   atomic.Uint64
	FilesDestroyed atomic.Uint64

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts); bucket[i] counts
	// requests with latency <= LatencyBuckets[i]
	LatencyHist [numLatencyBuckets]atomic.Uint64

	// Isolate lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRequest records one completed request of the given category
func (m *Metrics) RecordRequest(cat Category, result Result, latencyNs uint64) {
	i := int(cat)
	if i < 0 || i >= numCategories {
		return
	}
	m.RequestOps[i].Add(1)
	if result != OK {
		m.RequestErrors[i].Add(1)
	}
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for b, limit := range LatencyBuckets {
		if latencyNs <= limit {
			m.LatencyHist[b].Add(1)
		}
	}
}

// RecordLock records a lock completion
func (m *Metrics) RecordLock(granted bool) {
	if granted {
		m.LockGrants.Add(1)
	} else {
		m.LockTimeouts.Add(1)
	}
}

// RecordWatch records one watcher delivery
func (m *Metrics) RecordWatch(FileEvent) {
	m.WatchDeliveries.Add(1)
}

// RecordFile records a file creation or destruction
func (m *Metrics) RecordFile(created bool) {
	if created {
		m.FilesCreated.Add(1)
	} else {
		m.FilesDestroyed.Add(1)
	}
}

// Stop marks the isolate as stopped
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of the counters plus derived
// statistics.
type MetricsSnapshot struct {
	RequestOps    [numCategories]uint64
	RequestErrors [numCategories]uint64

	LockGrants   uint64
	LockTimeouts uint64

	WatchDeliveries uint64

	FilesCreated   uint64
	FilesDestroyed uint64
	FilesLive      uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns uint64
	LatencyP99Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps  uint64
	ErrorRate float64
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot

	var totalErrors uint64
	for i := 0; i < numCategories; i++ {
		snap.RequestOps[i] = m.RequestOps[i].Load()
		snap.RequestErrors[i] = m.RequestErrors[i].Load()
		snap.TotalOps += snap.RequestOps[i]
		totalErrors += snap.RequestErrors[i]
	}

	snap.LockGrants = m.LockGrants.Load()
	snap.LockTimeouts = m.LockTimeouts.Load()
	snap.WatchDeliveries = m.WatchDeliveries.Load()
	snap.FilesCreated = m.FilesCreated.Load()
	snap.FilesDestroyed = m.FilesDestroyed.Load()
	if snap.FilesCreated >= snap.FilesDestroyed {
		snap.FilesLive = snap.FilesCreated - snap.FilesDestroyed
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHist[i].Load()
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyHist[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHist[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing)
func (m *Metrics) Reset() {
	for i := 0; i < numCategories; i++ {
		m.RequestOps[i].Store(0)
		m.RequestErrors[i].Store(0)
	}
	m.LockGrants.Store(0)
	m.LockTimeouts.Store(0)
	m.WatchDeliveries.Store(0)
	m.FilesCreated.Store(0)
	m.FilesDestroyed.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyHist[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable collection of runtime measurements.
type Observer interface {
	// ObserveRequest is called once per completed request
	ObserveRequest(cat Category, result Result, latencyNs uint64)

	// ObserveLock is called when a lock request completes
	ObserveLock(granted bool)

	// ObserveWatch is called per watcher delivery
	ObserveWatch(e FileEvent)

	// ObserveFile is called on file creation (true) and destruction
	// (false)
	ObserveFile(created bool)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveRequest(Category, Result, uint64) {}
func (NoOpObserver) ObserveLock(bool)                        {}
func (NoOpObserver) ObserveWatch(FileEvent)                  {}
func (NoOpObserver) ObserveFile(bool)                        {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRequest(cat Category, result Result, latencyNs uint64) {
	o.metrics.RecordRequest(cat, result, latencyNs)
}

func (o *MetricsObserver) ObserveLock(granted bool) {
	o.metrics.RecordLock(granted)
}

func (o *MetricsObserver) ObserveWatch(e FileEvent) {
	o.metrics.RecordWatch(e)
}

func (o *MetricsObserver) ObserveFile(created bool) {
	o.metrics.RecordFile(created)
}

// observeRequest arranges for the observer to see the request's result
// once its callback fires.
func (iso *Iso) observeRequest(req *Request) {
	if _, ok := iso.observer.(NoOpObserver); ok {
		return
	}
	start := time.Now()
	cat := req.Type.Cat()
	orig := req.CB
	req.CB = func(r *Request) {
		iso.observer.ObserveRequest(cat, r.Result, uint64(time.Since(start).Nanoseconds()))
		if orig != nil {
			orig(r)
		}
	}
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
