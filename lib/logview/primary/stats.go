package primary

import (
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/rcrowley/go-metrics"
)

// Names of the counted events
const (
	EventSubmit                  = "Submit"
	EventTryAppend               = "TryAppend"
	EventConfirmSubmittedEntries = "ConfirmSubmittedEntries"
	EventSynchronizeNow          = "SynchronizeNow"
	EventRead                    = "Read"
	EventWrite                   = "Write"
	EventWriteConflict           = "WriteConflict"
	EventWriteFailed             = "WriteFailed"
	EventNotificationReceived    = "NotificationReceived"
	EventNotificationApplied     = "NotificationApplied"
	EventViewTransitionFailed    = "ViewTransitionFailed"
	EventGapRefresh              = "GapRefresh"
)

// latencyReservoirSize is the number of stabilization latency samples kept
const latencyReservoirSize = 1028

// statsCollector collects the statistics of one adaptor while collection is enabled
type statsCollector struct {
	registry  metrics.Registry
	latencies metrics.Histogram
}

func newStatsCollector() *statsCollector {
	registry := metrics.NewRegistry()
	latencies := metrics.NewHistogram(metrics.NewUniformSample(latencyReservoirSize))
	_ = registry.Register("StabilizationLatency", latencies)
	return &statsCollector{registry: registry, latencies: latencies}
}

func (s *statsCollector) count(event string) {
	metrics.GetOrRegisterCounter(event, s.registry).Inc(1)
}

func (s *statsCollector) stabilized(submitted time.Time) {
	s.latencies.Update(time.Since(submitted).Milliseconds())
}

func (s *statsCollector) snapshot() logview.Stats {
	stats := logview.Stats{EventCounters: make(map[string]int64)}
	s.registry.Each(func(name string, i interface{}) {
		if counter, ok := i.(metrics.Counter); ok {
			stats.EventCounters[name] = counter.Count()
		}
	})
	stats.StabilizationLatenciesMs = s.latencies.Snapshot().Sample().Values()
	return stats
}
