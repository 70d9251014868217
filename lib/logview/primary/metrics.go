package primary

import (
	"fmt"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
)

// Process wide metrics of all adaptors, exposed in the Prometheus text format by the server
// (see vmetrics.WritePrometheus).

func eventCounter(backend, event string) *vmetrics.Counter {
	return vmetrics.GetOrCreateCounter(fmt.Sprintf(`dlv_logview_events_total{backend=%q,event=%q}`, backend, event))
}

func observeWriteDuration(backend string, start time.Time) {
	vmetrics.GetOrCreateHistogram(fmt.Sprintf(`dlv_logview_write_duration_seconds{backend=%q}`, backend)).Update(time.Since(start).Seconds())
}

func observeBatchSize(backend string, entries int) {
	vmetrics.GetOrCreateHistogram(fmt.Sprintf(`dlv_logview_batch_size{backend=%q}`, backend)).Update(float64(entries))
}

func activeAdaptors(backend string) *vmetrics.Counter {
	return vmetrics.GetOrCreateCounter(fmt.Sprintf(`dlv_logview_active_adaptors{backend=%q}`, backend))
}
