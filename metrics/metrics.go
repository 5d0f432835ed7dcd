package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProcessingMetrics are registered per pipeline, the pipeline name is part of every metric name.
type ProcessingMetrics struct {
	sourceSlotGauge      prometheus.Gauge
	processedSlotGauge   prometheus.Gauge
	processedEpochGauge  prometheus.Gauge
	processedSlotCount   prometheus.Counter
	skippedSlotCount     *prometheus.CounterVec
	publishedRecordCount *prometheus.CounterVec
}

func NewProcessingMetrics(namespace, pipeline string) *ProcessingMetrics {
	prefix := fmt.Sprintf("%s_%s", namespace, pipeline)
	m := ProcessingMetrics{
		// metrics for slot processing
		processedSlotGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_processed_slot", prefix),
			Help: "The latest fully processed slot",
		}),
		processedEpochGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_processed_epoch", prefix),
			Help: "The epoch of the latest fully processed slot",
		}),
		processedSlotCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_processed_slot_count", prefix),
			Help: "The total number of processed slots",
		}),
		skippedSlotCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_skipped_slot_count", prefix),
			Help: "The total number of skipped slots by failure class",
		}, []string{"reason"}),
		publishedRecordCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_published_record_count", prefix),
			Help: "The total number of published records by stream",
		}, []string{"stream"}),
		// metrics for comparison to the beacon node
		sourceSlotGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_source_finalized_slot", prefix),
			Help: "The latest known finalized slot",
		}),
	}
	return &m
}

func (m *ProcessingMetrics) SetSourceSlot(slot uint64) {
	m.sourceSlotGauge.Set(float64(slot))
}

func (m *ProcessingMetrics) SetProcessedSlot(epoch, slot uint64) {
	m.processedEpochGauge.Set(float64(epoch))
	m.processedSlotGauge.Set(float64(slot))
	m.processedSlotCount.Inc()
}

func (m *ProcessingMetrics) IncSkippedSlots(reason string) {
	m.skippedSlotCount.WithLabelValues(reason).Inc()
}

func (m *ProcessingMetrics) AddPublishedRecords(stream string, count int) {
	m.publishedRecordCount.WithLabelValues(stream).Add(float64(count))
}
