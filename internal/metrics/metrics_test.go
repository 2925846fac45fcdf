package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	// Reset Prometheus registry to avoid duplicate registration
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	return NewCollector()
}

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.eventsReceived, "eventsReceived counter should be initialized")
	assert.NotNil(t, collector.eventsRejected, "eventsRejected counter should be initialized")
	assert.NotNil(t, collector.eventsDuplicate, "eventsDuplicate counter should be initialized")
	assert.NotNil(t, collector.predictions, "predictions counter should be initialized")
	assert.NotNil(t, collector.predictorFallback, "predictorFallback counter should be initialized")
	assert.NotNil(t, collector.predictedDuration, "predictedDuration histogram should be initialized")
	assert.NotNil(t, collector.predictorLatency, "predictorLatency histogram should be initialized")
	assert.NotNil(t, collector.queueLength, "queueLength gauge should be initialized")
	assert.NotNil(t, collector.dedupEntries, "dedupEntries gauge should be initialized")
}

func TestEventCounters(t *testing.T) {
	collector := newTestCollector(t)

	for i := 0; i < 5; i++ {
		collector.RecordReceived()
	}
	collector.RecordRejected()
	collector.RecordDuplicate()
	collector.RecordDuplicate()

	assert.Equal(t, 5.0, testutil.ToFloat64(collector.eventsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.eventsRejected))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.eventsDuplicate))
}

func TestRecordPrediction(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordPrediction(PathLive, 12.5)
	collector.RecordPrediction(PathLive, 30)
	collector.RecordPrediction(PathManual, 18)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.predictions.WithLabelValues(PathLive)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.predictions.WithLabelValues(PathManual)))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.predictedDuration))
}

func TestRecordPredictorCall(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordPredictorCall(20*time.Millisecond, false)
	collector.RecordPredictorCall(2*time.Second, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.predictorFallback))
}

func TestRecordIngestTask(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordIngestTask(true, 5*time.Millisecond, time.Millisecond)
	collector.RecordIngestTask(true, 8*time.Millisecond, 0)
	collector.RecordIngestTask(false, time.Second, 2*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.ingestTasks.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ingestTasks.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.ingestDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.ingestQueueWait))
}

func TestGauges(t *testing.T) {
	collector := newTestCollector(t)

	collector.SetQueueLength(7, 3)
	collector.SetQueueLength(1, 0)
	collector.SetDedupEntries(42)
	collector.SetSubscribers(2)
	collector.RecordNotificationDropped()

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.queueLength.WithLabelValues("7")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.queueLength.WithLabelValues("1")))
	assert.Equal(t, 42.0, testutil.ToFloat64(collector.dedupEntries))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.notificationDropped))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordReceived()
		collector.RecordRejected()
		collector.RecordDuplicate()
		collector.RecordPrediction(PathLive, 1)
		collector.RecordPredictorCall(time.Millisecond, true)
		collector.RecordNotificationDropped()
		collector.RecordIngestTask(false, time.Millisecond, 0)
		collector.SetQueueLength(1, 1)
		collector.SetDedupEntries(1)
		collector.SetSubscribers(1)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	collector := newTestCollector(t)
	collector.RecordReceived()

	srv := NewServer(9090)
	assert.Equal(t, ":9090", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "artg_events_received_total 1"))
}
