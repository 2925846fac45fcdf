// ============================================================================
// ARTG Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露進閘預測管線的運行指標
//
// 指標分類:
//
//   1. 事件計數器 (Counter):
//      - artg_events_received_total: 收到的進閘事件總數
//      - artg_events_rejected_total: 堆疊驗證拒絕數
//      - artg_events_duplicate_total: 去重丟棄數
//      - artg_predictions_total{path}: 完成的預測數（live / manual）
//      - artg_predictor_fallback_total: 預測器失敗改用平均值的次數
//      - artg_notifications_dropped_total: 訂閱者緩衝滿而丟棄的通知數
//      - artg_ingest_tasks_total{status}: worker pool 完成的任務數（success / failed）
//
//   2. 分佈 (Histogram):
//      - artg_predicted_duration_minutes: 預測處理時間分佈
//      - artg_predictor_latency_seconds: 預測器呼叫延遲
//      - artg_ingest_task_duration_seconds: 單一事件在 worker 中的處理時間
//      - artg_ingest_queue_wait_seconds: 事件從傳輸層收到到開始處理的等待時間
//
//   3. 狀態 (Gauge):
//      - artg_block_queue_length{block}: 各區塊佇列長度
//      - artg_dedup_cache_entries: 去重快取條目數
//      - artg_subscribers: 即時通知訂閱者數
//
// Prometheus 查詢示例:
//
//   # 預測器失敗率
//   rate(artg_predictor_fallback_total[5m]) / rate(artg_predictions_total[5m])
//
//   # 95 分位預測時間
//   histogram_quantile(0.95, artg_predicted_duration_minutes_bucket)
//
// HTTP 端點:
//   通過 /metrics 端點暴露，默認端口 9090
//
// 所有 Record* 方法在 nil *Collector 上是 no-op，方便測試時不注入指標
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 預測路徑標籤
const (
	PathLive   = "live"
	PathManual = "manual"
)

// Collector Prometheus 指標收集器
type Collector struct {
	// 事件相關指標
	eventsReceived      prometheus.Counter
	eventsRejected      prometheus.Counter
	eventsDuplicate     prometheus.Counter
	predictions         *prometheus.CounterVec
	predictorFallback   prometheus.Counter
	notificationDropped prometheus.Counter
	ingestTasks         *prometheus.CounterVec

	// 效能指標
	predictedDuration prometheus.Histogram
	predictorLatency  prometheus.Histogram
	ingestDuration    prometheus.Histogram
	ingestQueueWait   prometheus.Histogram

	// 狀態指標
	queueLength  *prometheus.GaugeVec
	dedupEntries prometheus.Gauge
	subscribers  prometheus.Gauge
}

// NewCollector 創建新的指標收集器並註冊到 prometheus.DefaultRegisterer
func NewCollector() *Collector {
	c := &Collector{
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artg_events_received_total",
			Help: "Total number of gate-in events received",
		}),
		eventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artg_events_rejected_total",
			Help: "Total number of gate-in events rejected by stack validation",
		}),
		eventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artg_events_duplicate_total",
			Help: "Total number of duplicate gate-in events dropped",
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artg_predictions_total",
			Help: "Total number of duration predictions produced",
		}, []string{"path"}),
		predictorFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artg_predictor_fallback_total",
			Help: "Total number of predictions that fell back to the global mean",
		}),
		notificationDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artg_notifications_dropped_total",
			Help: "Total number of notifications dropped for slow subscribers",
		}),
		predictedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "artg_predicted_duration_minutes",
			Help:    "Predicted truck processing duration in minutes",
			Buckets: []float64{5, 10, 15, 20, 25, 30, 40, 50, 60, 90},
		}),
		predictorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "artg_predictor_latency_seconds",
			Help:    "Predictor call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ingestTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artg_ingest_tasks_total",
			Help: "Total number of ingestion tasks completed by the worker pool",
		}, []string{"status"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "artg_ingest_task_duration_seconds",
			Help:    "Time a worker spent processing one gate-in event",
			Buckets: prometheus.DefBuckets,
		}),
		ingestQueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "artg_ingest_queue_wait_seconds",
			Help:    "Time a gate-in event waited in the pool buffer before processing",
			Buckets: prometheus.DefBuckets,
		}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "artg_block_queue_length",
			Help: "Current number of trucks queued per block",
		}, []string{"block"}),
		dedupEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "artg_dedup_cache_entries",
			Help: "Current number of entries in the deduplication cache",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "artg_subscribers",
			Help: "Current number of live notification subscribers",
		}),
	}

	// 註冊所有指標
	prometheus.MustRegister(c.eventsReceived)
	prometheus.MustRegister(c.eventsRejected)
	prometheus.MustRegister(c.eventsDuplicate)
	prometheus.MustRegister(c.predictions)
	prometheus.MustRegister(c.predictorFallback)
	prometheus.MustRegister(c.notificationDropped)
	prometheus.MustRegister(c.predictedDuration)
	prometheus.MustRegister(c.predictorLatency)
	prometheus.MustRegister(c.ingestTasks)
	prometheus.MustRegister(c.ingestDuration)
	prometheus.MustRegister(c.ingestQueueWait)
	prometheus.MustRegister(c.queueLength)
	prometheus.MustRegister(c.dedupEntries)
	prometheus.MustRegister(c.subscribers)

	return c
}

// RecordReceived 記錄收到事件
func (c *Collector) RecordReceived() {
	if c == nil {
		return
	}
	c.eventsReceived.Inc()
}

// RecordRejected 記錄驗證拒絕
func (c *Collector) RecordRejected() {
	if c == nil {
		return
	}
	c.eventsRejected.Inc()
}

// RecordDuplicate 記錄重複事件
func (c *Collector) RecordDuplicate() {
	if c == nil {
		return
	}
	c.eventsDuplicate.Inc()
}

// RecordPrediction 記錄一次預測結果
func (c *Collector) RecordPrediction(path string, minutes float64) {
	if c == nil {
		return
	}
	c.predictions.WithLabelValues(path).Inc()
	c.predictedDuration.Observe(minutes)
}

// RecordPredictorCall 記錄預測器呼叫延遲與是否改用平均值
func (c *Collector) RecordPredictorCall(latency time.Duration, fellBack bool) {
	if c == nil {
		return
	}
	c.predictorLatency.Observe(latency.Seconds())
	if fellBack {
		c.predictorFallback.Inc()
	}
}

// RecordNotificationDropped 記錄丟棄的通知
func (c *Collector) RecordNotificationDropped() {
	if c == nil {
		return
	}
	c.notificationDropped.Inc()
}

// RecordIngestTask 記錄 worker pool 完成的一個任務
func (c *Collector) RecordIngestTask(success bool, duration, queueWait time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	c.ingestTasks.WithLabelValues(status).Inc()
	c.ingestDuration.Observe(duration.Seconds())
	c.ingestQueueWait.Observe(queueWait.Seconds())
}

// SetQueueLength 更新區塊佇列長度
func (c *Collector) SetQueueLength(blockID, length int) {
	if c == nil {
		return
	}
	c.queueLength.WithLabelValues(strconv.Itoa(blockID)).Set(float64(length))
}

// SetDedupEntries 更新去重快取大小
func (c *Collector) SetDedupEntries(n int) {
	if c == nil {
		return
	}
	c.dedupEntries.Set(float64(n))
}

// SetSubscribers 更新訂閱者數量
func (c *Collector) SetSubscribers(n int) {
	if c == nil {
		return
	}
	c.subscribers.Set(float64(n))
}

// NewServer 建立 Prometheus metrics HTTP 伺服器（/metrics）
//
// 參數：
//   - port: HTTP 伺服器端口
//
// 返回值：
//   - *http.Server: 尚未啟動的伺服器，由呼叫者負責 ListenAndServe / Shutdown
func NewServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
