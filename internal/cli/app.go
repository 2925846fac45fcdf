package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ChuLiYu/artg-queue/internal/blockqueue"
	"github.com/ChuLiYu/artg-queue/internal/dedup"
	"github.com/ChuLiYu/artg-queue/internal/lookup"
	"github.com/ChuLiYu/artg-queue/internal/metrics"
	"github.com/ChuLiYu/artg-queue/internal/notify"
	"github.com/ChuLiYu/artg-queue/internal/pipeline"
	"github.com/ChuLiYu/artg-queue/internal/predictor"
	"github.com/ChuLiYu/artg-queue/internal/worker"
)

// app 組裝好的執行期組件
type app struct {
	cfg      *Config
	log      *slog.Logger
	lookups  *lookup.Store
	cache    *dedup.Cache
	queues   *blockqueue.Store
	hub      *notify.Hub
	metrics  *metrics.Collector
	pipeline *pipeline.Pipeline
	pool     *worker.Pool

	resultsDone chan struct{} // watchResults 結束時關閉；未啟動時為 nil
}

// newApp 載入 lookup 表並組裝管線
//
// 組裝順序：
//  1. lookup.Load（失敗則無法啟動）
//  2. 預測器（http 或 mean）
//  3. 去重快取、區塊佇列、通知中心
//  4. 指標回呼（metrics 為 nil 時不註冊）
//  5. Pipeline 與 ingestion worker pool（尚未啟動）
func newApp(cfg *Config, logger *slog.Logger, collector *metrics.Collector) (*app, error) {
	store, err := lookup.Load(cfg.Lookups.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load lookup tables: %w", err)
	}

	pred, err := newPredictor(cfg, store)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     logger,
		lookups: store,
		cache: dedup.New(dedup.Options{
			TTL:           cfg.Dedup.TTL,
			SweepInterval: cfg.Dedup.SweepInterval,
			Logger:        logger,
		}),
		queues:  blockqueue.New(),
		hub:     notify.NewHub(logger),
		metrics: collector,
	}

	if collector != nil {
		a.queues.OnChange(collector.SetQueueLength)
		a.cache.OnSweep(func(int) { collector.SetDedupEntries(a.cache.Len()) })
		a.hub.OnDrop(func(string) { collector.RecordNotificationDropped() })
	}

	a.pipeline, err = pipeline.New(pipeline.Options{
		Lookups:        store,
		Predictor:      pred,
		Dedup:          a.cache,
		Queues:         a.queues,
		Notifier:       a.hub,
		Metrics:        collector,
		PredictTimeout: cfg.Predictor.Timeout,
		Logger:         logger,
	})
	if err != nil {
		a.cache.Close()
		return nil, err
	}

	a.pool = worker.NewPool(cfg.Ingest.BufferSize, a.handleEvent, logger)
	return a, nil
}

func newPredictor(cfg *Config, store *lookup.Store) (predictor.Predictor, error) {
	switch strings.ToLower(cfg.Predictor.Kind) {
	case "http":
		return predictor.NewHTTPClient(cfg.Predictor.URL, cfg.Predictor.Timeout), nil
	case "mean":
		return predictor.Constant(store.TargetMean()), nil
	default:
		return nil, fmt.Errorf("unknown predictor kind %q", cfg.Predictor.Kind)
	}
}

// handleEvent 是 worker pool 的處理函式
func (a *app) handleEvent(ctx context.Context, payload map[string]any) error {
	out := a.pipeline.ProcessGateIn(ctx, payload)
	if out.Kind == pipeline.Failed {
		return errors.New(out.Reason)
	}
	return nil
}

// watchResults 消費 worker pool 的結果通道，寫入指標與 debug 日誌
//
// 迴圈在 pool.Stop 關閉結果通道後結束，因此 Stop 之後才處理完的事件也會被計入
func (a *app) watchResults() {
	a.resultsDone = make(chan struct{})
	go func() {
		defer close(a.resultsDone)
		for {
			r, err := a.pool.ReceiveResult(context.Background())
			if err != nil {
				return
			}
			a.metrics.RecordIngestTask(r.Success, r.Duration, r.Wait)
			if r.Success {
				a.log.Debug("Ingestion task done", "task_id", r.TaskID, "duration", r.Duration, "wait", r.Wait)
			} else {
				a.log.Debug("Ingestion task failed", "task_id", r.TaskID, "duration", r.Duration, "error", r.Error)
			}
		}
	}()
}

// close 依序停止：worker pool（處理完緩衝事件）→ 結果迴圈 → 通知中心 → 去重快取
func (a *app) close() {
	a.pool.Stop()
	if a.resultsDone != nil {
		<-a.resultsDone
	}
	a.hub.Close()
	a.cache.Close()
}
