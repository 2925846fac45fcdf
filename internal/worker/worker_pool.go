// ============================================================================
// ARTG Ingestion Pool - 進閘事件並發處理池
// ============================================================================
//
// Package: internal/worker
// 文件: worker_pool.go
// 功能: 管理多個 Worker goroutine 的生命週期，將傳輸層收到的事件分發處理
//
// 設計模式:
//   採用 Worker Pool 模式（工作池模式）：
//   1. 固定數量的 Worker goroutine 持續運行
//   2. 通過共享的任務 channel 分發事件
//   3. 通過結果 channel 回報處理結果（serve 時由 ReceiveResult 迴圈消費，寫入指標）
//
// 架構組件:
//   ┌─────────────┐
//   │ gRPC / HTTP │ --Submit()/TrySubmit()--> taskCh
//   └─────────────┘
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ Handler(pipeline.ProcessGateIn)
//   │  │Worker N│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// 生命週期:
//   1. NewPool() - 創建 Pool，初始化 channels
//   2. Start(n) - 啟動 n 個 Worker goroutines
//   3. Submit(ctx, task) / TrySubmit(task) - 提交事件
//   4. Stop() - 停止接收，處理完緩衝中的事件後返回
//
// 並發控制:
//   - mu (RWMutex): Submit 持有讀鎖直到送出完成，Stop 持有寫鎖才關閉 taskCh，
//     因此不會向已關閉的 channel 發送
//   - stopCh 先於寫鎖關閉，讓阻塞中的 Submit 先退出
//   - WaitGroup: 追蹤所有 Worker，確保優雅關閉
//
// 錯誤處理:
//   - ErrPoolNotStarted: Pool 未啟動時提交任務
//   - ErrPoolClosed: Pool 已關閉時提交任務
//   - ErrPoolFull: TrySubmit 時緩衝已滿（傳輸層轉為背壓錯誤）
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrPoolClosed 表示當前 Pool 已關閉，無法提交新任務
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted 表示 Pool 尚未啟動，無法提交任務
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolFull 表示任務緩衝已滿
	ErrPoolFull = errors.New("worker pool is full")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Pool 代表 Worker 池，管理多個並發的 Worker
type Pool struct {
	workers  []*Worker
	taskCh   chan Task
	resultCh chan Result
	stopCh   chan struct{}
	handler  Handler
	log      *slog.Logger
	stats    counters

	baseCtx    context.Context
	cancelBase context.CancelFunc

	wg       sync.WaitGroup
	started  bool
	stopped  bool
	mu       sync.RWMutex // 保護 started / stopped 與 taskCh 的關閉
	stopOnce sync.Once
}

// Stats 處理計數快照
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
	Workers   int   `json:"workers"`
}

// ============================================================================
// 核心方法實作
// ============================================================================

// NewPool 建立新的 Worker Pool
//
// 參數：
//   - bufferSize: 任務和結果通道的緩衝大小
//   - handler: 處理每個事件的函式
//   - logger: 可為 nil（使用 slog.Default）
func NewPool(bufferSize int, handler Handler, logger *slog.Logger) *Pool {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:    make([]*Worker, 0),
		taskCh:     make(chan Task, bufferSize),
		resultCh:   make(chan Result, bufferSize),
		stopCh:     make(chan struct{}),
		handler:    handler,
		log:        logger,
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Start 啟動指定數量的 Worker
//
// 返回值：
//   - error: Pool 已啟動、已停止或 workerCount <= 0
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	if p.stopped {
		return ErrPoolClosed
	}
	if workerCount <= 0 {
		return errors.New("worker count must be positive")
	}

	for i := 0; i < workerCount; i++ {
		w := newWorker(i, p.taskCh, p.resultCh, p.handler, p.log, &p.stats)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(p.baseCtx)
		}(w)
	}

	p.started = true
	p.log.Info("Worker pool started", "workers", workerCount, "buffer", cap(p.taskCh))
	return nil
}

// Submit 提交任務，緩衝滿時阻塞直到 ctx 結束或 Pool 停止
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.checkOpen(); err != nil {
		return err
	}

	select {
	case p.taskCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 非阻塞提交，緩衝滿時返回 ErrPoolFull
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.checkOpen(); err != nil {
		return err
	}

	select {
	case p.taskCh <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// checkOpen 需在持有鎖時呼叫
func (p *Pool) checkOpen() error {
	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolClosed
	}
	return nil
}

// ReceiveResult 從結果通道接收執行結果
//
// 返回值：
//   - error: Pool 已關閉且結果已讀完時返回 ErrPoolClosed，ctx 結束時返回 ctx.Err()
func (p *Pool) ReceiveResult(ctx context.Context) (Result, error) {
	select {
	case result, ok := <-p.resultCh:
		if !ok {
			return Result{}, ErrPoolClosed
		}
		return result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop 優雅地關閉 Worker Pool（可重複呼叫）
//
// 關閉流程：
//  1. 關閉 stopCh，讓阻塞中的 Submit 返回
//  2. 取得寫鎖，設定 stopped 並關閉 taskCh
//  3. Worker 處理完緩衝中的事件後退出
//  4. 關閉 resultCh
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)

		p.mu.Lock()
		wasStarted := p.started
		p.stopped = true
		close(p.taskCh)
		p.mu.Unlock()

		p.wg.Wait()
		p.cancelBase()
		close(p.resultCh)

		if wasStarted {
			st := p.Stats()
			p.log.Info("Worker pool stopped", "processed", st.Processed, "failed", st.Failed)
		}
	})
}

// Stats 返回處理計數
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.stats.processed.Load(),
		Failed:    p.stats.failed.Load(),
		Pending:   len(p.taskCh),
		Workers:   p.GetWorkerCount(),
	}
}

// GetWorkerCount 返回當前 Worker 數量
func (p *Pool) GetWorkerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// IsStarted 檢查 Pool 是否已啟動
func (p *Pool) IsStarted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}
