// ============================================================================
// ARTG 事件管線 - 進閘事件的核心協調器
// ============================================================================
//
// Package: internal/pipeline
// 文件: pipeline.go
// 功能: 協調驗證、去重、特徵推導、預測與通知/入佇列
//
// 架構設計:
//   Pipeline 是系統的"大腦"，負責協調以下組件：
//   - stack.Validate: 區塊堆疊准入規則
//   - dedup.Cache: TTL 去重
//   - features.Deriver: 特徵向量推導
//   - predictor.Predictor: 外部模型（可失敗，失敗時改用全域平均）
//   - blockqueue.Store: 區塊佇列（只有手動加入路徑會寫入）
//   - Notifier: 即時通知出口
//
// 兩條路徑共用同一個核心:
//   1. ProcessGateIn (即時路徑)
//      normalize → resolve block → validate → dedup → derive → predict → 通知
//      不寫入區塊佇列
//   2. AddTruck (手動路徑)
//      參數檢查 → validate → dedup → derive → predict → 計算預計完成時間 → append
//
// 錯誤處理:
//   - 驗證失敗: 即時路徑發送 PREDICTION_REJECTED；手動路徑回傳錯誤
//   - 重複事件: 即時路徑靜默丟棄；手動路徑回傳 ErrDuplicateEvent
//   - 查表缺失: 由 Deriver 套用預設值，永不外露
//   - 預測失敗/超時/非有限值: 改用 TargetMean，記錄日誌與指標
//
// 並發安全:
//   - Pipeline 本身無可變狀態，所有共享狀態都在各自同步的 store 中
//   - 可被多個 worker goroutine 與 HTTP handler 同時呼叫
//
// ============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ChuLiYu/artg-queue/internal/blockqueue"
	"github.com/ChuLiYu/artg-queue/internal/dedup"
	"github.com/ChuLiYu/artg-queue/internal/features"
	"github.com/ChuLiYu/artg-queue/internal/lookup"
	"github.com/ChuLiYu/artg-queue/internal/metrics"
	"github.com/ChuLiYu/artg-queue/internal/predictor"
	"github.com/ChuLiYu/artg-queue/internal/stack"
	"github.com/ChuLiYu/artg-queue/pkg/types"
)

// DefaultPredictTimeout 預測器呼叫的預設超時
const DefaultPredictTimeout = 2 * time.Second

// Notifier 即時通知出口（例如 notify.Hub）
type Notifier interface {
	Publish(n types.Notification) int
}

// ============================================================================
// 資料結構定義
// ============================================================================

// Kind 事件處理的終止狀態
type Kind int

const (
	Predicted Kind = iota
	Rejected
	DroppedDuplicate
	Failed
)

func (k Kind) String() string {
	switch k {
	case Predicted:
		return "predicted"
	case Rejected:
		return "rejected"
	case DroppedDuplicate:
		return "dropped_duplicate"
	default:
		return "failed"
	}
}

// Outcome 單一事件的處理結果
type Outcome struct {
	Kind     Kind
	TruckID  string
	Block    int
	Duration float64 // 分鐘，只在 Predicted 時有效
	FellBack bool    // 預測器失敗改用平均值
	Reason   string  // Rejected / Failed 的原因
}

// Options Pipeline 配置
type Options struct {
	Lookups        *lookup.Store
	Predictor      predictor.Predictor
	Dedup          *dedup.Cache
	Queues         *blockqueue.Store
	Notifier       Notifier           // 可為 nil
	Metrics        *metrics.Collector // 可為 nil
	PredictTimeout time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// Pipeline 核心協調器
type Pipeline struct {
	lookups   *lookup.Store
	deriver   *features.Deriver
	predictor predictor.Predictor
	dedup     *dedup.Cache
	queues    *blockqueue.Store
	notifier  Notifier
	metrics   *metrics.Collector
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// ============================================================================
// 核心方法實作
// ============================================================================

// New 建立新的 Pipeline
//
// 返回值：
//   - error: 缺少必要組件（Lookups, Predictor, Dedup, Queues）
func New(opts Options) (*Pipeline, error) {
	var missing []string
	if opts.Lookups == nil {
		missing = append(missing, "lookups")
	}
	if opts.Predictor == nil {
		missing = append(missing, "predictor")
	}
	if opts.Dedup == nil {
		missing = append(missing, "dedup")
	}
	if opts.Queues == nil {
		missing = append(missing, "queues")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing %s", strings.Join(missing, ", "))
	}

	if opts.PredictTimeout <= 0 {
		opts.PredictTimeout = DefaultPredictTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Pipeline{
		lookups: opts.Lookups,
		deriver: features.NewDeriver(opts.Lookups, features.Options{
			Now:    opts.Now,
			Logger: opts.Logger,
		}),
		predictor: opts.Predictor,
		dedup:     opts.Dedup,
		queues:    opts.Queues,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		timeout:   opts.PredictTimeout,
		now:       opts.Now,
		log:       opts.Logger,
	}, nil
}

// ProcessGateIn 處理一個即時進閘事件（不寫入區塊佇列）
//
// 流程：
//  1. 別名正規化，解析目標區塊
//  2. 堆疊驗證，失敗則發送 PREDICTION_REJECTED
//  3. 去重，重複則靜默丟棄
//  4. 特徵推導與預測（失敗改用平均值）
//  5. 發送 PREDICTION_RESULT
func (p *Pipeline) ProcessGateIn(ctx context.Context, payload map[string]any) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Gate-in processing panicked", "truck_id", out.TruckID, "panic", r)
			out.Kind = Failed
			out.Reason = fmt.Sprint(r)
		}
	}()

	p.metrics.RecordReceived()
	now := p.now()

	if err := ctx.Err(); err != nil {
		return Outcome{Kind: Failed, Reason: err.Error()}
	}

	ev := Normalize(payload, now)
	blockID, label := ResolveBlock(ev)
	out = Outcome{TruckID: ev.TruckID, Block: blockID}

	p.log.Debug("Gate-in received",
		"truck_id", ev.TruckID,
		"gate_in_time", ev.GateInTime,
		"block", blockID,
		"stack", ev.Tier)

	// 1. 堆疊驗證
	if err := stack.Validate(ev.Tier, blockID); err != nil {
		reason := err.Error()
		p.log.Warn("Stack validation failed",
			"truck_id", ev.TruckID,
			"block", types.BlockLabel(blockID),
			"stack", ev.Tier,
			"reason", reason)
		p.metrics.RecordRejected()
		p.publish(types.Notification{
			Event:     types.EventPredictionRejected,
			TruckID:   ev.TruckID,
			Block:     blockID,
			Stack:     ev.Tier,
			Reason:    reason,
			Message:   fmt.Sprintf("Truck %s rejected: %s", ev.TruckID, reason),
			Timestamp: now,
			Status:    "rejected",
		})
		out.Kind = Rejected
		out.Reason = reason
		return out
	}

	// 2. 去重（使用原始時間字串）
	key := ev.TruckID + "_" + ev.GateInTime
	seen := p.dedup.CheckAndMark(key, now)
	p.metrics.SetDedupEntries(p.dedup.Len())
	if seen == dedup.AlreadySeen {
		p.log.Warn("Duplicate gate-in dropped", "truck_id", ev.TruckID, "key", key)
		p.metrics.RecordDuplicate()
		out.Kind = DroppedDuplicate
		return out
	}

	// 3. 特徵推導 + 預測
	vector := p.deriver.Derive(inputOf(ev, label))
	duration, fellBack := p.predict(ctx, vector, ev.TruckID)
	p.metrics.RecordPrediction(metrics.PathLive, duration)

	p.log.Info("Prediction completed",
		"truck_id", ev.TruckID,
		"block", types.BlockLabel(blockID),
		"duration_min", duration,
		"fallback", fellBack)

	// 4. 通知
	p.publish(types.Notification{
		Event:                    types.EventPredictionResult,
		TruckID:                  ev.TruckID,
		PredictedDurationMinutes: duration,
		Block:                    blockID,
		Timestamp:                p.now(),
		Status:                   "success",
	})

	out.Kind = Predicted
	out.Duration = duration
	out.FellBack = fellBack
	return out
}

// predict 呼叫預測器（帶超時），失敗時回傳 TargetMean
func (p *Pipeline) predict(ctx context.Context, v features.Vector, truckID string) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		d   float64
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("predictor panic: %v", r)}
			}
		}()
		d, err := p.predictor.Predict(ctx, v)
		ch <- result{d, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	if r.err == nil {
		r.err = predictor.CheckFinite(r.d)
	}

	fellBack := r.err != nil
	p.metrics.RecordPredictorCall(time.Since(start), fellBack)

	if fellBack {
		mean := p.lookups.TargetMean()
		p.log.Warn("Predictor failed, using global mean",
			"truck_id", truckID,
			"error", r.err,
			"timeout", errors.Is(r.err, context.DeadlineExceeded),
			"fallback_min", mean)
		return mean, true
	}
	return r.d, false
}

// Predict 對已推導的特徵向量執行預測（含超時與平均值回退）
func (p *Pipeline) Predict(ctx context.Context, v features.Vector) (duration float64, fellBack bool) {
	return p.predict(ctx, v, "")
}

func inputOf(ev types.RawTruckEvent, blockLabel string) features.Input {
	return features.Input{
		JobType:       ev.JobType,
		ContainerSize: ev.ContainerSize,
		CtrStatus:     ev.ContainerStatus,
		ContainerType: ev.ContainerType,
		Slot:          ev.Slot,
		Row:           ev.Row,
		Tier:          ev.Tier,
		Block:         blockLabel,
		GateInTime:    ev.GateInTime,
	}
}

func (p *Pipeline) publish(n types.Notification) {
	if p.notifier == nil {
		return
	}
	p.notifier.Publish(n)
}

// ============================================================================
// 手動加入路徑
// ============================================================================

// AddTruckRequest 手動加入卡車的請求
type AddTruckRequest struct {
	TruckID       string `json:"truck_id"`
	Lokasi        string `json:"lokasi"` // "slot row tier"
	JobType       string `json:"job_type,omitempty"`
	ContainerSize string `json:"container_size,omitempty"`
	ContainerType string `json:"container_type,omitempty"`
	CtrStatus     string `json:"ctr_status,omitempty"`
	Block         string `json:"block,omitempty"`
}

// ParseAddTruckRequest 從未型別化的 JSON 物件建立請求（數字欄位會轉成字串）
func ParseAddTruckRequest(body map[string]any) AddTruckRequest {
	get := func(key string) string {
		s, _ := present(body[key])
		return s
	}
	return AddTruckRequest{
		TruckID:       get("truck_id"),
		Lokasi:        get("lokasi"),
		JobType:       get("job_type"),
		ContainerSize: get("container_size"),
		ContainerType: get("container_type"),
		CtrStatus:     get("ctr_status"),
		Block:         get("block"),
	}
}

func (r AddTruckRequest) withDefaults() AddTruckRequest {
	if r.JobType == "" {
		r.JobType = "DELIVERY"
	}
	if r.ContainerSize == "" {
		r.ContainerSize = "40"
	}
	if r.ContainerType == "" {
		r.ContainerType = "DRY"
	}
	if r.CtrStatus == "" {
		r.CtrStatus = "FULL"
	}
	if r.Block == "" {
		r.Block = "1G"
	}
	return r
}

// AddTruck 同步執行完整管線並將卡車加入區塊佇列
//
// 錯誤處理：
//   - types.ErrInvalidBlock: 區塊 ID 不在 1..7
//   - types.ErrMissingField: 缺少 truck_id 或 lokasi
//   - types.ErrMalformedLocation: lokasi 不是三個欄位
//   - types.ErrStackNotAllowed: 堆疊不符合區塊規則（*stack.RejectionError）
//   - types.ErrDuplicateEvent: TTL 內重複
func (p *Pipeline) AddTruck(ctx context.Context, blockID int, req AddTruckRequest) (types.QueueEntry, error) {
	if !types.ValidBlock(blockID) {
		return types.QueueEntry{}, fmt.Errorf("%w: %d", types.ErrInvalidBlock, blockID)
	}
	if strings.TrimSpace(req.TruckID) == "" {
		return types.QueueEntry{}, fmt.Errorf("%w: truck_id", types.ErrMissingField)
	}
	if strings.TrimSpace(req.Lokasi) == "" {
		return types.QueueEntry{}, fmt.Errorf("%w: lokasi", types.ErrMissingField)
	}

	parts := strings.Fields(req.Lokasi)
	if len(parts) != 3 {
		return types.QueueEntry{}, fmt.Errorf("%w: %q", types.ErrMalformedLocation, req.Lokasi)
	}
	slot, row, tier := parts[0], parts[1], parts[2]
	req = req.withDefaults()

	p.metrics.RecordReceived()

	if err := stack.Validate(tier, blockID); err != nil {
		p.metrics.RecordRejected()
		return types.QueueEntry{}, err
	}

	gateIn := p.now()
	key := req.TruckID + "_" + strconv.FormatInt(gateIn.UnixNano(), 10)
	seen := p.dedup.CheckAndMark(key, gateIn)
	p.metrics.SetDedupEntries(p.dedup.Len())
	if seen == dedup.AlreadySeen {
		p.metrics.RecordDuplicate()
		return types.QueueEntry{}, fmt.Errorf("%w: %s", types.ErrDuplicateEvent, req.TruckID)
	}

	vector := p.deriver.Derive(features.Input{
		JobType:       req.JobType,
		ContainerSize: req.ContainerSize,
		CtrStatus:     req.CtrStatus,
		ContainerType: req.ContainerType,
		Slot:          slot,
		Row:           row,
		Tier:          tier,
		Block:         req.Block,
		GateInTime:    gateIn.Format(time.RFC3339Nano),
	})
	duration, fellBack := p.predict(ctx, vector, req.TruckID)
	duration = blockqueue.Round2(duration)

	entry := types.QueueEntry{
		TruckID:           req.TruckID,
		JobType:           req.JobType,
		ContainerSize:     req.ContainerSize,
		ContainerType:     req.ContainerType,
		CtrStatus:         req.CtrStatus,
		Lokasi:            req.Lokasi,
		Slot:              slot,
		Row:               row,
		Tier:              tier,
		Block:             req.Block,
		PredictedDuration: duration,
		GateInTime:        gateIn,
		ExpectedReadyTime: gateIn.Add(time.Duration(duration * float64(time.Minute))),
		AddedAt:           gateIn,
	}

	if _, err := p.queues.Append(blockID, entry); err != nil {
		return types.QueueEntry{}, err
	}
	p.metrics.RecordPrediction(metrics.PathManual, duration)

	p.log.Info("Truck added",
		"truck_id", entry.TruckID,
		"block", types.BlockLabel(blockID),
		"lokasi", entry.Lokasi,
		"duration_min", duration,
		"fallback", fellBack)

	return entry, nil
}

// ============================================================================
// 查詢與管理（API 透傳）
// ============================================================================

// BlockView 一個區塊的佇列檢視
type BlockView struct {
	Name        string             `json:"name"`
	Queue       []types.QueueEntry `json:"queue"`
	QueueLength int                `json:"queue_length"`
}

// Blocks 回傳所有區塊的佇列，key 為區塊 ID
func (p *Pipeline) Blocks() map[int]BlockView {
	out := make(map[int]BlockView, types.BlockCount)
	for id := 1; id <= types.BlockCount; id++ {
		q, _ := p.queues.Snapshot(id)
		out[id] = BlockView{Name: types.BlockLabel(id), Queue: q, QueueLength: len(q)}
	}
	return out
}

// BlockStats 單一區塊統計
func (p *Pipeline) BlockStats(blockID int) (types.BlockStats, error) {
	return p.queues.Stats(blockID)
}

// GlobalStats 全域統計
func (p *Pipeline) GlobalStats() types.GlobalStats {
	return p.queues.GlobalStats()
}

// RemoveTruck 依索引移除卡車
func (p *Pipeline) RemoveTruck(blockID, index int) (types.QueueEntry, error) {
	return p.queues.RemoveAt(blockID, index)
}

// ClearBlock 清空區塊，回傳移除數量
func (p *Pipeline) ClearBlock(blockID int) (int, error) {
	return p.queues.Clear(blockID)
}

// Lookups 回傳查表存放區（健康檢查用）
func (p *Pipeline) Lookups() *lookup.Store { return p.lookups }

// Derive 推導特徵向量（CLI predict 命令用）
func (p *Pipeline) Derive(payload map[string]any) (features.Vector, types.RawTruckEvent, int) {
	ev := Normalize(payload, p.now())
	blockID, label := ResolveBlock(ev)
	v := p.deriver.Derive(inputOf(ev, label))
	return v, ev, blockID
}
