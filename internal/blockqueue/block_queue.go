// ============================================================================
// ARTG 區塊佇列 - 每個堆場區塊的卡車等待佇列
// ============================================================================
//
// Package: internal/blockqueue
// 文件: block_queue.go
// 功能: 管理 7 個區塊（CY1..CY6, D1）的卡車佇列與等待時間統計
//
// 數據結構設計:
//   blocks [7]*blockQueue
//   ├─ 每個區塊有自己的 sync.RWMutex 與 entries 切片
//   └─ entries 依加入順序排列（FIFO 顯示順序）
//
// 並發安全:
//   - 每個區塊一把 RWMutex：讀操作並發，寫操作在單一區塊內線性化
//   - 不同區塊之間互不阻塞
//   - GlobalStats 逐一讀取各區塊（不保證跨區塊的一致快照）
//
// 統計:
//   - 依需求即時計算，不儲存
//   - 數值四捨五入到小數點後 2 位
//   - 空區塊的所有數值為 0
//
// ============================================================================

package blockqueue

import (
	"fmt"
	"math"
	"sync"

	"github.com/ChuLiYu/artg-queue/pkg/types"
)

// blockQueue 單一區塊的佇列
type blockQueue struct {
	mu      sync.RWMutex
	entries []types.QueueEntry
}

// Store 所有區塊佇列的集合
type Store struct {
	blocks   [types.BlockCount]*blockQueue
	onChange func(blockID, length int) // 佇列長度變化回呼（metrics）
}

// ============================================================================
// 核心方法
// ============================================================================

// New 建立新的區塊佇列集合，所有區塊為空
func New() *Store {
	s := &Store{}
	for i := range s.blocks {
		s.blocks[i] = &blockQueue{entries: make([]types.QueueEntry, 0)}
	}
	return s
}

// OnChange 註冊佇列長度變化回呼，必須在使用前設定
//
// 回呼在該區塊寫鎖內執行，同一區塊的呼叫順序與修改順序一致；
// 回呼不可再呼叫 Store 的方法
func (s *Store) OnChange(fn func(blockID, length int)) {
	s.onChange = fn
}

// block 取得區塊佇列，區塊 ID 不合法時回傳 ErrInvalidBlock
func (s *Store) block(blockID int) (*blockQueue, error) {
	if !types.ValidBlock(blockID) {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidBlock, blockID)
	}
	return s.blocks[blockID-1], nil
}

func (s *Store) notify(blockID, length int) {
	if s.onChange != nil {
		s.onChange(blockID, length)
	}
}

// Append 將卡車加入區塊佇列尾端
//
// 返回值：
//   - int: 加入後的佇列長度
//   - error: 區塊 ID 不合法時回傳 ErrInvalidBlock
//
// 併發安全：使用該區塊的寫鎖
func (s *Store) Append(blockID int, entry types.QueueEntry) (int, error) {
	q, err := s.block(blockID)
	if err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
	n := len(q.entries)
	s.notify(blockID, n)
	return n, nil
}

// RemoveAt 移除區塊佇列中指定位置的卡車
//
// 返回值：
//   - types.QueueEntry: 被移除的卡車
//   - error: ErrInvalidBlock 或 ErrIndexOutOfRange（佇列不變）
//
// 併發安全：使用該區塊的寫鎖
func (s *Store) RemoveAt(blockID, index int) (types.QueueEntry, error) {
	q, err := s.block(blockID)
	if err != nil {
		return types.QueueEntry{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.entries) {
		return types.QueueEntry{}, fmt.Errorf("%w: %d", types.ErrIndexOutOfRange, index)
	}

	removed := q.entries[index]
	// 建立新切片，避免與舊快照共用底層陣列
	next := make([]types.QueueEntry, 0, len(q.entries)-1)
	next = append(next, q.entries[:index]...)
	next = append(next, q.entries[index+1:]...)
	q.entries = next
	s.notify(blockID, len(next))
	return removed, nil
}

// Clear 清空區塊佇列，回傳清空前的數量
func (s *Store) Clear(blockID int) (int, error) {
	q, err := s.block(blockID)
	if err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	prior := len(q.entries)
	q.entries = make([]types.QueueEntry, 0)
	s.notify(blockID, 0)
	return prior, nil
}

// ClearAll 清空所有區塊，回傳清空前的總數
func (s *Store) ClearAll() int {
	total := 0
	for id := 1; id <= types.BlockCount; id++ {
		n, _ := s.Clear(id)
		total += n
	}
	return total
}

// Snapshot 回傳區塊佇列的副本（依加入順序）
//
// 併發安全：使用該區塊的讀鎖，返回的切片可自由修改
func (s *Store) Snapshot(blockID int) ([]types.QueueEntry, error) {
	q, err := s.block(blockID)
	if err != nil {
		return nil, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]types.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out, nil
}

// Len 區塊佇列長度
func (s *Store) Len(blockID int) (int, error) {
	q, err := s.block(blockID)
	if err != nil {
		return 0, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries), nil
}

// Lengths 所有區塊的佇列長度，key 為區塊 ID
func (s *Store) Lengths() map[int]int {
	out := make(map[int]int, types.BlockCount)
	for i, q := range s.blocks {
		q.mu.RLock()
		out[i+1] = len(q.entries)
		q.mu.RUnlock()
	}
	return out
}

// ============================================================================
// 統計
// ============================================================================

// Stats 計算單一區塊的等待時間統計
//
// 返回值：
//   - types.BlockStats: count/avg/total/min/max（分鐘，2 位小數）
//   - error: 區塊 ID 不合法時回傳 ErrInvalidBlock
//
// 併發安全：使用該區塊的讀鎖
func (s *Store) Stats(blockID int) (types.BlockStats, error) {
	q, err := s.block(blockID)
	if err != nil {
		return types.BlockStats{}, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	return statsOf(q.entries), nil
}

// GlobalStats 計算所有區塊的彙總統計
func (s *Store) GlobalStats() types.GlobalStats {
	var (
		total    int
		sum      float64
		nonEmpty int
	)
	for _, q := range s.blocks {
		q.mu.RLock()
		if len(q.entries) > 0 {
			nonEmpty++
		}
		for _, e := range q.entries {
			sum += e.PredictedDuration
		}
		total += len(q.entries)
		q.mu.RUnlock()
	}

	g := types.GlobalStats{
		TotalTrucks:      total,
		TotalDuration:    Round2(sum),
		BlocksWithTrucks: nonEmpty,
	}
	if total > 0 {
		g.AvgDuration = Round2(sum / float64(total))
	}
	return g
}

func statsOf(entries []types.QueueEntry) types.BlockStats {
	if len(entries) == 0 {
		return types.BlockStats{}
	}

	sum := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, e := range entries {
		d := e.PredictedDuration
		sum += d
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}

	return types.BlockStats{
		Count:         len(entries),
		AvgDuration:   Round2(sum / float64(len(entries))),
		TotalDuration: Round2(sum),
		MinDuration:   Round2(lo),
		MaxDuration:   Round2(hi),
	}
}

// Round2 四捨五入到小數點後 2 位
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
