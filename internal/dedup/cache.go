// ============================================================================
// ARTG 去重快取 - 同一台卡車重複進閘事件過濾
// ============================================================================
//
// Package: internal/dedup
// 文件: cache.go
// 功能: 在 TTL 時間窗口內丟棄相同 key 的重複事件
//
// 設計:
//   seen map[key]firstSeen - 首次看到的時間
//   sweepLoop - 背景循環，每 SweepInterval 清除超過 TTL 的條目
//
// 過期語意:
//   - 已過期但尚未被清除的條目仍算 AlreadySeen
//   - 只有 Sweep 會讓 key 重新變成 NewlySeen
//
// 並發安全:
//   - 單一 sync.Mutex 保護 seen map
//   - CheckAndMark 的 check 與 mark 在同一把鎖內完成（原子性）
//   - Sweep 與 CheckAndMark 使用同一把鎖
//
// ============================================================================

package dedup

import (
	"log/slog"
	"sync"
	"time"
)

// 預設值
const (
	DefaultTTL           = 60 * time.Second
	DefaultSweepInterval = 30 * time.Second
)

// Result 是 CheckAndMark 的結果
type Result int

const (
	NewlySeen Result = iota
	AlreadySeen
)

func (r Result) String() string {
	if r == AlreadySeen {
		return "already_seen"
	}
	return "newly_seen"
}

// Options 去重快取配置
type Options struct {
	TTL           time.Duration    // 條目存活時間
	SweepInterval time.Duration    // 背景清理間隔，<0 表示不啟動背景清理
	Now           func() time.Time // 時鐘（測試可注入）
	Logger        *slog.Logger
}

// Cache 去重快取
type Cache struct {
	mu   sync.Mutex
	seen map[string]time.Time

	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	onEvicted func(n int)
}

// New 建立去重快取並立即啟動背景清理循環
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Cache{
		seen:     make(map[string]time.Time),
		ttl:      opts.TTL,
		interval: opts.SweepInterval,
		now:      opts.Now,
		log:      opts.Logger,
		stopCh:   make(chan struct{}),
	}

	if c.interval > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}
	return c
}

// OnSweep 註冊清理回呼（用於 metrics），必須在使用前設定
func (c *Cache) OnSweep(fn func(evicted int)) {
	c.mu.Lock()
	c.onEvicted = fn
	c.mu.Unlock()
}

// CheckAndMark 檢查 key 是否已出現過，未出現則以 now 記錄
//
// 返回值：
//   - NewlySeen: 第一次看到（已記錄）
//   - AlreadySeen: TTL 窗口內已看過（包含已過期但未清除的條目）
//
// 併發安全：對同一 key 的 N 個並發呼叫恰好一個得到 NewlySeen
func (c *Cache) CheckAndMark(key string, now time.Time) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.seen[key]; exists {
		return AlreadySeen
	}
	c.seen[key] = now
	return NewlySeen
}

// Sweep 移除 now - firstSeen > TTL 的條目，回傳移除數量
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	removed := 0
	for key, first := range c.seen {
		if now.Sub(first) > c.ttl {
			delete(c.seen, key)
			removed++
		}
	}
	cb := c.onEvicted
	c.mu.Unlock()

	if cb != nil {
		cb(removed)
	}
	return removed
}

// Len 目前快取中的條目數
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// TTL 回傳設定的存活時間
func (c *Cache) TTL() time.Duration { return c.ttl }

// Close 停止背景清理循環，可重複呼叫
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// sweepLoop 定期清理過期條目
func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.log.Debug("Dedup sweep loop stopped")
			return

		case <-ticker.C:
			if n := c.Sweep(c.now()); n > 0 {
				c.log.Debug("Dedup cache swept", "removed", n, "remaining", c.Len())
			}
		}
	}
}
