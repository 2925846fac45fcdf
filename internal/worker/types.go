package worker

import (
	"context"
	"time"
)

// Task 代表一個待處理的進閘事件
type Task struct {
	ID         string         // 任務唯一識別碼（uuid）
	Payload    map[string]any // 原始進閘事件
	Timeout    time.Duration  // 處理超時，0 表示不限制
	ReceivedAt time.Time      // 傳輸層收到事件的時間
}

// Result 代表任務處理結果
type Result struct {
	TaskID   string        // 任務 ID
	Success  bool          // 處理是否成功
	Error    error         // 錯誤訊息（如果有）
	Duration time.Duration // 實際處理時間
	Wait     time.Duration // 從 ReceivedAt 到開始處理的等待時間，ReceivedAt 為零值時為 0
}

// Handler 處理單一事件的函式（通常是 pipeline.ProcessGateIn 的包裝）
type Handler func(ctx context.Context, payload map[string]any) error
