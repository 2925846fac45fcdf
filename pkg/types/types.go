// Package types 定義了 artg-queue 系統中使用的核心領域模型
package types

import (
	"encoding/json"
	"errors"
	"time"
)

// BlockCount 堆場區塊總數（CY1..CY6 + D1）
const BlockCount = 7

// BlockD1 特殊區塊 D1 的 ID
const BlockD1 = 7

var blockLabels = [BlockCount + 1]string{"", "CY1", "CY2", "CY3", "CY4", "CY5", "CY6", "D1"}

// 錯誤分類
var (
	ErrInvalidBlock      = errors.New("invalid block ID (must be 1-7)")
	ErrStackNotAllowed   = errors.New("stack not allowed for block")
	ErrMalformedLocation = errors.New(`invalid lokasi format (expected: "slot row tier")`)
	ErrIndexOutOfRange   = errors.New("invalid truck index")
	ErrDuplicateEvent    = errors.New("duplicate gate-in event")
	ErrMissingField      = errors.New("missing required field")
)

// ValidBlock 檢查區塊 ID 是否在 1..7 範圍內
func ValidBlock(id int) bool {
	return id >= 1 && id <= BlockCount
}

// BlockLabel 回傳區塊名稱，未知 ID 回傳 "UNKNOWN"
func BlockLabel(id int) string {
	if !ValidBlock(id) {
		return "UNKNOWN"
	}
	return blockLabels[id]
}

// RawTruckEvent 正規化後的進閘事件（所有別名欄位已解析）
type RawTruckEvent struct {
	TruckID         string `json:"truck_id"`
	GateInTime      string `json:"gate_in_time"` // 原始字串，去重鍵使用未正規化的值
	ToBlock         string `json:"to_block"`
	Block           string `json:"block"` // to_block 缺失時的備用欄位
	Slot            string `json:"slot"`
	Row             string `json:"row"`
	Tier            string `json:"tier"`
	ContainerSize   string `json:"container_size"`
	ContainerType   string `json:"container_type"`
	ContainerStatus string `json:"container_status"`
	Activity        string `json:"activity"`
	JobType         string `json:"job_type"`
}

// QueueEntry 區塊佇列中的一台卡車，建立後不可修改
type QueueEntry struct {
	TruckID           string    `json:"truck_id"`
	JobType           string    `json:"job_type"`
	ContainerSize     string    `json:"container_size"`
	ContainerType     string    `json:"container_type"`
	CtrStatus         string    `json:"ctr_status"`
	Lokasi            string    `json:"lokasi"`
	Slot              string    `json:"slot"`
	Row               string    `json:"row"`
	Tier              string    `json:"tier"`
	Block             string    `json:"block"`
	PredictedDuration float64   `json:"predicted_duration"` // 分鐘
	GateInTime        time.Time `json:"gate_in_time"`
	ExpectedReadyTime time.Time `json:"expected_ready_time"`
	AddedAt           time.Time `json:"added_at"`
}

// BlockStats 單一區塊的統計（依需求即時計算，不儲存）
type BlockStats struct {
	Count         int     `json:"count"`
	AvgDuration   float64 `json:"avg_duration"`
	TotalDuration float64 `json:"total_duration"`
	MinDuration   float64 `json:"min_duration"`
	MaxDuration   float64 `json:"max_duration"`
}

// GlobalStats 所有區塊的彙總統計
type GlobalStats struct {
	TotalTrucks      int     `json:"total_trucks"`
	AvgDuration      float64 `json:"avg_duration"`
	TotalDuration    float64 `json:"total_duration"`
	BlocksWithTrucks int     `json:"blocks_with_trucks"`
}

// 通知事件名稱
const (
	EventPredictionResult   = "PREDICTION_RESULT"
	EventPredictionRejected = "PREDICTION_REJECTED"
)

// Notification 推送給即時傳輸層的結果通知
type Notification struct {
	Event                    string    `json:"event"`
	TruckID                  string    `json:"truck_id"`
	PredictedDurationMinutes float64   `json:"predicted_duration_minutes"`
	Block                    int       `json:"block"`
	Stack                    string    `json:"stack,omitempty"`
	Reason                   string    `json:"reason,omitempty"`
	Message                  string    `json:"message,omitempty"`
	Timestamp                time.Time `json:"timestamp"`
	Status                   string    `json:"status"`
}

// MarshalJSON 結果通知永遠帶 predicted_duration_minutes（0 也輸出），拒絕通知不帶
func (n Notification) MarshalJSON() ([]byte, error) {
	type plain Notification
	if n.Event != EventPredictionRejected {
		return json.Marshal(plain(n))
	}
	return json.Marshal(struct {
		plain
		PredictedDurationMinutes *float64 `json:"predicted_duration_minutes,omitempty"`
	}{plain: plain(n)})
}
