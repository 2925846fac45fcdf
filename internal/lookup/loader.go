package lookup

// ============================================================================
// 職責說明：
// 1. 從 JSON 檔載入離線產生的 lookup 表（啟動時一次）
// 2. 驗證 schema 版本與欄位名稱，所有錯誤一次回報
// 3. 使用原子性寫入（temp file + rename）輸出 artifact
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrArtifactNotFound    = errors.New("lookup artifact not found")
	ErrCorruptedArtifact   = errors.New("lookup artifact is corrupted")
	ErrIncompatibleVersion = errors.New("lookup artifact schema version is incompatible")
	ErrUnknownFeature      = errors.New("unknown feature")
)

// Load 讀取並驗證 lookup artifact
//
// 行為：
//   - 檔案不存在回傳 ErrArtifactNotFound（服務無法在沒有 lookup 的情況下啟動）
//   - JSON 解析失敗回傳 ErrCorruptedArtifact
//   - 其餘驗證錯誤由 New 彙總回報
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("failed to read lookup artifact: %w", err)
	}

	var t Tables
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedArtifact, err)
	}

	store, err := New(t)
	if err != nil {
		return nil, fmt.Errorf("invalid lookup artifact %s: %w", path, err)
	}
	return store, nil
}

// Write 原子性寫入 artifact
//
// 流程：
//  1. 寫入臨時檔案（.tmp）
//  2. os.Rename 原子性替換原始檔案
func Write(path string, t Tables) error {
	if t.SchemaVersion == 0 {
		t.SchemaVersion = SchemaVersion
	}

	jsonBytes, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lookup artifact: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp artifact: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename artifact: %w", err)
	}
	return nil
}
