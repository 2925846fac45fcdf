package blockqueue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/artg-queue/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// newTestEntry creates a test QueueEntry
func newTestEntry(truckID string, duration float64) types.QueueEntry {
	gateIn := time.Date(2025, 1, 27, 9, 0, 0, 0, time.UTC)
	return types.QueueEntry{
		TruckID:           truckID,
		JobType:           "DELIVERY",
		ContainerSize:     "40",
		ContainerType:     "DRY",
		CtrStatus:         "FULL",
		Lokasi:            "42 06 1",
		Block:             "1G",
		PredictedDuration: duration,
		GateInTime:        gateIn,
		ExpectedReadyTime: gateIn.Add(time.Duration(duration * float64(time.Minute))),
		AddedAt:           gateIn,
	}
}

// assertNoError asserts no error occurred
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertError asserts a specific error occurred
func assertError(t *testing.T, err error, want error) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error %v, got nil", want)
		return
	}
	if !errors.Is(err, want) {
		t.Errorf("expected error %v, got %v", want, err)
	}
}

func truckIDs(entries []types.QueueEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TruckID
	}
	return ids
}

// ============================================================================
// Unit Tests
// ============================================================================

func TestNew(t *testing.T) {
	s := New()

	for id := 1; id <= types.BlockCount; id++ {
		n, err := s.Len(id)
		assertNoError(t, err)
		if n != 0 {
			t.Errorf("block %d: expected empty, got %d", id, n)
		}
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	s := New()

	for i, id := range []string{"A", "B", "C"} {
		n, err := s.Append(2, newTestEntry(id, 10))
		assertNoError(t, err)
		if n != i+1 {
			t.Errorf("Append returned length %d, want %d", n, i+1)
		}
	}

	snap, err := s.Snapshot(2)
	assertNoError(t, err)
	if got := fmt.Sprint(truckIDs(snap)); got != "[A B C]" {
		t.Errorf("order: got %s, want [A B C]", got)
	}
}

func TestInvalidBlock(t *testing.T) {
	s := New()

	for _, id := range []int{0, -1, 8, 100} {
		_, err := s.Append(id, newTestEntry("X", 1))
		assertError(t, err, types.ErrInvalidBlock)

		_, err = s.RemoveAt(id, 0)
		assertError(t, err, types.ErrInvalidBlock)

		_, err = s.Clear(id)
		assertError(t, err, types.ErrInvalidBlock)

		_, err = s.Snapshot(id)
		assertError(t, err, types.ErrInvalidBlock)

		_, err = s.Stats(id)
		assertError(t, err, types.ErrInvalidBlock)
	}
}

func TestRemoveAt(t *testing.T) {
	s := New()
	for _, id := range []string{"A", "B", "C"} {
		_, _ = s.Append(1, newTestEntry(id, 10))
	}

	removed, err := s.RemoveAt(1, 1)
	assertNoError(t, err)
	if removed.TruckID != "B" {
		t.Errorf("removed %s, want B", removed.TruckID)
	}

	snap, _ := s.Snapshot(1)
	if got := fmt.Sprint(truckIDs(snap)); got != "[A C]" {
		t.Errorf("after remove: got %s, want [A C]", got)
	}
}

func TestRemoveAtOutOfRange(t *testing.T) {
	s := New()
	_, _ = s.Append(3, newTestEntry("A", 10))
	_, _ = s.Append(3, newTestEntry("B", 10))

	tests := []struct {
		name  string
		index int
	}{
		{"negative", -1},
		{"equal to length", 2},
		{"far past end", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RemoveAt(3, tt.index)
			assertError(t, err, types.ErrIndexOutOfRange)

			n, _ := s.Len(3)
			if n != 2 {
				t.Errorf("queue changed: len %d, want 2", n)
			}
		})
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	_, _ = s.Append(1, newTestEntry("A", 10))

	snap, _ := s.Snapshot(1)
	snap[0].TruckID = "MUTATED"

	again, _ := s.Snapshot(1)
	if again[0].TruckID != "A" {
		t.Errorf("snapshot mutation leaked into store: %s", again[0].TruckID)
	}
}

func TestClear(t *testing.T) {
	s := New()
	for i := 0; i < 4; i++ {
		_, _ = s.Append(5, newTestEntry(fmt.Sprintf("T%d", i), 10))
	}
	_, _ = s.Append(6, newTestEntry("other", 10))

	prior, err := s.Clear(5)
	assertNoError(t, err)
	if prior != 4 {
		t.Errorf("Clear returned %d, want 4", prior)
	}

	n, _ := s.Len(5)
	if n != 0 {
		t.Errorf("block 5 not empty: %d", n)
	}
	n, _ = s.Len(6)
	if n != 1 {
		t.Errorf("block 6 affected by clearing block 5: %d", n)
	}

	prior, _ = s.Clear(5)
	if prior != 0 {
		t.Errorf("second Clear returned %d, want 0", prior)
	}
}

func TestClearAll(t *testing.T) {
	s := New()
	_, _ = s.Append(1, newTestEntry("A", 1))
	_, _ = s.Append(4, newTestEntry("B", 1))
	_, _ = s.Append(7, newTestEntry("C", 1))

	if got := s.ClearAll(); got != 3 {
		t.Errorf("ClearAll returned %d, want 3", got)
	}
	for id, n := range s.Lengths() {
		if n != 0 {
			t.Errorf("block %d not empty: %d", id, n)
		}
	}
}

func TestStats(t *testing.T) {
	s := New()
	for i, d := range []float64{5, 10, 15} {
		_, _ = s.Append(1, newTestEntry(fmt.Sprintf("T%d", i), d))
	}

	got, err := s.Stats(1)
	assertNoError(t, err)

	want := types.BlockStats{Count: 3, AvgDuration: 10, TotalDuration: 30, MinDuration: 5, MaxDuration: 15}
	if got != want {
		t.Errorf("Stats: got %+v, want %+v", got, want)
	}
}

func TestStatsEmptyBlock(t *testing.T) {
	s := New()

	got, err := s.Stats(7)
	assertNoError(t, err)
	if got != (types.BlockStats{}) {
		t.Errorf("empty block stats: got %+v, want zero", got)
	}
}

func TestStatsRounding(t *testing.T) {
	s := New()
	for i, d := range []float64{10.111, 20.226, 5.5} {
		_, _ = s.Append(2, newTestEntry(fmt.Sprintf("T%d", i), d))
	}

	got, _ := s.Stats(2)
	if got.TotalDuration != 35.84 {
		t.Errorf("total: got %v, want 35.84", got.TotalDuration)
	}
	if got.AvgDuration != 11.95 {
		t.Errorf("avg: got %v, want 11.95", got.AvgDuration)
	}
	if got.MinDuration != 5.5 || got.MaxDuration != 20.23 {
		t.Errorf("min/max: got %v/%v, want 5.5/20.23", got.MinDuration, got.MaxDuration)
	}
}

func TestGlobalStats(t *testing.T) {
	s := New()

	if g := s.GlobalStats(); g != (types.GlobalStats{}) {
		t.Errorf("empty global stats: got %+v", g)
	}

	_, _ = s.Append(1, newTestEntry("A", 10))
	_, _ = s.Append(1, newTestEntry("B", 20))
	_, _ = s.Append(3, newTestEntry("C", 30))

	want := types.GlobalStats{TotalTrucks: 3, AvgDuration: 20, TotalDuration: 60, BlocksWithTrucks: 2}
	if g := s.GlobalStats(); g != want {
		t.Errorf("GlobalStats: got %+v, want %+v", g, want)
	}
}

func TestOnChange(t *testing.T) {
	s := New()
	got := map[int]int{}
	s.OnChange(func(blockID, length int) { got[blockID] = length })

	_, _ = s.Append(2, newTestEntry("A", 1))
	_, _ = s.Append(2, newTestEntry("B", 1))
	_, _ = s.RemoveAt(2, 0)
	_, _ = s.Append(4, newTestEntry("C", 1))
	_, _ = s.Clear(4)

	if got[2] != 1 || got[4] != 0 {
		t.Errorf("OnChange lengths: got %v", got)
	}
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrentAppend(t *testing.T) {
	s := New()

	const perBlock = 100
	var wg sync.WaitGroup
	for id := 1; id <= types.BlockCount; id++ {
		for i := 0; i < perBlock; i++ {
			wg.Add(1)
			go func(id, i int) {
				defer wg.Done()
				_, _ = s.Append(id, newTestEntry(fmt.Sprintf("T%d-%d", id, i), 1))
			}(id, i)
		}
	}

	// 並發讀取
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.GlobalStats()
			_, _ = s.Stats(1)
		}()
	}
	wg.Wait()

	for id, n := range s.Lengths() {
		if n != perBlock {
			t.Errorf("block %d: got %d entries, want %d", id, n, perBlock)
		}
	}
	if g := s.GlobalStats(); g.TotalTrucks != perBlock*types.BlockCount {
		t.Errorf("total trucks: got %d", g.TotalTrucks)
	}
}

func TestOnChangeOrderedUnderConcurrency(t *testing.T) {
	s := New()

	var mu sync.Mutex
	last := 0
	calls := 0
	s.OnChange(func(blockID, length int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if length != last+1 {
			t.Errorf("append %d reported length %d after %d", calls, length, last)
		}
		last = length
	})

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Append(3, newTestEntry(fmt.Sprintf("T%d", i), 1))
		}(i)
	}
	wg.Wait()

	got, _ := s.Len(3)
	if last != n || got != n {
		t.Errorf("last reported length %d, queue length %d, want %d", last, got, n)
	}
}

func TestConcurrentRemove(t *testing.T) {
	s := New()
	for i := 0; i < 50; i++ {
		_, _ = s.Append(1, newTestEntry(fmt.Sprintf("T%d", i), 1))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	removed := 0
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RemoveAt(1, 0); err == nil {
				mu.Lock()
				removed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if removed != 50 {
		t.Errorf("removed %d, want 50", removed)
	}
	n, _ := s.Len(1)
	if n != 0 {
		t.Errorf("remaining %d, want 0", n)
	}
}
