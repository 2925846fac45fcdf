// Package lookuptest provides a small, fixed lookup artifact for tests.
package lookuptest

import (
	"testing"

	"github.com/ChuLiYu/artg-queue/internal/lookup"
)

// TargetMean is the metadata mean of Tables.
const TargetMean = 21.5

// OverallAvg is the overall average of Tables.
const OverallAvg = 20.0

// Tables returns a fresh copy of the fixture tables.
func Tables() lookup.Tables {
	mean := TargetMean
	return lookup.Tables{
		SchemaVersion:        lookup.SchemaVersion,
		OverallAvg:           OverallAvg,
		SlotHistoricalAvg:    map[string]float64{"42": 18.5, "1": 19.0},
		TierHistoricalAvg:    map[string]float64{"1": 17.0, "2": 23.0},
		LokasiHistoricalAvg:  map[string]float64{"42 6 1": 16.25, "1 1 1": 24.0},
		HourHistoricalAvg:    map[string]float64{"9": 22.0, "14": 26.0},
		BlockTargetEnc:       map[string]float64{"1G": 19.5, "D1": 25.0},
		LokasiTargetEnc:      map[string]float64{"42 6 1": 16.25},
		SlotDurationStd:      map[string]float64{"42": 3.5},
		SlotDurationMin:      map[string]float64{"42": 6.0},
		SlotDurationMax:      map[string]float64{"42": 40.0},
		HourlyVolume:         map[string]float64{"9": 120, "14": 95},
		CongestionByHourSlot: map[string]float64{"9_42": 7, "14_1": 3},
		LocationHistory: map[string]lookup.LocationHistory{
			"42 6 1": {LastDuration: 12.0, Last3Durations: []float64{10, 14, 12}, RollingMean3: 12.0},
		},
		LabelEncoders: map[string][]string{
			lookup.FeatJobType:       {"DELIVERY", "EXPORT", "IMPORT", "RECEIVING"},
			lookup.FeatContainerSize: {"20", "40", "45"},
			lookup.FeatCtrStatus:     {"FCL", "FULL", "MTY"},
			lookup.FeatContainerType: {"DRY", "OVD", "RF"},
			lookup.FeatSlot:          {"1", "13", "15", "17", "31", "42", "76", "78"},
			lookup.FeatTier:          {"1", "2", "D1"},
			lookup.FeatBlock:         {"1E", "1G", "2A", "2C", "3Z", "4B", "5G", "D1"},
			lookup.FeatShift:         {"shift_1", "shift_2", "shift_3", "shift_4", "shift_5", "shift_6", "shift_7", "shift_8"},
		},
		Metadata: lookup.Metadata{
			GeneratedAt: "2025-01-31 10:00:00",
			DatasetSize: 1000,
			ShiftType:   "8_shifts_3hours",
			ShiftBins:   []int{0, 3, 6, 9, 12, 15, 18, 21, 24},
			TargetMean:  &mean,
			TargetStd:   9.1,
			TargetMin:   2.0,
			TargetMax:   90.0,
		},
	}
}

// Store builds a Store from Tables and fails the test on error.
func Store(t testing.TB) *lookup.Store {
	t.Helper()
	s, err := lookup.New(Tables())
	if err != nil {
		t.Fatalf("fixture lookup store: %v", err)
	}
	return s
}
