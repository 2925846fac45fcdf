// ============================================================================
// ARTG Lookup Store - historical aggregates for feature derivation
// ============================================================================
//
// Package: internal/lookup
// File: store.go
// Purpose: Holds the read-only tables produced by the offline aggregation job
//
// The artifact is produced from the same dataset the model was trained on.
// Every table is keyed by the cleaned categorical value (slot "1.0" is stored
// as "1"); hour keys are decimal strings ("0".."23"). A Store is immutable
// after New/Load returns, so concurrent readers need no locking.
//
// ============================================================================

package lookup

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

// SchemaVersion is the only artifact layout this build understands.
const SchemaVersion = 1

// LocationHistory is the most recent duration history of one location.
type LocationHistory struct {
	LastDuration   float64   `json:"last_duration"`
	Last3Durations []float64 `json:"last_3_durations,omitempty"`
	RollingMean3   float64   `json:"rolling_mean_3"`
}

// Metadata describes the dataset the tables were generated from.
type Metadata struct {
	GeneratedAt string   `json:"generated_at,omitempty"`
	DatasetSize int      `json:"dataset_size,omitempty"`
	ShiftType   string   `json:"shift_type,omitempty"`
	ShiftBins   []int    `json:"shift_bins,omitempty"`
	ShiftLabels []string `json:"shift_labels,omitempty"`
	TargetMean  *float64 `json:"target_mean,omitempty"`
	TargetStd   float64  `json:"target_std,omitempty"`
	TargetMin   float64  `json:"target_min,omitempty"`
	TargetMax   float64  `json:"target_max,omitempty"`
}

// Tables is the on-disk layout of the lookup artifact.
type Tables struct {
	SchemaVersion        int                        `json:"schema_version"`
	OverallAvg           float64                    `json:"overall_avg"`
	SlotHistoricalAvg    map[string]float64         `json:"slot_historical_avg,omitempty"`
	TierHistoricalAvg    map[string]float64         `json:"tier_historical_avg,omitempty"`
	LokasiHistoricalAvg  map[string]float64         `json:"lokasi_historical_avg,omitempty"`
	HourHistoricalAvg    map[string]float64         `json:"hour_historical_avg,omitempty"`
	BlockTargetEnc       map[string]float64         `json:"BLOCK_target_enc,omitempty"`
	LokasiTargetEnc      map[string]float64         `json:"LOKASI_target_enc,omitempty"`
	SlotDurationStd      map[string]float64         `json:"slot_duration_std,omitempty"`
	SlotDurationMin      map[string]float64         `json:"slot_duration_min,omitempty"`
	SlotDurationMax      map[string]float64         `json:"slot_duration_max,omitempty"`
	HourlyVolume         map[string]float64         `json:"hourly_volume,omitempty"`
	CongestionByHourSlot map[string]float64         `json:"congestion_by_hour_slot,omitempty"`
	LocationHistory      map[string]LocationHistory `json:"location_history,omitempty"`
	LabelEncoders        map[string][]string        `json:"label_encoders,omitempty"`
	FeaturesList         []string                   `json:"features_list,omitempty"`
	Metadata             Metadata                   `json:"metadata"`
}

// Store is the validated, read-only view over Tables.
type Store struct {
	t        Tables
	encoders map[string]*LabelEncoder
	order    []string
}

// New validates t and builds a Store. All validation problems are reported
// together.
func New(t Tables) (*Store, error) {
	var result *multierror.Error

	if t.SchemaVersion != SchemaVersion {
		result = multierror.Append(result, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, t.SchemaVersion, SchemaVersion))
	}

	for _, name := range t.FeaturesList {
		if !IsKnownFeature(name) {
			result = multierror.Append(result, fmt.Errorf("%w: features_list references %q", ErrUnknownFeature, name))
		}
	}

	encoders := make(map[string]*LabelEncoder, len(t.LabelEncoders))
	columns := make([]string, 0, len(t.LabelEncoders))
	for col := range t.LabelEncoders {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	for _, col := range columns {
		if !IsCategorical(col) {
			result = multierror.Append(result, fmt.Errorf("%w: encoder for non-categorical column %q", ErrUnknownFeature, col))
			continue
		}
		enc, err := NewLabelEncoder(t.LabelEncoders[col])
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("encoder %q: %w", col, err))
			continue
		}
		encoders[col] = enc
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	order := DefaultFeatureOrder
	if len(t.FeaturesList) > 0 {
		order = t.FeaturesList
	}

	return &Store{
		t:        t,
		encoders: encoders,
		order:    append([]string(nil), order...),
	}, nil
}

// OverallAvg is the global mean duration used as the default for every
// historical average.
func (s *Store) OverallAvg() float64 { return s.t.OverallAvg }

// TargetMean is the predictor fallback: metadata.target_mean, or OverallAvg
// when the artifact has no metadata mean.
func (s *Store) TargetMean() float64 {
	if s.t.Metadata.TargetMean != nil {
		return *s.t.Metadata.TargetMean
	}
	return s.t.OverallAvg
}

// ShiftType reports the shift configuration the tables were built with.
func (s *Store) ShiftType() string { return s.t.Metadata.ShiftType }

// FeatureOrder returns the field order expected by the model. The returned
// slice must not be modified.
func (s *Store) FeatureOrder() []string { return s.order }

// Encoder returns the label encoder of a categorical column, or nil.
func (s *Store) Encoder(column string) *LabelEncoder { return s.encoders[column] }

// Table accessors. A miss returns ok=false; the caller applies the default.

func (s *Store) SlotAvg(slot string) (float64, bool)      { return get(s.t.SlotHistoricalAvg, slot) }
func (s *Store) TierAvg(tier string) (float64, bool)      { return get(s.t.TierHistoricalAvg, tier) }
func (s *Store) LokasiAvg(lokasi string) (float64, bool)  { return get(s.t.LokasiHistoricalAvg, lokasi) }
func (s *Store) HourAvg(hour int) (float64, bool)         { return get(s.t.HourHistoricalAvg, strconv.Itoa(hour)) }
func (s *Store) BlockTarget(block string) (float64, bool) { return get(s.t.BlockTargetEnc, block) }
func (s *Store) SlotStd(slot string) (float64, bool)      { return get(s.t.SlotDurationStd, slot) }
func (s *Store) SlotMin(slot string) (float64, bool)      { return get(s.t.SlotDurationMin, slot) }
func (s *Store) SlotMax(slot string) (float64, bool)      { return get(s.t.SlotDurationMax, slot) }
func (s *Store) HourlyVolume(hour int) (float64, bool)    { return get(s.t.HourlyVolume, strconv.Itoa(hour)) }
func (s *Store) Congestion(key string) (float64, bool)    { return get(s.t.CongestionByHourSlot, key) }

// History returns the lag history of a location key ("slot row tier").
func (s *Store) History(lokasi string) (LocationHistory, bool) {
	h, ok := s.t.LocationHistory[lokasi]
	return h, ok
}

// Summary is a printable overview of the artifact.
type Summary struct {
	SchemaVersion int
	Features      int
	ShiftType     string
	TargetMean    float64
	GeneratedAt   string
	DatasetSize   int
	TableSizes    map[string]int
	Encoders      map[string]int
}

// Summary reports table sizes and metadata.
func (s *Store) Summary() Summary {
	sizes := map[string]int{
		"slot_historical_avg":     len(s.t.SlotHistoricalAvg),
		"tier_historical_avg":     len(s.t.TierHistoricalAvg),
		"lokasi_historical_avg":   len(s.t.LokasiHistoricalAvg),
		"hour_historical_avg":     len(s.t.HourHistoricalAvg),
		"BLOCK_target_enc":        len(s.t.BlockTargetEnc),
		"LOKASI_target_enc":       len(s.t.LokasiTargetEnc),
		"slot_duration_std":       len(s.t.SlotDurationStd),
		"slot_duration_min":       len(s.t.SlotDurationMin),
		"slot_duration_max":       len(s.t.SlotDurationMax),
		"hourly_volume":           len(s.t.HourlyVolume),
		"congestion_by_hour_slot": len(s.t.CongestionByHourSlot),
		"location_history":        len(s.t.LocationHistory),
	}
	encoders := make(map[string]int, len(s.encoders))
	for col, enc := range s.encoders {
		encoders[col] = len(enc.Classes())
	}
	return Summary{
		SchemaVersion: s.t.SchemaVersion,
		Features:      len(s.order),
		ShiftType:     s.t.Metadata.ShiftType,
		TargetMean:    s.TargetMean(),
		GeneratedAt:   s.t.Metadata.GeneratedAt,
		DatasetSize:   s.t.Metadata.DatasetSize,
		TableSizes:    sizes,
		Encoders:      encoders,
	}
}

func get(m map[string]float64, key string) (float64, bool) {
	v, ok := m[key]
	return v, ok
}
