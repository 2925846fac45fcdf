package lookup_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ChuLiYu/artg-queue/internal/lookup"
	"github.com/ChuLiYu/artg-queue/internal/lookup/lookuptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToCanonicalOrder(t *testing.T) {
	s := lookuptest.Store(t)

	order := s.FeatureOrder()
	require.Len(t, order, 45)
	assert.Equal(t, lookup.FeatJobType, order[0])
	assert.Equal(t, lookup.FeatShift, order[7])
	assert.Equal(t, lookup.FeatHour, order[8])
	assert.Equal(t, lookup.FeatLokasiTargetEnc, order[44])
}

func TestNewUsesFeaturesList(t *testing.T) {
	tables := lookuptest.Tables()
	tables.FeaturesList = []string{lookup.FeatHour, lookup.FeatSlot}

	s, err := lookup.New(tables)
	require.NoError(t, err)
	assert.Equal(t, []string{lookup.FeatHour, lookup.FeatSlot}, s.FeatureOrder())
}

func TestNewAggregatesValidationErrors(t *testing.T) {
	tables := lookuptest.Tables()
	tables.SchemaVersion = 2
	tables.FeaturesList = []string{"gate_in_hour", "not_a_feature"}
	tables.LabelEncoders["gate_in_hour"] = []string{"1"}
	tables.LabelEncoders[lookup.FeatTier] = []string{"1", "1"}
	tables.LabelEncoders[lookup.FeatSlot] = nil

	_, err := lookup.New(tables)
	require.Error(t, err)
	assert.ErrorIs(t, err, lookup.ErrIncompatibleVersion)
	assert.ErrorIs(t, err, lookup.ErrUnknownFeature)
	assert.ErrorIs(t, err, lookup.ErrDuplicateClass)
	assert.ErrorIs(t, err, lookup.ErrEmptyEncoder)
	assert.Contains(t, err.Error(), "not_a_feature")
}

func TestAccessors(t *testing.T) {
	s := lookuptest.Store(t)

	v, ok := s.SlotAvg("42")
	assert.True(t, ok)
	assert.Equal(t, 18.5, v)

	_, ok = s.SlotAvg("999")
	assert.False(t, ok)

	v, ok = s.HourlyVolume(9)
	assert.True(t, ok)
	assert.Equal(t, 120.0, v)

	v, ok = s.Congestion("9_42")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	h, ok := s.History("42 6 1")
	assert.True(t, ok)
	assert.Equal(t, 12.0, h.RollingMean3)

	assert.Equal(t, lookuptest.TargetMean, s.TargetMean())
	assert.Equal(t, lookuptest.OverallAvg, s.OverallAvg())
	assert.Equal(t, "8_shifts_3hours", s.ShiftType())
}

func TestTargetMeanFallsBackToOverallAvg(t *testing.T) {
	tables := lookuptest.Tables()
	tables.Metadata.TargetMean = nil

	s, err := lookup.New(tables)
	require.NoError(t, err)
	assert.Equal(t, lookuptest.OverallAvg, s.TargetMean())
}

func TestLabelEncoder(t *testing.T) {
	enc, err := lookup.NewLabelEncoder([]string{"FCL", "FULL", "MTY"})
	require.NoError(t, err)

	code, known := enc.Encode("MTY")
	assert.True(t, known)
	assert.Equal(t, 2, code)

	code, known = enc.Encode("LCL")
	assert.False(t, known)
	assert.Equal(t, 0, code)
	assert.Equal(t, "FCL", enc.Fallback())

	_, err = lookup.NewLabelEncoder(nil)
	assert.ErrorIs(t, err, lookup.ErrEmptyEncoder)
}

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lookup_tables.json")

	require.NoError(t, lookup.Write(path, lookuptest.Tables()))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	s, err := lookup.Load(path)
	require.NoError(t, err)

	v, ok := s.BlockTarget("D1")
	assert.True(t, ok)
	assert.Equal(t, 25.0, v)

	sum := s.Summary()
	assert.Equal(t, 45, sum.Features)
	assert.Equal(t, 1, sum.TableSizes["location_history"])
	assert.Equal(t, 8, sum.Encoders[lookup.FeatShift])
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := lookup.Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, lookup.ErrArtifactNotFound)

	corrupted := filepath.Join(dir, "corrupted.json")
	require.NoError(t, os.WriteFile(corrupted, []byte("{not json"), 0644))
	_, err = lookup.Load(corrupted)
	assert.ErrorIs(t, err, lookup.ErrCorruptedArtifact)

	wrongVersion := filepath.Join(dir, "v9.json")
	require.NoError(t, os.WriteFile(wrongVersion, []byte(`{"schema_version": 9, "overall_avg": 1}`), 0644))
	_, err = lookup.Load(wrongVersion)
	assert.ErrorIs(t, err, lookup.ErrIncompatibleVersion)
}
