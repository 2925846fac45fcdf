package lookup

// Feature names shared with the offline training job. The order of
// DefaultFeatureOrder is the order the model was trained on when the artifact
// carries no explicit features_list.

// Categorical columns, label-encoded before they reach the model.
const (
	FeatJobType       = "JOB_TYPE"
	FeatContainerSize = "CONTAINER_SIZE"
	FeatCtrStatus     = "CTR_STATUS"
	FeatContainerType = "CONTAINER_TYPE"
	FeatSlot          = "slot"
	FeatTier          = "tier"
	FeatBlock         = "block"
	FeatShift         = "gate_in_shift"
)

// Numerical columns.
const (
	FeatHour                 = "gate_in_hour"
	FeatDayOfWeek            = "gate_in_dayofweek"
	FeatDay                  = "gate_in_day"
	FeatMonth                = "gate_in_month"
	FeatIsWeekend            = "gate_in_is_weekend"
	FeatIsPeak               = "gate_in_is_peak"
	FeatSlotNumeric          = "slot_numeric"
	FeatRowNumeric           = "row_numeric"
	FeatTierNumeric          = "tier_numeric"
	FeatBlockNumeric         = "block_numeric"
	FeatDistanceFromGate     = "distance_from_gate"
	FeatVerticalDistance     = "vertical_distance"
	FeatHourlyVolume         = "hourly_volume"
	FeatCongestionCount      = "congestion_count"
	FeatSlotHistoricalAvg    = "slot_historical_avg"
	FeatTierHistoricalAvg    = "tier_historical_avg"
	FeatLokasiHistoricalAvg  = "lokasi_historical_avg"
	FeatHourHistoricalAvg    = "hour_historical_avg"
	FeatContainerSizeNumeric = "container_size_numeric"
	FeatIsEmpty              = "is_empty"
	FeatIsFull               = "is_full"
	FeatIsReefer             = "is_reefer"
	FeatIsSpecial            = "is_special"
	FeatIsMorningRush        = "is_morning_rush"
	FeatIsAfternoonRush      = "is_afternoon_rush"
	FeatIsRushHour           = "is_rush_hour"
	FeatSlotTier             = "slot_tier_interaction"
	FeatSizeTier             = "size_tier_interaction"
	FeatCongestionTier       = "congestion_tier"
	FeatRushHourCongestion   = "rush_hour_congestion"
	FeatSlotDurationStd      = "slot_duration_std"
	FeatSlotDurationMin      = "slot_duration_min"
	FeatSlotDurationMax      = "slot_duration_max"
	FeatPrevDuration         = "prev_duration_same_location"
	FeatRollingMean3         = "rolling_mean_3"
	FeatBlockTargetEnc       = "BLOCK_target_enc"
	FeatLokasiTargetEnc      = "LOKASI_target_enc"
)

// CategoricalFeatures lists the label-encoded columns in model order.
var CategoricalFeatures = []string{
	FeatJobType, FeatContainerSize, FeatCtrStatus, FeatContainerType,
	FeatSlot, FeatTier, FeatBlock, FeatShift,
}

// NumericalFeatures lists the numeric columns in model order.
var NumericalFeatures = []string{
	FeatHour, FeatDayOfWeek, FeatDay, FeatMonth,
	FeatIsWeekend, FeatIsPeak,
	FeatSlotNumeric, FeatRowNumeric, FeatTierNumeric, FeatBlockNumeric,
	FeatDistanceFromGate, FeatVerticalDistance,
	FeatHourlyVolume, FeatCongestionCount,
	FeatSlotHistoricalAvg, FeatTierHistoricalAvg,
	FeatLokasiHistoricalAvg, FeatHourHistoricalAvg,
	FeatContainerSizeNumeric, FeatIsEmpty, FeatIsFull, FeatIsReefer, FeatIsSpecial,
	FeatIsMorningRush, FeatIsAfternoonRush, FeatIsRushHour,
	FeatSlotTier, FeatSizeTier,
	FeatCongestionTier, FeatRushHourCongestion,
	FeatSlotDurationStd, FeatSlotDurationMin, FeatSlotDurationMax,
	FeatPrevDuration, FeatRollingMean3,
	FeatBlockTargetEnc, FeatLokasiTargetEnc,
}

// DefaultFeatureOrder is CategoricalFeatures followed by NumericalFeatures.
var DefaultFeatureOrder = append(append([]string{}, CategoricalFeatures...), NumericalFeatures...)

var (
	knownFeatures     = toSet(DefaultFeatureOrder)
	categoricalLookup = toSet(CategoricalFeatures)
)

// IsKnownFeature reports whether name is produced by the feature deriver.
func IsKnownFeature(name string) bool {
	_, ok := knownFeatures[name]
	return ok
}

// IsCategorical reports whether name is a label-encoded column.
func IsCategorical(name string) bool {
	_, ok := categoricalLookup[name]
	return ok
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
