// ============================================================================
// ARTG Feature Deriver - gate-in event to model feature vector
// ============================================================================
//
// Package: internal/features
// File: deriver.go
// Purpose: Reproduces, value for value, the features the duration model was
//          trained on
//
// Stages (later stages read columns produced by earlier ones):
//   1. clean categorical text (trim, strip a trailing ".0")
//   2. location key "slot row tier"
//   3. time features, shift_1..shift_8
//   4. numeric location features
//   5. density lookups (hourly volume, hour-slot congestion)
//   6. historical averages (slot, tier, location, hour)
//   7. container features
//   8. rush-hour flags
//   9. interaction terms
//  10. slot duration statistics
//  11. lag features
//  12. target encodings
//  13. label encoding of categorical columns
//  14. projection onto the model's field order, missing values filled with 0
//
// Derive never fails. Every lookup miss or parse failure resolves to the
// default listed next to it below; tests lock those defaults in.
//
// ============================================================================

package features

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ChuLiYu/artg-queue/internal/lookup"
)

// Defaults applied when a lookup misses.
const (
	DefaultHourlyVolume     = 50.0
	DefaultCongestion       = 10.0
	DefaultSlotDurationStd  = 0.0
	DefaultSlotDurationMin  = 7.35
	DefaultSlotDurationMax  = 42.47
	DefaultContainerSizeNum = 20
)

var (
	peakHours      = map[int]bool{9: true, 10: true, 11: true, 13: true, 14: true, 15: true}
	morningRush    = map[int]bool{8: true, 9: true, 10: true}
	afternoonRush  = map[int]bool{13: true, 14: true, 15: true}
	digitsRe       = regexp.MustCompile(`\d+`)
	reeferMarkers  = []string{"RF", "REEFER", "RH"}
	specialMarkers = []string{"OT", "FR", "FLAT", "OPEN"}
)

// Input is the raw, per-event data the deriver works from.
type Input struct {
	JobType       string
	ContainerSize string
	CtrStatus     string
	ContainerType string
	Slot          string
	Row           string
	Tier          string
	Block         string
	GateInTime    string
}

// Vector is the ordered feature record handed to the predictor. Categorical
// columns hold their label-encoded index.
type Vector struct {
	Names  []string
	Values []float64
}

// Get returns the value of a named feature.
func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Map returns the vector as name -> value.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.Names))
	for i, n := range v.Names {
		m[n] = v.Values[i]
	}
	return m
}

// Options configures a Deriver.
type Options struct {
	Now    func() time.Time // fallback gate-in time; defaults to time.Now
	Logger *slog.Logger
}

// Deriver turns an Input into a Vector using a read-only lookup store.
// It is safe for concurrent use.
type Deriver struct {
	store *lookup.Store
	now   func() time.Time
	log   *slog.Logger
}

// NewDeriver creates a Deriver over store.
func NewDeriver(store *lookup.Store, opts Options) *Deriver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Deriver{store: store, now: opts.Now, log: opts.Logger}
}

// Derive computes the feature vector of in in the store's feature order.
func (d *Deriver) Derive(in Input) Vector {
	cols := d.columns(in)

	order := d.store.FeatureOrder()
	v := Vector{
		Names:  append([]string(nil), order...),
		Values: make([]float64, len(order)),
	}
	for i, name := range order {
		x, ok := cols[name]
		if !ok || math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		v.Values[i] = x
	}
	return v
}

// columns computes every derived column, categoricals already encoded.
func (d *Deriver) columns(in Input) map[string]float64 {
	s := d.store
	overall := s.OverallAvg()

	// 1. categorical cleanup
	slot := CleanCategorical(in.Slot)
	tier := CleanCategorical(in.Tier)
	block := CleanCategorical(in.Block)
	rowNum := parseInt(CleanCategorical(in.Row))

	// 2. location key
	lokasi := LocationKey(slot, rowNum, tier)

	// 3. time
	gateIn, _ := ParseGateIn(in.GateInTime, d.now())
	hour := gateIn.Hour()
	dow := (int(gateIn.Weekday()) + 6) % 7 // Monday=0
	shift := Shift(hour)

	// 4. numeric location
	slotNum := parseInt(slot)
	tierNum := parseInt(tier)
	blockNum := firstInt(block, 0)
	distance := slotNum*10 + rowNum*2 + tierNum*3
	vertical := tierNum * tierNum

	// 5. density
	hourlyVolume := orDefault(s.HourlyVolume(hour))(DefaultHourlyVolume)
	congestion := orDefault(s.Congestion(strconv.Itoa(hour) + "_" + slot))(DefaultCongestion)

	// 6. historical averages
	slotAvg := orDefault(s.SlotAvg(slot))(overall)
	tierAvg := orDefault(s.TierAvg(tier))(overall)
	lokasiAvg := orDefault(s.LokasiAvg(lokasi))(overall)
	hourAvg := orDefault(s.HourAvg(hour))(overall)

	// 7. container
	sizeNum := firstInt(in.ContainerSize, DefaultContainerSizeNum)
	isEmpty := boolf(in.CtrStatus == "MTY")
	isFull := boolf(in.CtrStatus == "FCL")
	isReefer := boolf(containsAnyFold(in.ContainerType, reeferMarkers))
	isSpecial := boolf(containsAnyFold(in.ContainerType, specialMarkers))

	// 8. rush hour
	isMorning := boolf(morningRush[hour])
	isAfternoon := boolf(afternoonRush[hour])
	isRush := boolf(morningRush[hour] || afternoonRush[hour])

	// 10. slot statistics
	slotStd := orDefault(s.SlotStd(slot))(DefaultSlotDurationStd)
	slotMin := orDefault(s.SlotMin(slot))(DefaultSlotDurationMin)
	slotMax := orDefault(s.SlotMax(slot))(DefaultSlotDurationMax)

	// 11. lag
	prevDuration, rollingMean := lokasiAvg, lokasiAvg
	if h, ok := s.History(lokasi); ok {
		prevDuration, rollingMean = h.LastDuration, h.RollingMean3
	}

	// 12. target encoding
	blockTarget := orDefault(s.BlockTarget(block))(overall)

	cols := map[string]float64{
		lookup.FeatHour:                 float64(hour),
		lookup.FeatDayOfWeek:            float64(dow),
		lookup.FeatDay:                  float64(gateIn.Day()),
		lookup.FeatMonth:                float64(gateIn.Month()),
		lookup.FeatIsWeekend:            boolf(dow >= 5),
		lookup.FeatIsPeak:               boolf(peakHours[hour]),
		lookup.FeatSlotNumeric:          float64(slotNum),
		lookup.FeatRowNumeric:           float64(rowNum),
		lookup.FeatTierNumeric:          float64(tierNum),
		lookup.FeatBlockNumeric:         float64(blockNum),
		lookup.FeatDistanceFromGate:     float64(distance),
		lookup.FeatVerticalDistance:     float64(vertical),
		lookup.FeatHourlyVolume:         hourlyVolume,
		lookup.FeatCongestionCount:      congestion,
		lookup.FeatSlotHistoricalAvg:    slotAvg,
		lookup.FeatTierHistoricalAvg:    tierAvg,
		lookup.FeatLokasiHistoricalAvg:  lokasiAvg,
		lookup.FeatHourHistoricalAvg:    hourAvg,
		lookup.FeatContainerSizeNumeric: float64(sizeNum),
		lookup.FeatIsEmpty:              isEmpty,
		lookup.FeatIsFull:               isFull,
		lookup.FeatIsReefer:             isReefer,
		lookup.FeatIsSpecial:            isSpecial,
		lookup.FeatIsMorningRush:        isMorning,
		lookup.FeatIsAfternoonRush:      isAfternoon,
		lookup.FeatIsRushHour:           isRush,
		lookup.FeatSlotTier:             float64(slotNum * tierNum),
		lookup.FeatSizeTier:             float64(sizeNum * tierNum),
		lookup.FeatCongestionTier:       congestion * float64(tierNum),
		lookup.FeatRushHourCongestion:   isRush * congestion,
		lookup.FeatSlotDurationStd:      slotStd,
		lookup.FeatSlotDurationMin:      slotMin,
		lookup.FeatSlotDurationMax:      slotMax,
		lookup.FeatPrevDuration:         prevDuration,
		lookup.FeatRollingMean3:         rollingMean,
		lookup.FeatBlockTargetEnc:       blockTarget,
		lookup.FeatLokasiTargetEnc:      lokasiAvg,
	}

	// 13. label encoding
	categorical := map[string]string{
		lookup.FeatJobType:       in.JobType,
		lookup.FeatContainerSize: in.ContainerSize,
		lookup.FeatCtrStatus:     in.CtrStatus,
		lookup.FeatContainerType: in.ContainerType,
		lookup.FeatSlot:          slot,
		lookup.FeatTier:          tier,
		lookup.FeatBlock:         block,
		lookup.FeatShift:         shift,
	}
	for _, col := range lookup.CategoricalFeatures {
		cols[col] = float64(d.encode(col, categorical[col]))
	}

	return cols
}

func (d *Deriver) encode(column, value string) int {
	enc := d.store.Encoder(column)
	if enc == nil {
		return 0
	}
	code, known := enc.Encode(value)
	if !known {
		d.log.Debug("Unseen categorical value replaced",
			"column", column,
			"value", value,
			"fallback", enc.Fallback())
	}
	return code
}

// CleanCategorical trims value and strips one trailing ".0", so "1.0" and
// "1" canonicalize to the same key.
func CleanCategorical(value string) string {
	s := strings.TrimSpace(value)
	return strings.TrimSuffix(s, ".0")
}

// LocationKey builds the "slot row tier" key used by the location tables.
func LocationKey(slot string, row int, tier string) string {
	return slot + " " + strconv.Itoa(row) + " " + tier
}

// parseInt reads s as a number truncated toward zero; 0 when s is not a
// finite number.
func parseInt(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// firstInt returns the first run of digits in s, or def.
func firstInt(s string, def int) int {
	m := digitsRe.FindString(s)
	if m == "" {
		return def
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return def
	}
	return n
}

func containsAnyFold(s string, markers []string) bool {
	upper := strings.ToUpper(s)
	for _, m := range markers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func orDefault(v float64, ok bool) func(float64) float64 {
	return func(def float64) float64 {
		if ok {
			return v
		}
		return def
	}
}
