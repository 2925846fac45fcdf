package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChuLiYu/artg-queue/pkg/types"
)

// Alias priority lists. The first present key wins; nil, "", 0 and false
// count as absent, matching what upstream gate systems send for "no value".
var (
	truckIDKeys    = []string{"truck_id", "TRUCK_ID"}
	gateInKeys     = []string{"GATE_IN_TIME", "gate_in_time", "gate_in"}
	toBlockKeys    = []string{"to_block", "TO_BLOCK"}
	blockKeys      = []string{"block", "BLOCK"}
	slotKeys       = []string{"X", "slot", "SLOT"}
	rowKeys        = []string{"Y", "row", "ROW"}
	tierKeys       = []string{"Z", "tier", "TIER"}
	sizeKeys       = []string{"CTR_SIZE", "container_size", "CONTAINER_SIZE"}
	typeKeys       = []string{"CTR_TYPE", "container_type", "CONTAINER_TYPE"}
	statusKeys     = []string{"CTR_STATUS", "ctr_status"}
	activityKeys   = []string{"activity", "ACTIVITY"}
	jobTypeKeys    = []string{"job_type"}
	defaultTruckID = "UNKNOWN"
)

// Normalize maps a raw gate-in payload onto the canonical event. now supplies
// gate_in_time when the payload has none.
func Normalize(payload map[string]any, now time.Time) types.RawTruckEvent {
	activity := strings.ToUpper(strings.TrimSpace(first(payload, activityKeys, "")))

	jobType := first(payload, jobTypeKeys, "")
	if jobType == "" {
		jobType = "IMPORT"
		if activity == "DELIVERY" {
			jobType = "EXPORT"
		}
	}

	return types.RawTruckEvent{
		TruckID:         first(payload, truckIDKeys, defaultTruckID),
		GateInTime:      first(payload, gateInKeys, now.Format("2006-01-02T15:04:05.000000")),
		ToBlock:         strings.TrimSpace(first(payload, toBlockKeys, "")),
		Block:           strings.TrimSpace(first(payload, blockKeys, "")),
		Slot:            strings.TrimSpace(first(payload, slotKeys, "1")),
		Row:             strings.TrimSpace(first(payload, rowKeys, "1")),
		Tier:            strings.TrimSpace(first(payload, tierKeys, "1")),
		ContainerSize:   strings.TrimSpace(first(payload, sizeKeys, "40")),
		ContainerType:   strings.TrimSpace(first(payload, typeKeys, "DRY")),
		ContainerStatus: strings.TrimSpace(first(payload, statusKeys, "FCL")),
		Activity:        activity,
		JobType:         jobType,
	}
}

// ResolveBlock picks the target block of an event and the block label used
// for feature derivation.
//
// A to_block starting with "D" is block 7; one starting with a digit is that
// digit. Otherwise the fallback block field is read by the same rule, and the
// default is block 1. The returned id may be outside 1..7 (for example
// to_block "9A"); the validator rejects it.
func ResolveBlock(ev types.RawTruckEvent) (id int, label string) {
	id, ok := blockFromLabel(ev.ToBlock)
	if !ok {
		id, ok = blockFromLabel(ev.Block)
	}
	if !ok {
		id = 1
	}

	switch {
	case id == types.BlockD1:
		label = "D1"
	case ev.ToBlock != "":
		label = ev.ToBlock
	case ev.Block != "":
		label = ev.Block
	default:
		label = strconv.Itoa(id)
	}
	return id, label
}

func blockFromLabel(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if s[0] == 'D' || s[0] == 'd' {
		return types.BlockD1, true
	}
	if s[0] >= '0' && s[0] <= '9' {
		return int(s[0] - '0'), true
	}
	return 0, false
}

// first returns the first present alias value as a string, or def.
func first(payload map[string]any, keys []string, def string) string {
	for _, k := range keys {
		if s, ok := present(payload[k]); ok {
			return s
		}
	}
	return def
}

// present stringifies v, reporting false for the "absent" values.
func present(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case bool:
		return "true", x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), x != 0
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), x != 0
	case int:
		return strconv.Itoa(x), x != 0
	case int64:
		return strconv.FormatInt(x, 10), x != 0
	case int32:
		return strconv.FormatInt(int64(x), 10), x != 0
	case fmt.Stringer:
		s := x.String()
		return s, s != ""
	default:
		s := fmt.Sprint(x)
		return s, s != ""
	}
}
