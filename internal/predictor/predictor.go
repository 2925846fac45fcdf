// Package predictor defines the duration model boundary and its clients.
//
// The model itself lives outside this service. A Predictor turns a derived
// feature vector into a processing duration in minutes; callers own the
// timeout and the fallback when it fails.
package predictor

import (
	"context"
	"errors"
	"math"

	"github.com/ChuLiYu/artg-queue/internal/features"
)

var (
	// ErrInvalidPrediction is returned for NaN or infinite model output.
	ErrInvalidPrediction = errors.New("predictor returned a non-finite duration")
	// ErrMissingPrediction is returned when a 2xx response carries no
	// predicted_duration_minutes.
	ErrMissingPrediction = errors.New("predictor response has no predicted_duration_minutes")
	// ErrUnavailable is returned when the model endpoint cannot be reached
	// or answers with a non-2xx status.
	ErrUnavailable = errors.New("predictor unavailable")
)

// Predictor predicts the processing duration, in minutes, of one gate-in.
type Predictor interface {
	Predict(ctx context.Context, v features.Vector) (float64, error)
}

// Func adapts a function to the Predictor interface.
type Func func(ctx context.Context, v features.Vector) (float64, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, v features.Vector) (float64, error) {
	return f(ctx, v)
}

// Constant always predicts the same duration. It backs the "mean" predictor
// kind, used when no model endpoint is deployed.
type Constant float64

// Predict returns c.
func (c Constant) Predict(ctx context.Context, _ features.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return float64(c), nil
}

// CheckFinite returns ErrInvalidPrediction for NaN and ±Inf.
func CheckFinite(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return ErrInvalidPrediction
	}
	return nil
}
