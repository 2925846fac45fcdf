package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ChuLiYu/artg-queue/internal/features"
)

// Request is the body posted to the model endpoint. Features are in the
// model's field order.
type Request struct {
	FeatureNames []string  `json:"feature_names"`
	Features     []float64 `json:"features"`
}

// Response is the model endpoint's answer. The duration is a pointer so an
// absent field is told apart from a 0-minute prediction.
type Response struct {
	PredictedDurationMinutes *float64 `json:"predicted_duration_minutes"`
}

// HTTPClient calls a model server over JSON/HTTP.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient creates a client for the model endpoint at url. A zero
// timeout leaves deadlines to the caller's context.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Predict posts v to the endpoint and returns the predicted duration.
func (c *HTTPClient) Predict(ctx context.Context, v features.Vector) (float64, error) {
	body, err := json.Marshal(Request{FeatureNames: v.Names, Features: v.Values})
	if err != nil {
		return 0, fmt.Errorf("encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode predict response: %w", err)
	}
	if out.PredictedDurationMinutes == nil {
		return 0, ErrMissingPrediction
	}
	d := *out.PredictedDurationMinutes
	if err := CheckFinite(d); err != nil {
		return 0, err
	}
	return d, nil
}
