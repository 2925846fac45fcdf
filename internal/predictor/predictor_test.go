package predictor

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/artg-queue/internal/features"
)

func testVector() features.Vector {
	return features.Vector{
		Names:  []string{"gate_in_hour", "slot_numeric"},
		Values: []float64{9, 42},
	}
}

func TestHTTPClientPredict(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		d := 12.5
		_ = json.NewEncoder(w).Encode(Response{PredictedDurationMinutes: &d})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	d, err := c.Predict(context.Background(), testVector())

	require.NoError(t, err)
	assert.Equal(t, 12.5, d)
	assert.Equal(t, []string{"gate_in_hour", "slot_numeric"}, got.FeatureNames)
	assert.Equal(t, []float64{9, 42}, got.Features)
}

func TestHTTPClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).Predict(context.Background(), testVector())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPClientBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).Predict(context.Background(), testVector())
	assert.Error(t, err)
}

func TestHTTPClientMissingField(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"wrong key", `{"prediction": 12.5}`},
		{"null", `{"predicted_duration_minutes": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d, err := NewHTTPClient(srv.URL, time.Second).Predict(context.Background(), testVector())
			assert.ErrorIs(t, err, ErrMissingPrediction)
			assert.Zero(t, d)
		})
	}
}

func TestHTTPClientZeroPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predicted_duration_minutes": 0}`))
	}))
	defer srv.Close()

	d, err := NewHTTPClient(srv.URL, time.Second).Predict(context.Background(), testVector())
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestHTTPClientContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewHTTPClient(srv.URL, 0).Predict(ctx, testVector())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, time.Second).Predict(context.Background(), testVector())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestConstant(t *testing.T) {
	d, err := Constant(21.5).Predict(context.Background(), testVector())
	require.NoError(t, err)
	assert.Equal(t, 21.5, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Constant(21.5).Predict(ctx, testVector())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFunc(t *testing.T) {
	var p Predictor = Func(func(_ context.Context, v features.Vector) (float64, error) {
		return float64(len(v.Names)), nil
	})
	d, err := p.Predict(context.Background(), testVector())
	require.NoError(t, err)
	assert.Equal(t, 2.0, d)
}

func TestCheckFinite(t *testing.T) {
	assert.NoError(t, CheckFinite(0))
	assert.NoError(t, CheckFinite(-3.2))
	assert.ErrorIs(t, CheckFinite(math.NaN()), ErrInvalidPrediction)
	assert.ErrorIs(t, CheckFinite(math.Inf(1)), ErrInvalidPrediction)
	assert.ErrorIs(t, CheckFinite(math.Inf(-1)), ErrInvalidPrediction)
}
