// Package api serves the block queue management HTTP API.
//
// Routes:
//
//	GET    /                             service health and artifact summary
//	GET    /blocks                       every block with its queue
//	GET    /blocks/{id}/stats            stats of one block
//	GET    /stats                        stats across all blocks
//	POST   /blocks/{id}/add_truck        manual add through the full pipeline
//	DELETE /blocks/{id}/truck/{index}    remove one queued truck
//	POST   /blocks/{id}/clear            empty one block
//	POST   /demo/populate                reset and seed the demo dataset
//	POST   /events                       queue a live gate-in event
//
// Errors are {"error": "..."} with 400 for bad input, 409 for duplicates and
// 500 otherwise.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/artg-queue/internal/lookup"
	"github.com/ChuLiYu/artg-queue/internal/pipeline"
	"github.com/ChuLiYu/artg-queue/internal/worker"
	"github.com/ChuLiYu/artg-queue/pkg/types"
)

const (
	ServiceName = "ARTG Multi-Block Queue Management"
	Version     = "2.0"

	maxBodyBytes = 1 << 20
)

// Backend is the part of the pipeline the API drives.
type Backend interface {
	Blocks() map[int]pipeline.BlockView
	BlockStats(blockID int) (types.BlockStats, error)
	GlobalStats() types.GlobalStats
	AddTruck(ctx context.Context, blockID int, req pipeline.AddTruckRequest) (types.QueueEntry, error)
	RemoveTruck(blockID, index int) (types.QueueEntry, error)
	ClearBlock(blockID int) (int, error)
	PopulateDemo(ctx context.Context) (int, error)
	Lookups() *lookup.Store
}

// Submitter queues live events (worker.Pool).
type Submitter interface {
	TrySubmit(task worker.Task) error
}

// Options configures the API.
type Options struct {
	Backend     Backend
	Ingest      Submitter // nil disables POST /events
	TaskTimeout time.Duration
	Model       string // reported by GET /
	Logger      *slog.Logger
}

// API holds the handlers.
type API struct {
	backend     Backend
	ingest      Submitter
	taskTimeout time.Duration
	model       string
	log         *slog.Logger
}

// New creates the API.
func New(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Model == "" {
		opts.Model = "external"
	}
	return &API{
		backend:     opts.Backend,
		ingest:      opts.Ingest,
		taskTimeout: opts.TaskTimeout,
		model:       opts.Model,
		log:         opts.Logger,
	}
}

// Handler returns the routed handler with logging and panic recovery.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleHome)
	mux.HandleFunc("GET /blocks", a.handleBlocks)
	mux.HandleFunc("GET /blocks/{id}/stats", a.handleBlockStats)
	mux.HandleFunc("GET /stats", a.handleGlobalStats)
	mux.HandleFunc("POST /blocks/{id}/add_truck", a.handleAddTruck)
	mux.HandleFunc("DELETE /blocks/{id}/truck/{index}", a.handleRemoveTruck)
	mux.HandleFunc("POST /blocks/{id}/clear", a.handleClearBlock)
	mux.HandleFunc("POST /demo/populate", a.handlePopulateDemo)
	mux.HandleFunc("POST /events", a.handleEvent)
	return a.withRecovery(a.withLogging(mux))
}

// Run serves the API on addr until ctx is canceled.
func (a *API) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.log.Info("Starting management API", "addr", addr)

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("management API failed: %w", err)
	}
}

// ============================================================================
// Handlers
// ============================================================================

func (a *API) handleHome(w http.ResponseWriter, _ *http.Request) {
	sum := a.backend.Lookups().Summary()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "running",
		"service":    ServiceName,
		"model":      a.model,
		"features":   sum.Features,
		"shift_type": sum.ShiftType,
		"blocks":     types.BlockCount,
		"version":    Version,
	})
}

func (a *API) handleBlocks(w http.ResponseWriter, _ *http.Request) {
	blocks := a.backend.Blocks()
	out := make(map[string]pipeline.BlockView, len(blocks))
	for id, view := range blocks {
		if view.Queue == nil {
			view.Queue = []types.QueueEntry{}
		}
		out[strconv.Itoa(id)] = view
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleBlockStats(w http.ResponseWriter, r *http.Request) {
	id, ok := blockID(w, r)
	if !ok {
		return
	}
	stats, err := a.backend.BlockStats(id)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleGlobalStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.backend.GlobalStats())
}

func (a *API) handleAddTruck(w http.ResponseWriter, r *http.Request) {
	id, ok := blockID(w, r)
	if !ok {
		return
	}
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}

	entry, err := a.backend.AddTruck(r.Context(), id, pipeline.ParseAddTruckRequest(body))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"truck":   entry,
		"message": fmt.Sprintf("Truck %s added successfully to %s", entry.TruckID, types.BlockLabel(id)),
	})
}

func (a *API) handleRemoveTruck(w http.ResponseWriter, r *http.Request) {
	id, ok := blockID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, types.ErrIndexOutOfRange.Error())
		return
	}

	removed, err := a.backend.RemoveTruck(id, index)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       fmt.Sprintf("Truck %s removed successfully", removed.TruckID),
		"removed_truck": removed,
	})
}

func (a *API) handleClearBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := blockID(w, r)
	if !ok {
		return
	}
	n, err := a.backend.ClearBlock(id)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        fmt.Sprintf("%s cleared successfully", types.BlockLabel(id)),
		"trucks_removed": n,
	})
}

func (a *API) handlePopulateDemo(w http.ResponseWriter, r *http.Request) {
	added, err := a.backend.PopulateDemo(r.Context())
	if err != nil && added == 0 {
		a.writeErr(w, err)
		return
	}
	if err != nil {
		a.log.Warn("Demo data partially populated", "added", added, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Demo data populated successfully",
		"trucks_added": added,
	})
}

func (a *API) handleEvent(w http.ResponseWriter, r *http.Request) {
	if a.ingest == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not enabled")
		return
	}
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}

	task := worker.Task{
		ID:         uuid.New().String(),
		Payload:    body,
		Timeout:    a.taskTimeout,
		ReceivedAt: time.Now(),
	}
	if err := a.ingest.TrySubmit(task); err != nil {
		switch {
		case errors.Is(err, worker.ErrPoolFull):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "task_id": task.ID})
}

// ============================================================================
// Helpers
// ============================================================================

func blockID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || !types.ValidBlock(id) {
		writeError(w, http.StatusBadRequest, types.ErrInvalidBlock.Error())
		return 0, false
	}
	return id, true
}

// decodeObject reads a JSON object body. An empty body is an empty object.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body := map[string]any{}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, true
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidBlock),
		errors.Is(err, types.ErrMissingField),
		errors.Is(err, types.ErrMalformedLocation),
		errors.Is(err, types.ErrStackNotAllowed),
		errors.Is(err, types.ErrIndexOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrDuplicateEvent):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeErr(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		a.log.Error("Request failed", "error", err)
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (a *API) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (a *API) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				a.log.Error("HTTP handler panicked", "path", r.URL.Path, "panic", rv)
				writeError(w, http.StatusInternalServerError, fmt.Sprint(rv))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
