package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/artg-queue/internal/metrics"
	"github.com/ChuLiYu/artg-queue/internal/notify"
	"github.com/ChuLiYu/artg-queue/internal/worker"
	"github.com/ChuLiYu/artg-queue/pkg/types"
)

const (
	DefaultSendBuffer      = notify.DefaultBufferSize
	DefaultShutdownTimeout = 10 * time.Second
)

// Submitter accepts gate-in tasks without blocking (worker.Pool).
type Submitter interface {
	TrySubmit(task worker.Task) error
}

// Config holds configuration for the ingestion server.
type Config struct {
	Pool            Submitter
	Hub             *notify.Hub
	Metrics         *metrics.Collector
	TaskTimeout     time.Duration // per-event processing timeout, 0 = none
	SendBuffer      int           // per-subscriber notification buffer
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Server hosts the GateIn gRPC service.
type Server struct {
	pool            Submitter
	hub             *notify.Hub
	metrics         *metrics.Collector
	taskTimeout     time.Duration
	sendBuffer      int
	shutdownTimeout time.Duration
	log             *slog.Logger

	done     chan struct{} // closed on shutdown to end open streams
	doneOnce sync.Once
}

// New creates a new ingestion server.
func New(cfg Config) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		pool:            cfg.Pool,
		hub:             cfg.Hub,
		metrics:         cfg.Metrics,
		taskTimeout:     cfg.TaskTimeout,
		sendBuffer:      cfg.SendBuffer,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             cfg.Logger,
		done:            make(chan struct{}),
	}
}

// Register attaches the GateIn service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Serve runs a gRPC server on lis and blocks until ctx is canceled or the
// server fails. Shutdown is graceful, forced after the shutdown timeout.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer()
	s.Register(gs)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.doneOnce.Do(func() { close(s.done) })
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.shutdownTimeout):
			s.log.Warn("gRPC graceful stop timed out, forcing stop")
			gs.Stop()
		}
	}()

	s.log.Info("Starting gate-in gRPC server", "addr", lis.Addr().String())
	if err := gs.Serve(lis); err != nil {
		return fmt.Errorf("gate-in gRPC server failed: %w", err)
	}
	<-stopped
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Publish queues one raw gate-in event for the worker pool.
func (s *Server) Publish(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.pool == nil {
		return nil, status.Error(codes.Unavailable, "ingestion is not enabled")
	}

	task := worker.Task{
		ID:         uuid.New().String(),
		Payload:    in.AsMap(),
		Timeout:    s.taskTimeout,
		ReceivedAt: time.Now(),
	}

	if err := s.pool.TrySubmit(task); err != nil {
		s.log.Warn("Gate-in event not accepted", "task_id", task.ID, "error", err)
		switch {
		case errors.Is(err, worker.ErrPoolFull):
			return nil, status.Error(codes.ResourceExhausted, err.Error())
		case errors.Is(err, worker.ErrPoolClosed), errors.Is(err, worker.ErrPoolNotStarted):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	return structpb.NewStruct(map[string]any{
		"accepted": true,
		"task_id":  task.ID,
	})
}

// Subscribe streams notifications until the client disconnects or the hub
// closes.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.hub == nil {
		return status.Error(codes.Unavailable, "notifications are not enabled")
	}

	sub := s.hub.Subscribe(s.sendBuffer)
	s.metrics.SetSubscribers(s.hub.Count())
	defer func() {
		s.hub.Unsubscribe(sub.ID)
		s.metrics.SetSubscribers(s.hub.Count())
	}()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case n, ok := <-sub.C:
			if !ok {
				return nil
			}
			msg, err := NotificationToStruct(n)
			if err != nil {
				s.log.Error("Failed to encode notification", "subscriber_id", sub.ID, "error", err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// NotificationToStruct encodes n with its JSON field names.
func NotificationToStruct(n types.Notification) (*structpb.Struct, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// StructToNotification decodes a struct produced by NotificationToStruct.
func StructToNotification(s *structpb.Struct) (types.Notification, error) {
	var n types.Notification
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return n, err
	}
	err = json.Unmarshal(raw, &n)
	return n, err
}
