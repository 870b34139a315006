// Package grpc exposes a running engine over gRPC.
//
// RunServer talks to the engine only through the commbus: status is a
// GetRunStatus query, Stop is a StopRun command, and WatchEvents subscribes to
// the run lifecycle events.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeeves-cluster-organization/researchtown/commbus"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/observability"
)

// DefaultEventBuffer is the per-stream event queue size.
const DefaultEventBuffer = 64

// RunServer implements RunServiceServer on top of a commbus.
type RunServer struct {
	bus         commbus.CommBus
	logger      observability.Logger
	eventBuffer int
}

// NewRunServer creates a RunServer.
func NewRunServer(bus commbus.CommBus, logger observability.Logger) *RunServer {
	return &RunServer{
		bus:         bus,
		logger:      observability.OrNop(logger).Bind("component", "grpc"),
		eventBuffer: DefaultEventBuffer,
	}
}

// GetStatus queries the attached engine.
func (s *RunServer) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	result, err := s.bus.QuerySync(ctx, &commbus.GetRunStatus{})
	if err != nil {
		return nil, busError(err)
	}
	st, ok := result.(*commbus.RunStatus)
	if !ok {
		return nil, status.Errorf(codes.Internal, "unexpected status type %T", result)
	}
	return toStruct(st)
}

// Stop sends StopRun to the attached engine.
func (s *RunServer) Stop(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if !s.bus.HasHandler("StopRun") {
		return nil, status.Error(codes.Unavailable, "no run attached")
	}
	if err := s.bus.Send(ctx, &commbus.StopRun{Reason: req.GetValue()}); err != nil {
		return nil, busError(err)
	}
	s.logger.Info("grpc_stop_requested", "reason", req.GetValue())
	return &emptypb.Empty{}, nil
}

// WatchEvents streams run events until the run completes or fails, or the
// client goes away. Events that arrive while the queue is full are dropped.
func (s *RunServer) WatchEvents(_ *emptypb.Empty, stream RunService_WatchEventsServer) error {
	ctx := stream.Context()
	events := make(chan commbus.Message, s.eventBuffer)

	unsubscribe := make([]func(), 0, len(commbus.RunEventTypes))
	for _, eventType := range commbus.RunEventTypes {
		unsubscribe = append(unsubscribe, s.bus.Subscribe(eventType, func(_ context.Context, msg commbus.Message) (any, error) {
			select {
			case events <- msg:
			default:
				s.logger.Warn("grpc_event_dropped", "type", commbus.GetMessageType(msg))
			}
			return nil, nil
		}))
	}
	defer func() {
		for _, unsub := range unsubscribe {
			unsub()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-events:
			ev, err := EventToStruct(msg)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(ev); err != nil {
				return err
			}
			switch msg.(type) {
			case *commbus.RunCompleted, *commbus.RunFailed:
				return nil
			}
		}
	}
}

// EventToStruct encodes msg as {"type": <message type>, "event": <json>}.
func EventToStruct(msg commbus.Message) (*structpb.Struct, error) {
	fields, err := toMap(msg)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"type":  commbus.GetMessageType(msg),
		"event": fields,
	})
}

// DecodeStatus converts a GetStatus response back into a RunStatus.
func DecodeStatus(s *structpb.Struct) (commbus.RunStatus, error) {
	var st commbus.RunStatus
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

func toStruct(v any) (*structpb.Struct, error) {
	m, err := toMap(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return m, nil
}

func busError(err error) error {
	var (
		noHandler *commbus.NoHandlerError
		timeout   *commbus.QueryTimeoutError
		open      *commbus.CircuitOpenError
	)
	switch {
	case errors.As(err, &noHandler):
		return status.Error(codes.Unavailable, "no run attached")
	case errors.As(err, &timeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &open):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// =============================================================================
// GRACEFUL SERVER
// =============================================================================

// GracefulServer wraps a gRPC server carrying the run service and the
// standard health service.
type GracefulServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     observability.Logger
	address    string

	mu         sync.Mutex
	listener   net.Listener
	isShutdown bool
}

// NewGracefulServer creates a GracefulServer. With no opts the default
// interceptors and the OpenTelemetry stats handler are installed.
func NewGracefulServer(runServer *RunServer, address string, opts ...grpc.ServerOption) *GracefulServer {
	if len(opts) == 0 {
		opts = ServerOptions(runServer.logger)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterRunServiceServer(grpcServer, runServer)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(RunServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)

	return &GracefulServer{
		grpcServer: grpcServer,
		health:     hs,
		logger:     runServer.logger,
		address:    address,
	}
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	errCh := s.Serve(lis)

	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated", "reason", ctx.Err().Error())
		s.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// Serve serves on lis in a goroutine. The returned channel yields the serve
// error, if any, and is closed when serving ends.
func (s *GracefulServer) Serve(lis net.Listener) <-chan error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("grpc_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// GracefulStop marks the server NOT_SERVING and waits for in-flight calls.
func (s *GracefulServer) GracefulStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_graceful_stop_completed")
}

// ShutdownWithTimeout stops gracefully, forcing a hard stop after timeout.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("grpc_graceful_shutdown_timeout", "timeout_ms", timeout.Milliseconds())
		s.grpcServer.Stop()
	}
}

// Address returns the bound address, or the configured one before Serve.
func (s *GracefulServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// ServerOptions returns the default interceptor chain plus the OpenTelemetry
// stats handler.
func ServerOptions(logger observability.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger, nil),
			MetricsInterceptor(),
			LoggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor(logger, nil),
			StreamMetricsInterceptor(),
			StreamLoggingInterceptor(logger),
		),
	}
}
