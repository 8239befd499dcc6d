// Package grpcserver runs the operational gRPC listener: standard health checks and reflection.
package grpcserver

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported by the health service besides the overall "" entry.
const ServiceName = "taskpulse"

// Ops serves grpc.health.v1 and server reflection.
type Ops struct {
	srv    *grpc.Server
	health *health.Server
	log    *zap.Logger
}

// NewOps builds the ops server wrapped in the logging and recover interceptors.
func NewOps(log *zap.Logger) *Ops {
	if log == nil {
		log = zap.NewNop()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return &Ops{srv: srv, health: hs, log: log}
}

// Serve blocks until the listener fails or Shutdown is called.
func (o *Ops) Serve(lis net.Listener) error {
	o.log.Info("starting ops grpc server", zap.String("addr", lis.Addr().String()))
	if err := o.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// SetServing flips the health of the service.
func (o *Ops) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !serving {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	o.health.SetServingStatus("", st)
	o.health.SetServingStatus(ServiceName, st)
}

// Shutdown reports NOT_SERVING, then stops gracefully or hard when ctx expires.
func (o *Ops) Shutdown(ctx context.Context) {
	o.health.Shutdown()
	done := make(chan struct{})
	go func() {
		o.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.srv.Stop()
		<-done
	}
}
