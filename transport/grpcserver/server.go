// Package grpcserver exposes the authentication engine as the
// auth.AuthService gRPC service.
//
// Messages are JSON encoded through a registered codec, so no generated
// protobuf code is needed. Clients select it with
// grpc.CallContentSubtype(CodecName); NewClient does this for every call.
package grpcserver

import (
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Options configures NewServer.
type Options struct {
	// Throttle limits requests per client IP. Nil disables throttling.
	Throttle *Throttle
	// ServerOptions are appended after the interceptor chain.
	ServerOptions []grpc.ServerOption
}

// NewServer builds a grpc.Server serving auth over the interceptor chain
// recovery, client info, logging, throttle. It also registers the standard
// health service, returned so callers can flip its status on shutdown.
func NewServer(auth Authenticator, log zerolog.Logger, opts Options) (*grpc.Server, *health.Server, error) {
	svc, err := NewService(auth)
	if err != nil {
		return nil, nil, err
	}

	chain := []grpc.UnaryServerInterceptor{
		RecoveryInterceptor(log),
		ClientInfoInterceptor(),
		LoggingInterceptor(log),
	}
	if opts.Throttle != nil {
		chain = append(chain, opts.Throttle.UnaryInterceptor())
	}

	serverOpts := append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(chain...)}, opts.ServerOptions...)
	srv := grpc.NewServer(serverOpts...)
	RegisterAuthServiceServer(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs, nil
}
