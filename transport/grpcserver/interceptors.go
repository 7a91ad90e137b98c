package grpcserver

import (
	"context"
	"net"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/internal/logging"
)

const unknownClient = "unknown"

// RecoveryInterceptor turns handler panics into Internal statuses.
func RecoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str(logging.FieldMethod, info.FullMethod).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("grpc handler panic")
				err = status.Error(codes.Internal, "Internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call with service, method, duration and
// status code. Failures log at warn, internal failures at error.
func LoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		st := status.Convert(err)
		var ev *zerolog.Event
		switch st.Code() {
		case codes.OK:
			ev = log.Debug()
		case codes.Internal, codes.Unknown, codes.Unavailable:
			ev = log.Error()
		default:
			ev = log.Warn()
		}
		ev = ev.
			Str("service", path.Dir(info.FullMethod)[1:]).
			Str(logging.FieldMethod, path.Base(info.FullMethod)).
			Dur(logging.FieldDuration, time.Since(start)).
			Str("status", st.Code().String()).
			Str(logging.FieldIP, ClientIP(ctx))
		if err != nil {
			ev = ev.Str("error", st.Message())
		}
		ev.Msg("grpc call")
		return resp, err
	}
}

// ClientInfoInterceptor attaches the caller's IP and user agent to the
// request context for the engine.
func ClientInfoInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = authshield.WithClientIP(ctx, ClientIP(ctx))
		ctx = authshield.WithUserAgent(ctx, UserAgent(ctx))
		return handler(ctx, req)
	}
}

// ClientIP resolves the caller address from x-forwarded-for, then
// x-real-ip, then the transport peer. Missing information yields "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-forwarded-for"); len(v) > 0 {
			first := strings.TrimSpace(strings.Split(v[0], ",")[0])
			if first != "" {
				return first
			}
		}
		if v := md.Get("x-real-ip"); len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			return strings.TrimSpace(v[0])
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		if addr != "" {
			return addr
		}
	}
	return unknownClient
}

// UserAgent returns the user-agent metadata value or "unknown".
func UserAgent(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("user-agent"); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return unknownClient
}
