package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MrEthical07/authshield"
)

// toStatus converts an engine error to a gRPC status. The message is always
// authshield.PublicMessage so wrapped causes never reach the client.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeFor(err), authshield.PublicMessage(err))
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, authshield.ErrValidation), errors.Is(err, authshield.ErrWeakPassword):
		return codes.InvalidArgument
	case errors.Is(err, authshield.ErrInvalidCredentials),
		errors.Is(err, authshield.ErrAccountInactive),
		errors.Is(err, authshield.ErrInvalidToken),
		errors.Is(err, authshield.ErrTokenExpired),
		errors.Is(err, authshield.ErrTokenRevoked),
		errors.Is(err, authshield.ErrInvalidTwoFactorCode):
		return codes.Unauthenticated
	case errors.Is(err, authshield.ErrTooManyAttempts):
		return codes.ResourceExhausted
	case errors.Is(err, authshield.ErrTwoFactorRequired),
		errors.Is(err, authshield.ErrTwoFactorNotEnabled),
		errors.Is(err, authshield.ErrTwoFactorAlreadyEnabled):
		return codes.FailedPrecondition
	case errors.Is(err, authshield.ErrUserNotFound):
		return codes.NotFound
	case errors.Is(err, authshield.ErrUserExists):
		return codes.AlreadyExists
	case errors.Is(err, authshield.ErrStoreUnavailable), errors.Is(err, authshield.ErrEngineNotReady):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
