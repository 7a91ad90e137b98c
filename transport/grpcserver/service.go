package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/MrEthical07/authshield"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "auth.AuthService"

// Authenticator is the engine surface the service calls. *authshield.Engine
// satisfies it.
type Authenticator interface {
	Login(ctx context.Context, req authshield.LoginRequest) (*authshield.LoginResult, error)
	LoginWith2FA(ctx context.Context, req authshield.LoginRequest, code string) (*authshield.LoginResult, error)
	Register(ctx context.Context, req authshield.RegisterRequest) (*authshield.LoginResult, error)
	Refresh(ctx context.Context, sealedRefresh string) (*authshield.TokenPair, error)
	Enable2FA(ctx context.Context, userID string) (*authshield.TwoFactorEnrollment, error)
	Verify2FA(ctx context.Context, userID, code string) (bool, error)
	VerifyBackupCode(ctx context.Context, userID, code string) (bool, error)
	Disable2FA(ctx context.Context, userID string) error
	AnomalyStats(ctx context.Context, userID string) (authshield.AnomalyStats, error)
	RevokeToken(ctx context.Context, sealed string) error
	RevokeAll(ctx context.Context, userID string) (int, error)
	ListActiveTokens(ctx context.Context, userID string) ([]authshield.ActiveToken, error)
}

// AuthServiceServer is the server API of auth.AuthService.
type AuthServiceServer interface {
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*AuthResponse, error)
	Enable2FA(context.Context, *UserRequest) (*Enable2FAResponse, error)
	Verify2FA(context.Context, *Verify2FARequest) (*SuccessResponse, error)
	VerifyBackupCode(context.Context, *Verify2FARequest) (*SuccessResponse, error)
	Disable2FA(context.Context, *UserRequest) (*SuccessResponse, error)
	GetAnomalyStats(context.Context, *UserRequest) (*AnomalyStatsResponse, error)
	RevokeToken(context.Context, *RevokeTokenRequest) (*SuccessResponse, error)
	RevokeAll(context.Context, *UserRequest) (*RevokeAllResponse, error)
	ListActiveTokens(context.Context, *UserRequest) (*ListActiveTokensResponse, error)
}

// Service adapts an Authenticator to AuthServiceServer. Requests are
// validated before they reach the engine and engine errors leave as gRPC
// statuses.
type Service struct {
	auth Authenticator
}

// NewService returns a Service over auth.
func NewService(auth Authenticator) (*Service, error) {
	if auth == nil {
		return nil, errors.New("grpcserver: nil authenticator")
	}
	return &Service{auth: auth}, nil
}

var _ AuthServiceServer = (*Service)(nil)

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	in := authshield.LoginRequest{Email: req.Email, Password: req.Password}
	var (
		res *authshield.LoginResult
		err error
	)
	if req.TwoFactorCode != "" {
		res, err = s.auth.LoginWith2FA(ctx, in, req.TwoFactorCode)
	} else {
		res, err = s.auth.Login(ctx, in)
	}
	if errors.Is(err, authshield.ErrTwoFactorRequired) && res != nil {
		return &AuthResponse{UserID: res.UserID, TwoFactorRequired: true}, nil
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return authResponse(res), nil
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	res, err := s.auth.Register(ctx, authshield.RegisterRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		return nil, toStatus(err)
	}
	return authResponse(res), nil
}

func (s *Service) RefreshToken(ctx context.Context, req *RefreshTokenRequest) (*AuthResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	pair, err := s.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &AuthResponse{}
	setTokens(resp, pair)
	return resp, nil
}

func (s *Service) Enable2FA(ctx context.Context, req *UserRequest) (*Enable2FAResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	enrollment, err := s.auth.Enable2FA(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &Enable2FAResponse{
		QRCode:      enrollment.QRCode,
		URI:         enrollment.URI,
		BackupCodes: enrollment.BackupCodes,
	}, nil
}

func (s *Service) Verify2FA(ctx context.Context, req *Verify2FARequest) (*SuccessResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	ok, err := s.auth.Verify2FA(ctx, req.UserID, req.Token)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SuccessResponse{Success: ok}, nil
}

func (s *Service) VerifyBackupCode(ctx context.Context, req *Verify2FARequest) (*SuccessResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	ok, err := s.auth.VerifyBackupCode(ctx, req.UserID, req.Token)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SuccessResponse{Success: ok}, nil
}

func (s *Service) Disable2FA(ctx context.Context, req *UserRequest) (*SuccessResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.auth.Disable2FA(ctx, req.UserID); err != nil {
		return nil, toStatus(err)
	}
	return &SuccessResponse{Success: true}, nil
}

func (s *Service) GetAnomalyStats(ctx context.Context, req *UserRequest) (*AnomalyStatsResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	stats, err := s.auth.AnomalyStats(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AnomalyStatsResponse{
		TotalEvents:   stats.TotalEvents,
		AnomalyEvents: stats.AnomalyEvents,
		AverageScore:  stats.AverageScore,
		LastAnomaly:   stats.LastAnomaly,
	}, nil
}

func (s *Service) RevokeToken(ctx context.Context, req *RevokeTokenRequest) (*SuccessResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.auth.RevokeToken(ctx, req.Token); err != nil {
		return nil, toStatus(err)
	}
	return &SuccessResponse{Success: true}, nil
}

func (s *Service) RevokeAll(ctx context.Context, req *UserRequest) (*RevokeAllResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	n, err := s.auth.RevokeAll(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RevokeAllResponse{Revoked: n}, nil
}

func (s *Service) ListActiveTokens(ctx context.Context, req *UserRequest) (*ListActiveTokensResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	records, err := s.auth.ListActiveTokens(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &ListActiveTokensResponse{Tokens: make([]ActiveToken, 0, len(records))}
	for _, r := range records {
		out.Tokens = append(out.Tokens, ActiveToken{
			JTI:       r.JTI,
			Type:      string(r.Type),
			IssuedAt:  r.IssuedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return out, nil
}

func authResponse(res *authshield.LoginResult) *AuthResponse {
	resp := &AuthResponse{
		UserID:      res.UserID,
		RiskScore:   res.Risk.Score,
		RiskFactors: res.Risk.Factors,
	}
	setTokens(resp, res.Tokens)
	return resp
}

func setTokens(resp *AuthResponse, pair *authshield.TokenPair) {
	if pair == nil {
		return
	}
	resp.AccessToken = pair.AccessToken
	resp.RefreshToken = pair.RefreshToken
	resp.AccessExpiresAt = pair.AccessExpiresAt
	resp.RefreshExpiresAt = pair.RefreshExpiresAt
}

// unaryHandler builds the method handler protoc-gen-go-grpc would generate
// for one method.
func unaryHandler[Req, Resp any](method string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes auth.AuthService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler("Login", AuthServiceServer.Login)},
		{MethodName: "Register", Handler: unaryHandler("Register", AuthServiceServer.Register)},
		{MethodName: "RefreshToken", Handler: unaryHandler("RefreshToken", AuthServiceServer.RefreshToken)},
		{MethodName: "Enable2FA", Handler: unaryHandler("Enable2FA", AuthServiceServer.Enable2FA)},
		{MethodName: "Verify2FA", Handler: unaryHandler("Verify2FA", AuthServiceServer.Verify2FA)},
		{MethodName: "VerifyBackupCode", Handler: unaryHandler("VerifyBackupCode", AuthServiceServer.VerifyBackupCode)},
		{MethodName: "Disable2FA", Handler: unaryHandler("Disable2FA", AuthServiceServer.Disable2FA)},
		{MethodName: "GetAnomalyStats", Handler: unaryHandler("GetAnomalyStats", AuthServiceServer.GetAnomalyStats)},
		{MethodName: "RevokeToken", Handler: unaryHandler("RevokeToken", AuthServiceServer.RevokeToken)},
		{MethodName: "RevokeAll", Handler: unaryHandler("RevokeAll", AuthServiceServer.RevokeAll)},
		{MethodName: "ListActiveTokens", Handler: unaryHandler("ListActiveTokens", AuthServiceServer.ListActiveTokens)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auth.proto",
}

// RegisterAuthServiceServer registers srv on s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
