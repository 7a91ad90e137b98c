package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls auth.AuthService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, req *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c, "Login", req, opts)
}

func (c *Client) Register(ctx context.Context, req *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c, "Register", req, opts)
}

func (c *Client) RefreshToken(ctx context.Context, req *RefreshTokenRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c, "RefreshToken", req, opts)
}

func (c *Client) Enable2FA(ctx context.Context, req *UserRequest, opts ...grpc.CallOption) (*Enable2FAResponse, error) {
	return invoke[Enable2FAResponse](ctx, c, "Enable2FA", req, opts)
}

func (c *Client) Verify2FA(ctx context.Context, req *Verify2FARequest, opts ...grpc.CallOption) (*SuccessResponse, error) {
	return invoke[SuccessResponse](ctx, c, "Verify2FA", req, opts)
}

func (c *Client) VerifyBackupCode(ctx context.Context, req *Verify2FARequest, opts ...grpc.CallOption) (*SuccessResponse, error) {
	return invoke[SuccessResponse](ctx, c, "VerifyBackupCode", req, opts)
}

func (c *Client) Disable2FA(ctx context.Context, req *UserRequest, opts ...grpc.CallOption) (*SuccessResponse, error) {
	return invoke[SuccessResponse](ctx, c, "Disable2FA", req, opts)
}

func (c *Client) GetAnomalyStats(ctx context.Context, req *UserRequest, opts ...grpc.CallOption) (*AnomalyStatsResponse, error) {
	return invoke[AnomalyStatsResponse](ctx, c, "GetAnomalyStats", req, opts)
}

func (c *Client) RevokeToken(ctx context.Context, req *RevokeTokenRequest, opts ...grpc.CallOption) (*SuccessResponse, error) {
	return invoke[SuccessResponse](ctx, c, "RevokeToken", req, opts)
}

func (c *Client) RevokeAll(ctx context.Context, req *UserRequest, opts ...grpc.CallOption) (*RevokeAllResponse, error) {
	return invoke[RevokeAllResponse](ctx, c, "RevokeAll", req, opts)
}

func (c *Client) ListActiveTokens(ctx context.Context, req *UserRequest, opts ...grpc.CallOption) (*ListActiveTokensResponse, error) {
	return invoke[ListActiveTokensResponse](ctx, c, "ListActiveTokens", req, opts)
}
