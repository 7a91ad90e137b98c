package grpcserver

import "time"

// LoginRequest is the payload of AuthService/Login. TwoFactorCode accepts a
// TOTP code or an unused backup code.
type LoginRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	Password      string `json:"password" validate:"required,max=1024"`
	TwoFactorCode string `json:"twoFactorCode,omitempty" validate:"omitempty,max=16"`
}

// RegisterRequest is the payload of AuthService/Register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// RefreshTokenRequest is the payload of AuthService/RefreshToken.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// UserRequest carries only a user id.
type UserRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

// Verify2FARequest is the payload of AuthService/Verify2FA and
// AuthService/VerifyBackupCode.
type Verify2FARequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Token  string `json:"token" validate:"required,max=16"`
}

// RevokeTokenRequest revokes one sealed token.
type RevokeTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// AuthResponse is returned by Login, Register and RefreshToken. Tokens are
// empty when TwoFactorRequired is set.
type AuthResponse struct {
	UserID            string    `json:"userId,omitempty"`
	AccessToken       string    `json:"accessToken,omitempty"`
	RefreshToken      string    `json:"refreshToken,omitempty"`
	AccessExpiresAt   time.Time `json:"accessExpiresAt,omitzero"`
	RefreshExpiresAt  time.Time `json:"refreshExpiresAt,omitzero"`
	TwoFactorRequired bool      `json:"requires2FA,omitempty"`
	RiskScore         float64   `json:"riskScore,omitempty"`
	RiskFactors       []string  `json:"riskFactors,omitempty"`
}

// Enable2FAResponse holds the enrollment material. It is the only time the
// backup codes are returned in plaintext.
type Enable2FAResponse struct {
	QRCode      string   `json:"qrCode"`
	URI         string   `json:"uri"`
	BackupCodes []string `json:"backupCodes"`
}

// SuccessResponse reports a boolean outcome.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// AnomalyStatsResponse mirrors authshield.AnomalyStats.
type AnomalyStatsResponse struct {
	TotalEvents   int        `json:"totalEvents"`
	AnomalyEvents int        `json:"anomalyEvents"`
	AverageScore  float64    `json:"averageScore"`
	LastAnomaly   *time.Time `json:"lastAnomaly"`
}

// RevokeAllResponse reports how many tokens were revoked.
type RevokeAllResponse struct {
	Revoked int `json:"revoked"`
}

// ActiveToken describes one live token without exposing its sealed form.
type ActiveToken struct {
	JTI       string    `json:"jti"`
	Type      string    `json:"type"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ListActiveTokensResponse lists a user's live tokens.
type ListActiveTokensResponse struct {
	Tokens []ActiveToken `json:"tokens"`
}
