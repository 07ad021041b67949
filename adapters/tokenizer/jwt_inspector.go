package tokenizer

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/ports"
)

// JWTInspector implements the TokenInspector interface for JWT access credentials.
// Signatures are not checked; the server does that on every call.
type JWTInspector struct {
	parser *jwt.Parser
}

// NewJWTInspector creates a new JWT inspector
func NewJWTInspector() ports.TokenInspector {
	return &JWTInspector{parser: jwt.NewParser()}
}

// Inspect extracts subject, role and lifetime from an access token
func (j *JWTInspector) Inspect(tokenStr string) (core.TokenInfo, error) {
	claims := &AccessClaims{}
	if _, _, err := j.parser.ParseUnverified(tokenStr, claims); err != nil {
		return core.TokenInfo{}, fmt.Errorf("failed to parse access token: %w", err)
	}

	info := core.TokenInfo{
		Subject: claims.Subject,
		Role:    claims.Role,
	}
	if info.Subject == "" {
		info.Subject = claims.WalletAddress
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}

	return info, nil
}
