package core

import (
	"fmt"
	"time"
)

// Challenge represents a single login attempt's message to be signed
type Challenge struct {
	Address string // Wallet address of the principal
	Nonce   int64  // Unix milliseconds at composition time
	Message string // "<scope>Login_<nonce>_<address>"
}

// NewChallenge composes the login message the server recomputes on verification
func NewChallenge(scope, address string, at time.Time) Challenge {
	nonce := at.UnixMilli()
	return Challenge{
		Address: address,
		Nonce:   nonce,
		Message: fmt.Sprintf("%sLogin_%d_%s", scope, nonce, address),
	}
}

// SignedMessage is what the wallet returns for a signature request
type SignedMessage struct {
	Signature string // Hex-encoded signature
	Bytes     string // Base64 of the exact bytes that were signed
}

// Session represents the signed-in principal and its current access credential.
// The refresh artifact is deliberately absent: it only exists as an HTTP-only
// cookie managed by the remote service.
type Session struct {
	Address     string    `json:"address"`
	Role        string    `json:"role"`
	AccessToken string    `json:"access_token"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the access credential is past its approximate expiry
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// User is the principal shape returned by login, refresh and /admin/me
type User struct {
	WalletAddress string `json:"walletAddress"`
	Role          string `json:"role"`
	LastLoginAt   string `json:"lastLoginAt,omitempty"`
}

// TokenInfo is what can be read from an access credential without verifying it
type TokenInfo struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
