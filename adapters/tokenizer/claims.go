package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AudienceAccess is the audience of admin access credentials
const AudienceAccess = "faucet:admin:access"

// AccessClaims combines standard claims with the admin role
type AccessClaims struct {
	jwt.RegisteredClaims
	WalletAddress string `json:"walletAddress,omitempty"`
	Role          string `json:"role,omitempty"`
}
