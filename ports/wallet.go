package ports

import (
	"context"

	"github.com/layer-3/faucetadmin/core"
)

// Wallet is a connected wallet able to sign arbitrary messages
type Wallet interface {
	Address() string
	SignMessage(ctx context.Context, message []byte) (core.SignedMessage, error)
}
