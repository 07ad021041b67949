package ports

import (
	"context"

	"github.com/layer-3/faucetadmin/core"
)

// CredentialStore holds the current session between calls and restarts.
// Get returns core.ErrNoCredential when nothing is stored.
type CredentialStore interface {
	Get(ctx context.Context) (*core.Session, error)
	Set(ctx context.Context, session *core.Session) error
	Clear(ctx context.Context) error
}
