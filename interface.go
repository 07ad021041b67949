package faucetadmin

import (
	"context"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/ports"
)

// Client represents the public interface of the faucet admin session client
type Client interface {
	// Login signs a fresh challenge with wallet and starts background renewal
	Login(ctx context.Context, wallet ports.Wallet) (*core.Session, error)

	// Resume picks up a session left in the credential store and cookie jar
	Resume(ctx context.Context) (*core.User, error)

	// Logout ends the session locally and on the server
	Logout(ctx context.Context) error

	// Session returns the current session or core.ErrNoSession
	Session(ctx context.Context) (*core.Session, error)

	Me(ctx context.Context) (*core.User, error)
	FaucetConfig(ctx context.Context) (*core.FaucetConfig, error)
	UpdateFaucetConfig(ctx context.Context, update core.FaucetConfigUpdate) (*core.FaucetConfig, error)
	Analytics(ctx context.Context) (*core.Analytics, error)
	Timeseries(ctx context.Context, granularity, window string) (*core.Timeseries, error)
	Dashboard(ctx context.Context, granularity, window string) (*core.Dashboard, error)

	// RequestTokens asks the public faucet for tokens
	RequestTokens(ctx context.Context, address string) (*core.FaucetResult, error)

	// Close stops background work
	Close() error
}
