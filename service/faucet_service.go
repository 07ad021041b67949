package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/gateway"
)

// FaucetService requests test tokens. The endpoint is public; a credential is
// attached only if one happens to be stored.
type FaucetService struct {
	gw *gateway.Gateway
}

// NewFaucetService creates a new faucet service
func NewFaucetService(gw *gateway.Gateway) *FaucetService {
	return &FaucetService{gw: gw}
}

// RequestTokens asks the faucet to send tokens to address, which is sent as
// given. A rate-limited request returns *core.RateLimitedError carrying the
// cooldown.
func (s *FaucetService) RequestTokens(ctx context.Context, address string) (*core.FaucetResult, error) {
	address = strings.TrimSpace(address)
	if !core.IsWalletAddress(address) {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidAddress, address)
	}

	resp, err := s.gw.Send(ctx, &gateway.Call{
		Method: http.MethodPost,
		Path:   "/faucet",
		Body:   map[string]string{"address": address},
	})
	if err != nil {
		var limited *core.RateLimitedError
		if errors.As(err, &limited) {
			return nil, limited
		}
		return nil, fmt.Errorf("faucet request failed: %w", err)
	}

	var result core.FaucetResult
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
