package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/gateway"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultGranularity and DefaultRange select the dashboard chart window
	DefaultGranularity = "hourly"
	DefaultRange       = "24h"
)

// AdminService calls the protected admin endpoints through the gateway
type AdminService struct {
	gw *gateway.Gateway
}

// NewAdminService creates a new admin service
func NewAdminService(gw *gateway.Gateway) *AdminService {
	return &AdminService{gw: gw}
}

// Me resolves the signed-in principal
func (s *AdminService) Me(ctx context.Context) (*core.User, error) {
	var user core.User
	if err := s.get(ctx, "/admin/me", nil, "user", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FaucetConfig returns the current faucet configuration
func (s *AdminService) FaucetConfig(ctx context.Context) (*core.FaucetConfig, error) {
	var cfg core.FaucetConfig
	if err := s.get(ctx, "/admin/config", nil, "config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateFaucetConfig applies a partial update and returns the resulting config
func (s *AdminService) UpdateFaucetConfig(ctx context.Context, update core.FaucetConfigUpdate) (*core.FaucetConfig, error) {
	resp, err := s.gw.Send(ctx, &gateway.Call{
		Method: http.MethodPost,
		Path:   "/admin/config/update",
		Body:   update,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update faucet config: %w", err)
	}

	var cfg core.FaucetConfig
	if err := decodeEnvelope(resp, "config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Analytics returns the request summary
func (s *AdminService) Analytics(ctx context.Context) (*core.Analytics, error) {
	var analytics core.Analytics
	if err := s.get(ctx, "/admin/analytics", nil, "", &analytics); err != nil {
		return nil, err
	}
	return &analytics, nil
}

// Timeseries returns chart buckets for the given granularity and range
func (s *AdminService) Timeseries(ctx context.Context, granularity, window string) (*core.Timeseries, error) {
	if granularity == "" {
		granularity = DefaultGranularity
	}
	if window == "" {
		window = DefaultRange
	}

	query := url.Values{}
	query.Set("granularity", granularity)
	query.Set("range", window)

	var series core.Timeseries
	if err := s.get(ctx, "/admin/analytics/timeseries", query, "", &series); err != nil {
		return nil, err
	}
	return &series, nil
}

// Dashboard fetches the summary and the timeseries concurrently. When both hit
// an expired credential they share one refresh.
func (s *AdminService) Dashboard(ctx context.Context, granularity, window string) (*core.Dashboard, error) {
	var (
		summary *core.Analytics
		series  *core.Timeseries
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.Analytics(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		series, err = s.Timeseries(ctx, granularity, window)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &core.Dashboard{Summary: *summary, Timeseries: *series}, nil
}

func (s *AdminService) get(ctx context.Context, path string, query url.Values, envelope string, v any) error {
	resp, err := s.gw.Send(ctx, &gateway.Call{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	return decodeEnvelope(resp, envelope, v)
}

// decodeEnvelope accepts both {"<key>": {...}} and a bare object
func decodeEnvelope(resp *gateway.Response, key string, v any) error {
	if key != "" {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(resp.Body, &wrapped); err == nil {
			if inner, ok := wrapped[key]; ok {
				if err := json.Unmarshal(inner, v); err != nil {
					return fmt.Errorf("failed to decode %s: %w", key, err)
				}
				return nil
			}
		}
	}
	return resp.Decode(v)
}
