// Package session keeps a signed-in session alive and decides whether a
// protected view may be entered.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/internal/clock"
	"github.com/layer-3/faucetadmin/ports"
)

// DefaultRenewInterval renews a 15 minute credential a minute before it lapses
const DefaultRenewInterval = 14 * time.Minute

// Renewable is the part of the refresh coordinator the renewer drives
type Renewable interface {
	Renew(ctx context.Context) (*core.Session, error)
}

// Renewer refreshes the credential on a fixed interval so that, while it runs,
// requests rarely meet an expired credential.
type Renewer struct {
	coordinator Renewable
	clock       clock.Clock
	interval    time.Duration
	eventPub    ports.EventPublisher
	logger      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRenewer creates a stopped renewer
func NewRenewer(coordinator Renewable, c clock.Clock, interval time.Duration, eventPub ports.EventPublisher, logger *slog.Logger) *Renewer {
	if interval <= 0 {
		interval = DefaultRenewInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renewer{
		coordinator: coordinator,
		clock:       c,
		interval:    interval,
		eventPub:    eventPub,
		logger:      logger.With("component", "renewer"),
	}
}

// Start launches the renewal loop. Calling Start while running does nothing.
func (r *Renewer) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		select {
		case <-r.done:
			r.cancel()
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	ticker := r.clock.NewTicker(r.interval)
	go r.loop(ctx, ticker, done)
	r.logger.Debug("renewal started", "interval", r.interval)
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly.
func (r *Renewer) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active
func (r *Renewer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Renewer) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.renew(ctx) {
				return
			}
		}
	}
}

// renew runs one tick and reports whether the loop should continue
func (r *Renewer) renew(ctx context.Context) bool {
	session, err := r.coordinator.Renew(ctx)
	switch {
	case err == nil:
		if session != nil {
			r.logger.Debug("credential renewed", "expires_at", session.ExpiresAt)
			r.publish(ctx, core.EventRenewed, session.Address, "")
		}
		return true
	case ctx.Err() != nil:
		return false
	case errors.Is(err, core.ErrSessionExpired), errors.Is(err, core.ErrUnauthorized):
		r.logger.Info("session over, renewal stopped", "reason", err)
		return false
	default:
		r.logger.Warn("renewal failed", "error", err)
		r.publish(ctx, core.EventRenewalFailed, "", err.Error())
		return true
	}
}

func (r *Renewer) publish(ctx context.Context, typ core.SessionEventType, address, reason string) {
	if r.eventPub == nil {
		return
	}
	event := core.SessionEvent{Type: typ, Address: address, Reason: reason, At: r.clock.Now()}
	if err := r.eventPub.PublishSessionEvent(ctx, event); err != nil {
		r.logger.Warn("failed to publish session event", "type", typ, "error", err)
	}
}
