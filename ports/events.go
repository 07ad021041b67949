package ports

import (
	"context"

	"github.com/layer-3/faucetadmin/core"
)

// EventPublisher publishes session lifecycle events so views can show notices
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event core.SessionEvent) error
}
