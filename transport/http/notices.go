package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/faucetadmin/adapters/events"
	"github.com/layer-3/faucetadmin/core"
)

// DefaultNoticeLimit is how many session notices the console remembers
const DefaultNoticeLimit = 20

// NoticeFeed keeps the most recent session events for display
type NoticeFeed struct {
	limit  int
	logger *slog.Logger

	mu      sync.RWMutex
	notices []core.SessionEvent
}

// NewNoticeFeed creates an empty feed
func NewNoticeFeed(limit int, logger *slog.Logger) *NoticeFeed {
	if limit <= 0 {
		limit = DefaultNoticeLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NoticeFeed{limit: limit, logger: logger.With("component", "notices")}
}

// Run consumes session events from subscriber until ctx is done
func (f *NoticeFeed) Run(ctx context.Context, subscriber message.Subscriber) error {
	messages, err := subscriber.Subscribe(ctx, events.TopicSession)
	if err != nil {
		return err
	}

	for msg := range messages {
		event, err := events.DecodeSessionEvent(msg)
		if err != nil {
			f.logger.Warn("dropping malformed session event", "message_uuid", msg.UUID, "error", err)
			msg.Ack()
			continue
		}
		f.Add(event)
		msg.Ack()
	}
	return nil
}

// Add records an event, evicting the oldest beyond the limit
func (f *NoticeFeed) Add(event core.SessionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, event)
	if len(f.notices) > f.limit {
		f.notices = f.notices[len(f.notices)-f.limit:]
	}
}

// Recent returns the remembered events, newest first
func (f *NoticeFeed) Recent() []core.SessionEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.SessionEvent, len(f.notices))
	for i, event := range f.notices {
		out[len(f.notices)-1-i] = event
	}
	return out
}
