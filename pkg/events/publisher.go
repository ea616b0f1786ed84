package events

import "context"

// Publisher publishes catalog announcements.
type Publisher interface {
	PublishAnnouncement(ctx context.Context, event *CatalogAnnouncement) error
}

// NoOpPublisher is a Publisher that does nothing (announcements disabled).
type NoOpPublisher struct{}

// PublishAnnouncement is a no-op.
func (p *NoOpPublisher) PublishAnnouncement(_ context.Context, _ *CatalogAnnouncement) error {
	return nil
}

// CallbackPublisher is a Publisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *CatalogAnnouncement) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *CatalogAnnouncement) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishAnnouncement calls the callback.
func (p *CallbackPublisher) PublishAnnouncement(ctx context.Context, event *CatalogAnnouncement) error {
	return p.callback(ctx, event)
}
