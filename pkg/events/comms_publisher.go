package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/datatype-introspection/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// SubjectPrefix overrides the announcement subject prefix (ANNOUNCE_SUBJECT).
	SubjectPrefix string
}

// CommsPublisher publishes announcements to the sending node's COMMS subject.
type CommsPublisher struct {
	nc     *comms.Conn
	prefix string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	prefix := commsutil.SubjectAnnounce
	if opts != nil && opts.SubjectPrefix != "" {
		prefix = opts.SubjectPrefix
	}
	return &CommsPublisher{nc: nc, prefix: prefix}
}

// PublishAnnouncement publishes event on the node's announcement subject.
func (p *CommsPublisher) PublishAnnouncement(_ context.Context, event *CatalogAnnouncement) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode announcement: %w", commsPublisherLogPrefix, err)
	}

	subject := commsutil.BuildAnnounceSubject(p.prefix, event.Node)
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published announcement for %s", commsPublisherLogPrefix, event.Node))
	return nil
}

// SubscribeAnnouncements delivers every node's announcements under prefix to fn.
// Undecodable payloads are logged and dropped.
func SubscribeAnnouncements(nc *comms.Conn, prefix string, fn func(*CatalogAnnouncement)) (*comms.Subscription, error) {
	subject := commsutil.AnnounceWildcard(prefix)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event CatalogAnnouncement
		if err := commsutil.DecodePayload(msg.Data, &event); err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping bad announcement on %s: %v", commsPublisherLogPrefix, msg.Subject, err))
			return
		}
		fn(&event)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsPublisherLogPrefix, subject, err)
	}
	return sub, nil
}
