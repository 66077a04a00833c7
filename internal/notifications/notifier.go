// Package notifications delivers moderation events to users over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"clearance/internal/middleware"
	"clearance/internal/observability"
)

// Event types published on user channels.
const (
	EventReviewRequested     = "review_requested"
	EventRequestRejected     = "request_rejected"
	EventRequestResubmitted  = "request_resubmitted"
	EventCollectionPublished = "collection_published"
	EventCollectionCancelled = "collection_cancelled"
)

// Event is one moderation notification payload. ReviewRequested events carry
// every affected request of the batch so reviewers get a single message per
// bulk action instead of one per request.
type Event struct {
	Type           string `json:"type"`
	CollectionID   uint   `json:"collection_id"`
	CollectionName string `json:"collection_name,omitempty"`
	RequestIDs     []uint `json:"request_ids,omitempty"`
	ByUserID       uint   `json:"by_user_id,omitempty"`
	Message        string `json:"message,omitempty"`
	// Rework marks a resubmission cycle so the reviewer UI can distinguish a
	// fresh submission from a corrected one.
	Rework bool `json:"rework,omitempty"`
}

// Notifier publishes moderation events into Redis channels.
type Notifier struct {
	rdb *redis.Client

	// FailSilently downgrades publish errors to warnings so a Redis outage
	// never blocks a moderation transition.
	FailSilently bool
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client, failSilently bool) *Notifier {
	return &Notifier{rdb: rdb, FailSilently: failSilently}
}

func userChannel(userID uint) string {
	return fmt.Sprintf("moderation:user:%d", userID)
}

func (n *Notifier) publish(ctx context.Context, channel string, event Event) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.rdb.Publish(ctx, channel, string(payload)).Err(); err != nil {
		observability.NotificationFailures.WithLabelValues(event.Type).Inc()
		if n.FailSilently {
			middleware.Logger.WarnContext(ctx, "notification publish failed",
				slog.String("channel", channel),
				slog.String("event", event.Type),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// NotifyUser sends an event to a single user's channel.
func (n *Notifier) NotifyUser(ctx context.Context, userID uint, event Event) error {
	return n.publish(ctx, userChannel(userID), event)
}

// NotifyUsers sends the same event to every listed user, deduplicated.
func (n *Notifier) NotifyUsers(ctx context.Context, userIDs []uint, event Event) error {
	seen := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := n.NotifyUser(ctx, id, event); err != nil {
			return err
		}
	}
	return nil
}

// StartPatternSubscriber subscribes to `moderation:user:*` and calls onMessage
// for each incoming message. Used by the delivery edge (websocket gateway,
// digest mailer) rather than by the moderation services themselves.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "moderation:user:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				onMessage(msg.Channel, msg.Payload)
			}
		}
	}()

	return nil
}
