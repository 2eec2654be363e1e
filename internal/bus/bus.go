// Package bus implements the per-frame publish/subscribe channel used for
// lifecycle notifications and user-defined messages.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petrijr/gframe/pkg/api"
)

// Bus is a synchronous topic-matched publish/subscribe channel. Delivery
// happens in subscription order, on the publisher's goroutine, against a
// snapshot of the subscription list taken under the lock: a subscription
// registered after a publish never sees that message, and handlers run
// without the lock held.
type Bus struct {
	frameID string

	mu     sync.Mutex
	subs   []*subscription
	nextID int64
	closed bool
}

type subscription struct {
	id      int64
	pattern string
	handler api.Handler
}

func (s *subscription) Pattern() string { return s.pattern }

// Ensure Bus implements the public interface.
var _ api.Bus = (*Bus)(nil)

// New creates a bus for the frame with the given id.
func New(frameID string) *Bus {
	return &Bus{frameID: frameID}
}

// Subscribe registers h for topics matching pattern. Subscribing on a
// closed bus returns a handle that will never be invoked.
func (b *Bus) Subscribe(pattern string, h api.Handler) api.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, pattern: pattern, handler: h}
	if !b.closed {
		b.subs = append(b.subs, sub)
	}
	return sub
}

// Unsubscribe removes sub. It is idempotent; unknown or foreign handles are
// ignored.
func (b *Bus) Unsubscribe(sub api.Subscription) {
	own, ok := sub.(*subscription)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == own.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers a message to every subscription whose pattern matches
// topic, in subscription order, before returning. A handler that returns an
// error or panics is isolated: the failure is reported via a handler.failed
// message and delivery continues with the remaining subscribers.
func (b *Bus) Publish(ctx context.Context, topic string, body any) {
	msg := api.Message{
		Topic:   topic,
		FrameID: b.frameID,
		At:      time.Now(),
		Body:    body,
	}

	for _, sub := range b.snapshot(topic) {
		if err := b.deliver(ctx, sub, msg); err != nil {
			// Failures while delivering the diagnostic itself are dropped
			// to keep handler.failed from recursing.
			if topic == api.TopicHandlerFailed {
				continue
			}
			b.Publish(ctx, api.TopicHandlerFailed, &api.HandlerFailure{
				Topic:   topic,
				Handler: fmt.Sprintf("sub-%d(%s)", sub.id, sub.pattern),
				Cause:   err,
			})
		}
	}
}

// snapshot returns the matching subscriptions at the time of the call.
func (b *Bus) snapshot(topic string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	out := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if api.MatchTopic(s.pattern, topic) {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, msg api.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler(ctx, msg)
}

// Clear drops every subscription. The frame calls it after publishing its
// terminal lifecycle message.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// Close clears the bus and rejects further subscriptions. Publishing on a
// closed bus is a no-op. Close is idempotent; the registry calls it when
// the frame is retired.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
	b.closed = true
}
