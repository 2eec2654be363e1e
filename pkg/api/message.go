package api

import (
	"context"
	"strings"
	"time"
)

// Lifecycle topics published by the framework. These form a closed set;
// user-defined messages live in an open string namespace outside the
// reserved "frame.", "routine." and "handler." prefixes.
const (
	TopicFrameStarted   = "frame.started"
	TopicFrameCompleted = "frame.completed"
	TopicFrameFailed    = "frame.failed"
	TopicFrameCancelled = "frame.cancelled"

	TopicRoutineStarted   = "routine.started"
	TopicRoutineCompleted = "routine.completed"
	TopicRoutineFailed    = "routine.failed"
	TopicRoutineCancelled = "routine.cancelled"

	// TopicHandlerFailed carries a *HandlerFailure diagnostic when a
	// subscriber raises during delivery.
	TopicHandlerFailed = "handler.failed"
)

// ReservedTopic reports whether topic belongs to a framework-reserved
// namespace and therefore cannot be published by user code.
func ReservedTopic(topic string) bool {
	return strings.HasPrefix(topic, "frame.") ||
		strings.HasPrefix(topic, "routine.") ||
		strings.HasPrefix(topic, "handler.")
}

// MatchTopic reports whether a subscription pattern matches a topic.
// A pattern ending in "*" matches any topic with the preceding prefix
// ("routine.*", or "*" for everything); any other pattern matches exactly.
func MatchTopic(pattern, topic string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}

// Message is a tagged payload delivered through a frame's bus. Messages are
// transient: they are not retained beyond delivery to current subscribers.
type Message struct {
	// Topic is a lifecycle topic or a user-defined one.
	Topic string

	// FrameID identifies the source frame.
	FrameID string

	// At is the publish time.
	At time.Time

	// Body is the immutable payload. Lifecycle messages carry:
	//   frame.started                    FrameStarted
	//   frame.completed/failed/cancelled *Result
	//   routine.*                        RoutineResult
	//   handler.failed                   *HandlerFailure
	Body any
}

// FrameStarted is the body of a frame.started message.
type FrameStarted struct {
	Mode     Mode
	Policy   FailurePolicy
	Routines int
}

// Handler consumes messages delivered by a Bus. A non-nil error (or a
// panic) is isolated by the bus and reported via a handler.failed message;
// it never aborts delivery to remaining subscribers.
type Handler func(ctx context.Context, msg Message) error

// Subscription is an opaque handle identifying one (pattern, handler) pair
// on a Bus.
type Subscription interface {
	// Pattern returns the pattern the subscription was registered with.
	Pattern() string
}

// Bus is a frame's typed publish/subscribe channel.
//
// Publish delivers synchronously, in subscription order, before returning.
// All subscriptions are tied to the owning frame and released when it
// reaches a terminal state.
type Bus interface {
	// Subscribe registers a handler for topics matching pattern.
	Subscribe(pattern string, h Handler) Subscription

	// Unsubscribe removes a subscription. It is idempotent.
	Unsubscribe(sub Subscription)

	// Publish delivers a message to every matching subscription registered
	// at the time of the call.
	Publish(ctx context.Context, topic string, body any)
}
