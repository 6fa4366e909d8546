// Package events publishes job lifecycle events for external consumers.
// Publishing is strictly fire-and-forget: a broker outage never affects
// compilation outcomes.
package events

import (
	"context"
	"time"
)

// Publisher abstracts lifecycle event emission so the orchestrator does not
// depend on a broker implementation.
type Publisher interface {
	JobStarted(ctx context.Context, jobID string, engine string)
	JobFinished(ctx context.Context, jobID string, outcome string, passes int, duration time.Duration)
	Close()
}

// NoopPublisher is a Publisher that does nothing (default when events are not configured).
type NoopPublisher struct{}

func (NoopPublisher) JobStarted(context.Context, string, string) {}

func (NoopPublisher) JobFinished(context.Context, string, string, int, time.Duration) {}

func (NoopPublisher) Close() {}
