package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/texforge/texforge/internal/logfields"
)

// DefaultSubjectPrefix is prepended to event subjects when none is configured.
const DefaultSubjectPrefix = "texforge.jobs"

// NATSPublisher publishes job lifecycle events as JSON messages.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// jobEvent is the wire payload for both lifecycle events.
type jobEvent struct {
	Event      string `json:"event"`
	JobID      string `json:"job_id"`
	Engine     string `json:"engine,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Passes     int    `json:"passes,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// NewNATSPublisher connects to the broker. Subject defaults to
// DefaultSubjectPrefix when empty.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubjectPrefix
	}
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	slog.Info("Connected event publisher", logfields.URL(url), "subject", subject)
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) JobStarted(_ context.Context, jobID, engine string) {
	p.publish(jobEvent{Event: "started", JobID: jobID, Engine: engine})
}

func (p *NATSPublisher) JobFinished(_ context.Context, jobID, outcome string, passes int, duration time.Duration) {
	p.publish(jobEvent{
		Event:      "finished",
		JobID:      jobID,
		Outcome:    outcome,
		Passes:     passes,
		DurationMS: duration.Milliseconds(),
	})
}

func (p *NATSPublisher) publish(ev jobEvent) {
	ev.Timestamp = time.Now().Unix()
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to marshal job event", logfields.JobID(ev.JobID), logfields.Error(err))
		return
	}
	if err := p.conn.Publish(p.subject+"."+ev.Event, data); err != nil {
		slog.Warn("Failed to publish job event", logfields.JobID(ev.JobID), logfields.Error(err))
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
