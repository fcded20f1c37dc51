package queue

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"hourlog/internal/attendance"
)

// LedgerEventType tags messages that carry an attendance.Event.
const LedgerEventType = "ledger_event"

// Invalidator drops a derived per-subject value.
type Invalidator interface {
	Invalidate(ctx context.Context, subjectID string) error
}

// Publisher is an attendance.Notifier that drops the subject's cached total
// and then forwards the committed event to the queue.
type Publisher struct {
	q     Queue
	cache Invalidator
}

// NewPublisher returns a Publisher. cache may be nil.
func NewPublisher(q Queue, cache Invalidator) *Publisher {
	return &Publisher{q: q, cache: cache}
}

// Notify implements attendance.Notifier.
func (p *Publisher) Notify(ctx context.Context, evt attendance.Event) error {
	if p.cache != nil && evt.SubjectID != "" {
		if err := p.cache.Invalidate(ctx, evt.SubjectID); err != nil {
			return err
		}
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, Message{Type: LedgerEventType, Body: body})
}

// Refresher recomputes the derived state of one subject.
type Refresher interface {
	Refresh(ctx context.Context, subjectID string) error
}

// Worker applies ledger events to a Refresher.
type Worker struct {
	q       Queue
	refresh Refresher
	log     logrus.FieldLogger
}

// NewWorker creates a worker over q.
func NewWorker(q Queue, r Refresher, log logrus.FieldLogger) *Worker {
	return &Worker{q: q, refresh: r, log: log}
}

// Run consumes until ctx is done. It returns the number of events applied.
func (w *Worker) Run(ctx context.Context) (int, error) {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return 0, err
	}
	applied := 0
	for msg := range messages {
		if w.Handle(ctx, msg) {
			applied++
		}
	}
	return applied, nil
}

// Handle applies one message and reports whether it was a usable event.
func (w *Worker) Handle(ctx context.Context, msg Message) bool {
	if msg.Type != LedgerEventType {
		w.log.WithField("type", msg.Type).Debug("ignoring message")
		return false
	}
	var evt attendance.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		w.log.WithError(err).Warn("undecodable ledger event")
		return false
	}
	if evt.SubjectID == "" {
		return false
	}
	entry := w.log.WithFields(logrus.Fields{"kind": evt.Kind, "subject_id": evt.SubjectID})
	if err := w.refresh.Refresh(ctx, evt.SubjectID); err != nil {
		entry.WithError(err).Warn("refresh failed")
		return false
	}
	entry.Debug("refreshed")
	return true
}
