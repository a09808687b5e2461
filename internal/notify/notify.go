// Package notify delivers run summaries and alerts to Slack and email.
package notify

import (
	"context"
	"errors"

	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/sirupsen/logrus"
)

// Severity ranks a message for routing and subject prefixes.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityHigh Severity = "high"
)

// Message is one notification.
type Message struct {
	Subject  string
	Body     string
	Severity Severity
}

// Notifier sends a message to one channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FireAndForget logs delivery failures instead of returning them,
// so a broken channel never fails a run.
type FireAndForget struct {
	next Notifier
	log  logrus.FieldLogger
}

// NewFireAndForget wraps next. A nil next behaves like Nop.
func NewFireAndForget(next Notifier, log logrus.FieldLogger) *FireAndForget {
	if next == nil {
		next = Nop{}
	}
	if log == nil {
		log = observability.Discard()
	}
	return &FireAndForget{next: next, log: log}
}

func (f *FireAndForget) Notify(ctx context.Context, msg Message) error {
	if err := f.next.Notify(ctx, msg); err != nil {
		f.log.WithError(err).WithField("subject", msg.Subject).Warn("notification failed")
	}
	return nil
}
