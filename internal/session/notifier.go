package session

import "context"

// Notifier receives an event for every session the system ends on its own initiative.
// Delivery is best effort: admission logs a returned error and carries on.
type Notifier interface {
	SessionEnded(ctx context.Context, event EndedEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event EndedEvent) error

func (f NotifierFunc) SessionEnded(ctx context.Context, event EndedEvent) error {
	return f(ctx, event)
}

type nopNotifier struct{}

func (nopNotifier) SessionEnded(context.Context, EndedEvent) error { return nil }
