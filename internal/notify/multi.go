package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/charlesng35/regforms/internal/session"
)

type multiNotifier []session.Notifier

// Multi fans an event out to every notifier, reporting all failures together.
func Multi(notifiers ...session.Notifier) session.Notifier {
	out := make(multiNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multiNotifier) SessionEnded(ctx context.Context, event session.EndedEvent) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.SessionEnded(ctx, event))
	}
	return err
}
