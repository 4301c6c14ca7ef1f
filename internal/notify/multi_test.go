package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/charlesng35/regforms/internal/session"
)

func TestMultiCallsEveryNotifier(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	var calls int

	fail := func(err error) session.Notifier {
		return session.NotifierFunc(func(context.Context, session.EndedEvent) error {
			calls++
			return err
		})
	}

	n := Multi(fail(first), nil, fail(nil), fail(second))
	err := n.SessionEnded(context.Background(), session.EndedEvent{UserID: "u1"})

	require.Equal(t, 3, calls)
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, second)
	require.Len(t, multierr.Errors(err), 2)

	require.NoError(t, Multi().SessionEnded(context.Background(), session.EndedEvent{}))
}
