// Package notify delivers gate notifications to external services and
// decouples that delivery from the sampling loop.
package notify

import "context"

// Notifier sends one notification. Implementations must be safe for use
// from the dispatcher goroutine.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi fans a notification out to several notifiers. Nil members are
// skipped; the first error is returned after all members were attempted.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, title, text string) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, title, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
