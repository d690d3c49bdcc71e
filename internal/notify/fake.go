package notify

import (
	"context"
	"sync"
	"time"
)

// Sent records one delivered notification.
type Sent struct {
	Title string
	Text  string
}

// FakeNotifier is a test double recording every send. It is safe for use
// from the dispatcher goroutine.
type FakeNotifier struct {
	mu    sync.Mutex
	sends []Sent

	// SendError, if set, will be returned by Send()
	SendError error
}

// NewFakeNotifier creates an empty FakeNotifier.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

// Send records the notification.
func (f *FakeNotifier) Send(ctx context.Context, title, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.sends = append(f.sends, Sent{Title: title, Text: text})
	return nil
}

// Sends returns a copy of every recorded notification.
func (f *FakeNotifier) Sends() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sends))
	copy(out, f.sends)
	return out
}

// WaitForSends polls until at least n notifications were recorded or the
// timeout expires, reporting whether the count was reached.
func (f *FakeNotifier) WaitForSends(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		count := len(f.sends)
		f.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
