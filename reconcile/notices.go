package reconcile

import (
	"errors"
	"sync"
	"time"

	"recreo/gateway"
)

// Notice is a dismissible, non-fatal message shown to the user.
type Notice struct {
	ID      int
	Kind    gateway.Kind
	Message string
	At      time.Time
}

// Notices is the queue of undismissed notices for a screen.
type Notices struct {
	mu    sync.Mutex
	next  int
	items []Notice
	now   func() time.Time
}

// NewNotices returns an empty queue.
func NewNotices() *Notices {
	return &Notices{now: time.Now}
}

// WithClock overrides the timestamp source.
func (n *Notices) WithClock(now func() time.Time) *Notices {
	n.now = now
	return n
}

// Push appends a notice.
func (n *Notices) Push(kind gateway.Kind, message string) Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	notice := Notice{ID: n.next, Kind: kind, Message: message, At: n.now()}
	n.items = append(n.items, notice)
	return notice
}

// Report pushes the user message of a GatewayError. Other errors are ignored.
func (n *Notices) Report(err error) (Notice, bool) {
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		return Notice{}, false
	}
	return n.Push(gwErr.Kind, gwErr.UserMessage()), true
}

// List returns the undismissed notices, oldest first.
func (n *Notices) List() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.items...)
}

// Dismiss removes a notice and reports whether it existed.
func (n *Notices) Dismiss(id int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, item := range n.items {
		if item.ID == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			return true
		}
	}
	return false
}
