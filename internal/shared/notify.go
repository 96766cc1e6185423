package shared

import "sync"

// Notification levels.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelDanger  = "danger"
)

// Notification is a transient user-visible message.
type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notifier receives notifications raised by views and forms.
type Notifier interface {
	Notify(Notification)
}

// Inbox queues notifications until they are drained.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	max   int
}

// NewInbox keeps at most max notifications, dropping the oldest. Zero means 50.
func NewInbox(max int) *Inbox {
	if max <= 0 {
		max = 50
	}
	return &Inbox{max: max}
}

func (b *Inbox) Notify(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if len(b.items) > b.max {
		b.items = b.items[len(b.items)-b.max:]
	}
}

// Drain returns and clears the queued notifications.
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

// Len returns the number of queued notifications.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
