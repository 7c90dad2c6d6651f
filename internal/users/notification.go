package users

import (
	"sync"
	"time"
)

// DefaultNotificationTTL is how long a notification stays visible.
const DefaultNotificationTTL = 3 * time.Second

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock is the time source for notification expiry and registry eviction.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Notifier holds at most one notification and the timer that will dismiss it.
//
// Setting a notification stops the pending timer of the previous one, and every timer
// carries the generation it was scheduled for, so a timer that already fired while Set
// was running cannot clear the newer notification.
type Notifier struct {
	clock Clock
	ttl   time.Duration

	mu      sync.Mutex
	current *Notification
	timer   Timer
	gen     uint64
}

// NewNotifier builds a Notifier. A nil clock means the wall clock; a non-positive ttl
// means DefaultNotificationTTL.
func NewNotifier(clock Clock, ttl time.Duration) *Notifier {
	if clock == nil {
		clock = SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return &Notifier{clock: clock, ttl: ttl}
}

// Set replaces the current notification and schedules its dismissal.
func (n *Notifier) Set(kind NotificationKind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.timer != nil {
		n.timer.Stop()
	}
	n.gen++
	gen := n.gen
	n.current = &Notification{Message: message, Kind: kind, ExpiresAt: n.clock.Now().Add(n.ttl)}
	n.timer = n.clock.AfterFunc(n.ttl, func() { n.expire(gen) })
}

// Current returns a copy of the visible notification, or nil.
func (n *Notifier) Current() *Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.current == nil {
		return nil
	}
	if !n.clock.Now().Before(n.current.ExpiresAt) {
		// The timer goroutine may not have run yet.
		return nil
	}
	cp := *n.current
	return &cp
}

// Close stops the pending timer and drops the notification.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
	n.current = nil
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if gen != n.gen {
		return
	}
	n.current = nil
	n.timer = nil
}
