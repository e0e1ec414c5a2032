package service

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultNoticeTTL is how long a notice stays visible if nothing supersedes it.
const DefaultNoticeTTL = 3 * time.Second

// Notice is a transient user notification. An empty Message means "cleared".
type Notice struct {
	Message string    `json:"message"`
	Success bool      `json:"success"`
	At      time.Time `json:"at"`
}

// Notifier holds the current notice and fans posts and expiries out to subscribers.
// The latest post wins; a notice expires after ttl only if it is still current.
type Notifier struct {
	mu      sync.Mutex
	ttl     time.Duration
	current Notice
	seq     uint64
	timer   *time.Timer
	subs    map[uint64]chan Notice
	nextSub uint64
}

// NewNotifier creates a notifier. ttl <= 0 selects DefaultNoticeTTL.
func NewNotifier(ttl time.Duration) *Notifier {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &Notifier{
		ttl:  ttl,
		subs: make(map[uint64]chan Notice),
	}
}

// Post replaces the current notice and restarts the expiry timer.
func (n *Notifier) Post(message string, success bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	seq := n.seq
	n.current = Notice{Message: message, Success: success, At: time.Now()}
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.ttl, func() { n.expire(seq) })

	if success {
		slog.Info("Notice", slog.String("message", message))
	} else {
		slog.Warn("Notice", slog.String("message", message))
	}
	n.broadcast(n.current)
}

// Current returns the visible notice, if any.
func (n *Notifier) Current() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current, n.current.Message != ""
}

// Subscribe returns a channel receiving every post and clear. Slow subscribers drop notices.
func (n *Notifier) Subscribe(buffer int) (<-chan Notice, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextSub
	n.nextSub++
	ch := make(chan Notice, buffer)
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
}

// Stop cancels a pending expiry.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
	}
}

func (n *Notifier) expire(seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if seq != n.seq {
		return // superseded
	}
	n.current = Notice{At: time.Now()}
	n.broadcast(n.current)
}

// broadcast must be called with mu held.
func (n *Notifier) broadcast(notice Notice) {
	for _, ch := range n.subs {
		select {
		case ch <- notice:
		default:
		}
	}
}
