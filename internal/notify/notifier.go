package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pockpet/social/pkg/logger"
)

// Event kinds surfaced to the UI layer.
const (
	KindFriendRequest    = "friend_request_received"
	KindFriendAdded      = "friend_added"
	KindFriendRemoved    = "friend_removed"
	KindFriendOnline     = "friend_online"
	KindFriendOffline    = "friend_offline"
	KindMessage          = "message_received"
	KindMessageDelivered = "message_delivered"
	KindMessageFailed    = "message_failed"
	KindGameInvite       = "game_invite_received"
	KindGameStarted      = "game_started"
	KindGameMove         = "game_move_received"
	KindGameOver         = "game_over"
	KindGameDeclined     = "game_invite_declined"
	KindGameCancelled    = "game_cancelled"
)

// Event is a notification for the device UI.
type Event struct {
	Kind      string
	Peer      string
	Data      map[string]interface{}
	Timestamp time.Time
}

// Notifier fans events out to a single consumer over a bounded channel.
// Publish never blocks; when the consumer falls behind, events are
// dropped and counted.
type Notifier struct {
	events  chan Event
	dropped atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
}

func NewNotifier(buffer int) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	return &Notifier{events: make(chan Event, buffer)}
}

// Publish queues an event without blocking the caller.
func (n *Notifier) Publish(kind, peer string, data map[string]interface{}) {
	if n.closed.Load() {
		n.dropped.Add(1)
		return
	}

	event := Event{
		Kind:      kind,
		Peer:      peer,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	select {
	case n.events <- event:
	default:
		n.dropped.Add(1)
		logger.Warn("Event dropped, consumer is behind", "kind", kind, "dropped", n.dropped.Load())
	}
}

// Events returns the channel the UI consumes.
func (n *Notifier) Events() <-chan Event {
	return n.events
}

// Dropped reports how many events were discarded.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Close ends the stream. Publish after Close is a no-op drop.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
		close(n.events)
	})
}
