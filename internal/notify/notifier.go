// Package notify provides the outbound handle the session layer attaches to
// a player record while the player has a live connection. The state store
// only holds these handles; it never sends through them or closes them.
package notify

import (
	"sync"

	"github.com/muster-gg/muster/internal/models"
)

// Event is one asynchronous message destined for a player's connection.
type Event struct {
	Type       string               `json:"type"`
	GameID     int64                `json:"game_id,omitempty"`
	PlayerID   int64                `json:"player_id,omitempty"`
	NumPlayers int                  `json:"num_players,omitempty"`
	Games      []models.GameListing `json:"games,omitempty"`
	Message    string               `json:"message,omitempty"`
}

// Notifier wraps the buffered channel feeding one connection's write pump.
// Sends never block: a client too slow to drain its buffer loses events and
// resyncs, instead of exerting backpressure on the relay.
type Notifier struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// New returns a Notifier with the given buffer size (a small default is
// applied if it is not positive).
func New(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &Notifier{ch: make(chan Event, buffer)}
}

// C returns the channel the write pump drains. It is closed by Close.
func (n *Notifier) C() <-chan Event { return n.ch }

// TrySend enqueues ev without blocking and reports whether it was accepted.
// A full buffer or a closed notifier drops the event.
func (n *Notifier) TrySend(ev Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	select {
	case n.ch <- ev:
		return true
	default:
		return false
	}
}

// Close shuts the channel so the write pump exits. Safe to call more than
// once, and concurrently with TrySend.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}
