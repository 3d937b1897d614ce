package state

import (
	"golang.org/x/sync/semaphore"

	"github.com/muster-gg/muster/internal/notify"
)

// PlayerState is the mutable record for one player id. The zero value is a
// valid unattached, connectionless player.
type PlayerState struct {
	gameID   int64 // 0 = not in any game
	notifier *notify.Notifier
}

type playerEntry struct {
	sem   *semaphore.Weighted
	state PlayerState
}

func newPlayerEntry(st PlayerState) *playerEntry {
	return &playerEntry{sem: semaphore.NewWeighted(1), state: st}
}

// PlayerLease is exclusive access to one player record. The player stays
// locked for the lease's whole lifetime, so hold it only for the duration
// of one operation, never across blocking work, and do not share it between
// goroutines. Release it exactly when done; Release is idempotent.
type PlayerLease struct {
	id       int64
	entry    *playerEntry
	released bool
}

// PlayerID returns the id this lease was acquired for.
func (l *PlayerLease) PlayerID() int64 { return l.id }

// JoinedGame reports the game the player currently occupies, if any.
func (l *PlayerLease) JoinedGame() (int64, bool) {
	if l.entry.state.gameID == 0 {
		return 0, false
	}
	return l.entry.state.gameID, true
}

// SetJoinedGame points the player at a game. It does not touch the game's
// member list; callers that need both records updated do so under both
// leases (see Store.JoinGame).
func (l *PlayerLease) SetJoinedGame(gameID int64) {
	l.entry.state.gameID = gameID
}

// ClearJoinedGame detaches the player from whatever game it pointed at.
func (l *PlayerLease) ClearJoinedGame() {
	l.entry.state.gameID = 0
}

// Notifier returns the handle for the player's live connection, or nil when
// none is attached.
func (l *PlayerLease) Notifier() *notify.Notifier {
	return l.entry.state.notifier
}

// SetNotifier installs the handle for a fresh connection and returns the
// previous one (nil if none) so the session layer can shut it down.
func (l *PlayerLease) SetNotifier(n *notify.Notifier) *notify.Notifier {
	prev := l.entry.state.notifier
	l.entry.state.notifier = n
	return prev
}

// ClearNotifier detaches the connection handle and returns it.
func (l *PlayerLease) ClearNotifier() *notify.Notifier {
	prev := l.entry.state.notifier
	l.entry.state.notifier = nil
	return prev
}

// Release returns the record to circulation. Calling it again is a no-op.
func (l *PlayerLease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.entry.sem.Release(1)
}
