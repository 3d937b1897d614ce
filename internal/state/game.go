package state

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// GameState is the mutable record for one open game: its member list in
// join order, and the closed flag that marks it for lazy removal.
type GameState struct {
	players []int64
	closed  bool
}

type gameEntry struct {
	sem   *semaphore.Weighted
	state GameState

	// numPlayers mirrors len(state.players). It is written only while the
	// entry's lease is held and read lock-free, which is what lets listing
	// snapshots skip entity leases entirely.
	numPlayers atomic.Int64
}

func newGameEntry(players []int64) *gameEntry {
	e := &gameEntry{
		sem:   semaphore.NewWeighted(1),
		state: GameState{players: append([]int64(nil), players...)},
	}
	e.numPlayers.Store(int64(len(players)))
	return e
}

// GameLease is exclusive access to one game record; the holding rules are
// the same as for PlayerLease.
type GameLease struct {
	id       int64
	entry    *gameEntry
	released bool
}

// GameID returns the id this lease was acquired for.
func (l *GameLease) GameID() int64 { return l.id }

// Players returns a copy of the membership in join order.
func (l *GameLease) Players() []int64 {
	return append([]int64(nil), l.entry.state.players...)
}

// HasPlayer reports whether the player is a member.
func (l *GameLease) HasPlayer(playerID int64) bool {
	for _, p := range l.entry.state.players {
		if p == playerID {
			return true
		}
	}
	return false
}

// AddPlayer appends the player unless already present. Re-adding a member
// changes nothing, including the cached count.
func (l *GameLease) AddPlayer(playerID int64) {
	if l.HasPlayer(playerID) {
		return
	}
	l.entry.state.players = append(l.entry.state.players, playerID)
	l.entry.numPlayers.Store(int64(len(l.entry.state.players)))
}

// RemovePlayer deletes the player if present; removing an absent id is a
// no-op. Either way the cached count equals the member list length when
// this returns.
func (l *GameLease) RemovePlayer(playerID int64) {
	players := l.entry.state.players
	for i, p := range players {
		if p == playerID {
			l.entry.state.players = append(players[:i], players[i+1:]...)
			break
		}
	}
	l.entry.numPlayers.Store(int64(len(l.entry.state.players)))
}

// Close marks the game ended. The index entry survives until the next
// AcquireGame on this id finds the flag and purges it; leases already taken
// stay valid until released.
func (l *GameLease) Close() {
	l.entry.state.closed = true
}

// Release returns the record to circulation. Calling it again is a no-op.
func (l *GameLease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.entry.sem.Release(1)
}
