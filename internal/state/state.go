// Package state holds the authoritative in-memory picture of the relay:
// which players are known, which game each of them occupies, and the live
// membership of every open game.
//
// Access follows a two-tier locking protocol. A single coarse RWMutex guards
// the index maps that say which entities exist, and every entity is wrapped
// in its own single-slot semaphore (its lease). Callers briefly touch the
// index to find or create an entity, drop the index lock, and only then
// await the entity's lease. The index lock is never held across anything
// that can block, so it stays cheap no matter how contended individual
// entities are: operations on distinct entities run in parallel, operations
// on the same entity serialize on its lease.
//
// Code touching Store.mu must not block while holding it: no semaphore
// acquisition, no channel sends, no I/O, no logging. That rule is also what
// makes it safe for AcquireGame's purge path to take mu while still holding
// a game lease.
package state

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/muster-gg/muster/internal/models"
)

// Store is the coarse index mapping player and game ids to their
// lease-wrapped records. Construct one per process with New and hand the
// pointer to every collaborator; nothing in this package is global.
type Store struct {
	mu      sync.RWMutex
	players map[int64]*playerEntry
	games   map[int64]*gameEntry
}

// Stats is a point-in-time census of the index.
type Stats struct {
	// Players counts tracked player records, attached to a game or not.
	Players int
	// Games counts indexed games, including closed ones not yet purged.
	Games int
}

// New builds a Store pre-populated from seed, the list of sessions still
// running according to the persistence layer. Every seeded member gets a
// player record already pointing at its game, so the cross-record picture
// is consistent from the first request onward. The maps are complete before
// the Store is shared, so seeding itself takes no locks.
func New(seed []models.GameSeed) *Store {
	s := &Store{
		players: make(map[int64]*playerEntry),
		games:   make(map[int64]*gameEntry),
	}
	for _, g := range seed {
		for _, pid := range g.Players {
			s.players[pid] = newPlayerEntry(PlayerState{gameID: g.GameID})
		}
		s.games[g.GameID] = newGameEntry(g.Players)
	}
	return s
}

// RegisterGame puts a fresh open game with the given initial members into
// the index. Registration is unconditional: a colliding id replaces the
// previous record, and any lease still held on the replaced record becomes
// an orphan whose mutations are no longer reachable through the index.
func (s *Store) RegisterGame(id int64, players []int64) {
	e := newGameEntry(players)
	s.mu.Lock()
	_, replaced := s.games[id]
	s.games[id] = e
	s.mu.Unlock()
	if replaced {
		log.Warnf("state: overrode existing game record: id=%d", id)
	}
}

// AcquirePlayer returns an exclusive lease on the player's record, creating
// a default unattached record if the id is unknown. It blocks until the
// lease is free or ctx is done; the only error it returns is ctx's. A
// caller that gives up waiting leaves the record fully usable by others.
func (s *Store) AcquirePlayer(ctx context.Context, id int64) (*PlayerLease, error) {
	s.mu.Lock()
	e, ok := s.players[id]
	if !ok {
		e = newPlayerEntry(PlayerState{})
		s.players[id] = e
	}
	s.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &PlayerLease{id: id, entry: e}, nil
}

// AcquireGame returns an exclusive lease on an open game, or ok=false when
// the id is unknown or the game has been closed. Closed records are purged
// here, by the first acquire that discovers the flag, so "closed but still
// indexed" is a normal transient state rather than a leak.
func (s *Store) AcquireGame(ctx context.Context, id int64) (*GameLease, bool, error) {
	s.mu.RLock()
	e, ok := s.games[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	if e.state.closed {
		// Purge while still holding the lease so no later acquirer sees the
		// entry; the pointer check keeps a game re-registered under the same
		// id from being swept away with the old record.
		s.mu.Lock()
		if cur, ok := s.games[id]; ok && cur == e {
			delete(s.games, id)
		}
		s.mu.Unlock()
		e.sem.Release(1)
		return nil, false, nil
	}
	return &GameLease{id: id, entry: e}, true, nil
}

// FillNumPlayers stamps each listing's NumPlayers from the count cache.
// No entity leases are taken, so building a listing never contends with
// in-flight game mutations; a count read while a mutation holds its lease
// may trail by that one mutation. Unknown ids are left untouched.
func (s *Store) FillNumPlayers(games []models.GameListing) {
	for i := range games {
		s.mu.RLock()
		e, ok := s.games[games[i].ID]
		s.mu.RUnlock()
		if ok {
			games[i].NumPlayers = int(e.numPlayers.Load())
		}
	}
}

// NumPlayers reports the cached member count for one game id.
func (s *Store) NumPlayers(id int64) (int, bool) {
	s.mu.RLock()
	e, ok := s.games[id]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return int(e.numPlayers.Load()), true
}

// Stats returns index sizes, cheap enough to call from a metrics scrape.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Players: len(s.players), Games: len(s.games)}
}
