package state

import (
	"context"
	"errors"
)

// ErrAlreadyInGame is returned by JoinGame when the player occupies a
// different game than the one requested.
var ErrAlreadyInGame = errors.New("player already in another game")

// Cross-record updates take the player lease first, then the game lease.
// Every path that ever holds both must follow that order; it is the only
// thing keeping two combined updates from deadlocking against each other.

// JoinGame attaches the player to the game on both records: the game's
// member list and the player's back-reference change together under both
// leases. ok=false with a nil error means the game is unknown or closed and
// nothing changed. Joining the game the player already occupies is
// idempotent; occupying a different one fails with ErrAlreadyInGame. On
// success the returned slice is the membership after the join, for the
// caller to fan notifications out to.
func (s *Store) JoinGame(ctx context.Context, playerID, gameID int64) ([]int64, bool, error) {
	p, err := s.AcquirePlayer(ctx, playerID)
	if err != nil {
		return nil, false, err
	}
	defer p.Release()

	if cur, in := p.JoinedGame(); in && cur != gameID {
		return nil, false, ErrAlreadyInGame
	}

	g, ok, err := s.AcquireGame(ctx, gameID)
	if err != nil || !ok {
		return nil, false, err
	}
	defer g.Release()

	g.AddPlayer(playerID)
	p.SetJoinedGame(gameID)
	return g.Players(), true, nil
}

// LeaveGame detaches the player from whichever game it occupies, updating
// both records under both leases. ok=false means the player was not in a
// game, which callers treat as already left. If the game's record is
// already gone (closed and purged) the player's dangling back-reference is
// cleared and ok=false is returned. On success the returned id and slice
// describe the game after the leave.
func (s *Store) LeaveGame(ctx context.Context, playerID int64) (int64, []int64, bool, error) {
	p, err := s.AcquirePlayer(ctx, playerID)
	if err != nil {
		return 0, nil, false, err
	}
	defer p.Release()

	gameID, in := p.JoinedGame()
	if !in {
		return 0, nil, false, nil
	}

	g, ok, err := s.AcquireGame(ctx, gameID)
	if err != nil {
		return 0, nil, false, err
	}
	if !ok {
		p.ClearJoinedGame()
		return 0, nil, false, nil
	}
	defer g.Release()

	g.RemovePlayer(playerID)
	p.ClearJoinedGame()
	return gameID, g.Players(), true, nil
}
