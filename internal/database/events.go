package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muster-gg/muster/internal/models"
)

// InsertEvents archives a batch of queue events and applies their membership
// side effects to game_members, all in one transaction. The event stream is
// the durable membership ledger: replaying joins and leaves here is what
// keeps ActiveGames seeding honest across restarts.
func (d *DB) InsertEvents(ctx context.Context, events []models.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insQ := `
			INSERT INTO game_events (game_id, player_id, event_type, players, ts)
			VALUES ($1, NULLIF($2, 0), $3, $4, to_timestamp($5::double precision / 1000))
		`
		for _, ev := range events {
			if _, err := tx.Exec(ctx, insQ, ev.GameID, ev.PlayerID, ev.Type, ev.Players, ev.Timestamp); err != nil {
				return err
			}
			if err := applyMembership(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert events: %w", err)
	}
	return nil
}

// applyMembership mirrors one event onto game_members. Registration is a
// no-op here because CreateGame writes the initial membership synchronously.
func applyMembership(ctx context.Context, tx pgx.Tx, ev models.EventRecord) error {
	switch ev.Type {
	case models.EventPlayerJoined:
		q := `
			INSERT INTO game_members (game_id, player_id)
			VALUES ($1, $2)
			ON CONFLICT (game_id, player_id) DO NOTHING
		`
		_, err := tx.Exec(ctx, q, ev.GameID, ev.PlayerID)
		return err
	case models.EventPlayerLeft:
		q := `DELETE FROM game_members WHERE game_id = $1 AND player_id = $2`
		_, err := tx.Exec(ctx, q, ev.GameID, ev.PlayerID)
		return err
	case models.EventGameClosed:
		q := `DELETE FROM game_members WHERE game_id = $1`
		_, err := tx.Exec(ctx, q, ev.GameID)
		return err
	default:
		return nil
	}
}
