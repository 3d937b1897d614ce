package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muster-gg/muster/internal/models"
)

// ActiveGames loads every running game and its recorded membership, in join
// order, for seeding the state store at boot. Games with no members are
// included with an empty player list.
func (d *DB) ActiveGames(ctx context.Context) ([]models.GameSeed, error) {
	q := `
		SELECT g.id, m.player_id
		FROM games g
		LEFT JOIN game_members m ON m.game_id = g.id
		WHERE g.status = 'running'
		ORDER BY g.id, m.id
	`
	rows, err := d.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query active games: %w", err)
	}
	defer rows.Close()

	var seeds []models.GameSeed
	index := make(map[int64]int)
	for rows.Next() {
		var gameID int64
		var playerID *int64
		if err := rows.Scan(&gameID, &playerID); err != nil {
			return nil, fmt.Errorf("scan active game row: %w", err)
		}
		i, ok := index[gameID]
		if !ok {
			i = len(seeds)
			index[gameID] = i
			seeds = append(seeds, models.GameSeed{GameID: gameID})
		}
		if playerID != nil {
			seeds[i].Players = append(seeds[i].Players, *playerID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active games: %w", err)
	}
	return seeds, nil
}

// CreateGame inserts a running game plus its initial membership in one
// transaction and returns the new id.
func (d *DB) CreateGame(ctx context.Context, name string, maxPlayers int, players []int64) (int64, error) {
	var id int64
	err := pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insGame := `
			INSERT INTO games (name, max_players, status, created_at)
			VALUES ($1, $2, 'running', NOW())
			RETURNING id
		`
		if err := tx.QueryRow(ctx, insGame, name, maxPlayers).Scan(&id); err != nil {
			return err
		}
		insMember := `
			INSERT INTO game_members (game_id, player_id)
			VALUES ($1, $2)
			ON CONFLICT (game_id, player_id) DO NOTHING
		`
		for _, pid := range players {
			if _, err := tx.Exec(ctx, insMember, id, pid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("tx create game: %w", err)
	}
	return id, nil
}

// MarkGameEnded flips a running game to ended. Already-ended ids are left
// alone so the checkpoint is idempotent.
func (d *DB) MarkGameEnded(ctx context.Context, id int64) error {
	q := `
		UPDATE games
		SET status = 'ended', ended_at = NOW()
		WHERE id = $1 AND status = 'running'
	`
	if _, err := d.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("mark game %d ended: %w", id, err)
	}
	return nil
}

// MarkGameAbandoned flips a running game to abandoned, used by the historian
// when a game produces no events for too long.
func (d *DB) MarkGameAbandoned(ctx context.Context, id int64) error {
	q := `
		UPDATE games
		SET status = 'abandoned', ended_at = NOW()
		WHERE id = $1 AND status = 'running'
	`
	if _, err := d.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("mark game %d abandoned: %w", id, err)
	}
	return nil
}

// ListOpenGames returns browsable rows for running games, newest first.
// NumPlayers is left zero for the state store to fill in.
func (d *DB) ListOpenGames(ctx context.Context) ([]models.GameListing, error) {
	q := `
		SELECT id, name, max_players, created_at
		FROM games
		WHERE status = 'running'
		ORDER BY created_at DESC
	`
	rows, err := d.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query open games: %w", err)
	}
	defer rows.Close()

	var listings []models.GameListing
	for rows.Next() {
		var l models.GameListing
		if err := rows.Scan(&l.ID, &l.Name, &l.MaxPlayers, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan open game row: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open games: %w", err)
	}
	return listings, nil
}
