package models

import "time"

// GameSeed is one still-active session handed to the state store at boot,
// as recorded by the persistence layer before the last shutdown.
type GameSeed struct {
	GameID  int64
	Players []int64
}

// GameListing is a browsable summary of an open game. NumPlayers is filled
// in from the state store's count cache rather than the database, so it
// reflects live membership.
type GameListing struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	NumPlayers int       `json:"num_players"`
	MaxPlayers int       `json:"max_players"`
	CreatedAt  time.Time `json:"created_at"`
}
