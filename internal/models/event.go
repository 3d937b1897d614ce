package models

// Event types pushed onto the historian queue.
const (
	EventGameRegistered = "game_registered"
	EventPlayerJoined   = "player_joined"
	EventPlayerLeft     = "player_left"
	EventGameClosed     = "game_closed"
)

// EventRecord is the JSON payload queued in Redis for the historian to
// archive. Timestamp is unix milliseconds.
type EventRecord struct {
	Type      string  `json:"type"`
	GameID    int64   `json:"game_id"`
	PlayerID  int64   `json:"player_id,omitempty"`
	Players   []int64 `json:"players,omitempty"`
	Timestamp int64   `json:"timestamp"`
}
