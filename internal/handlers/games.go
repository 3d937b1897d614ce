package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/muster-gg/muster/internal/models"
	"github.com/muster-gg/muster/internal/notify"
)

// GamesHandler dispatches /api/games by method: platform POST to create a
// game, public GET to browse open ones.
func GamesHandler(srv *Server) http.HandlerFunc {
	create := CreateGameHandler(srv)
	list := ListGamesHandler(srv)
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			create(w, r)
		case http.MethodGet:
			list(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// CreateGameHandler registers a new session on behalf of the platform. The
// games row is written first, then the state store record: a crash between
// the two leaves only a memberless row the historian eventually marks
// abandoned.
func CreateGameHandler(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !srv.authorizePlatform(w, r) {
			return
		}

		var req struct {
			Name       string  `json:"name"`
			MaxPlayers int     `json:"max_players"`
			Players    []int64 `json:"players"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if req.MaxPlayers <= 0 {
			req.MaxPlayers = 8
		}
		players := dedupePlayers(req.Players)
		for _, pid := range players {
			if pid <= 0 {
				http.Error(w, "player ids must be positive", http.StatusBadRequest)
				return
			}
		}
		if len(players) > req.MaxPlayers {
			http.Error(w, "more players than seats", http.StatusBadRequest)
			return
		}

		id, err := srv.DB.CreateGame(r.Context(), req.Name, req.MaxPlayers, players)
		if err != nil {
			srv.Logger.Errorf("create game: %v", err)
			http.Error(w, "failed to create game", http.StatusInternalServerError)
			return
		}

		srv.Store.RegisterGame(id, players)
		srv.Metrics.GamesRegistered.Inc()
		srv.publishEvent(r.Context(), models.EventRecord{
			Type:    models.EventGameRegistered,
			GameID:  id,
			Players: players,
		})
		srv.Logger.WithField("game_id", id).Infof("registered game %q with %d initial players", req.Name, len(players))

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id":          id,
			"name":        req.Name,
			"max_players": req.MaxPlayers,
			"players":     players,
		})
	}
}

// ListGamesHandler returns the open games with live player counts stamped
// from the state store.
func ListGamesHandler(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listings, err := srv.listOpenGames(r.Context())
		if err != nil {
			srv.Logger.Errorf("list games: %v", err)
			http.Error(w, "failed to list games", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"games": listings})
	}
}

// listOpenGames pulls the browsable rows from persistence and stamps each
// one's live count from the state store. Shared by the REST listing and the
// in-band list_games frame.
func (s *Server) listOpenGames(ctx context.Context) ([]models.GameListing, error) {
	listings, err := s.DB.ListOpenGames(ctx)
	if err != nil {
		return nil, err
	}
	s.Store.FillNumPlayers(listings)
	if listings == nil {
		listings = []models.GameListing{}
	}
	return listings, nil
}

// CloseGameHandler ends a game: checkpoint the database, mark the in-memory
// record closed for lazy purge, and tell the members. Routed for POST
// /api/games/{id}/close.
func CloseGameHandler(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !srv.authorizePlatform(w, r) {
			return
		}
		id, ok := parseCloseTarget(r.URL.Path)
		if !ok {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		g, found, err := srv.Store.AcquireGame(r.Context(), id)
		if err != nil {
			http.Error(w, "failed to close game", http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		members := g.Players()
		g.Close()
		g.Release()

		if err := srv.DB.MarkGameEnded(r.Context(), id); err != nil {
			srv.Logger.Errorf("mark game %d ended: %v", id, err)
		}
		srv.Metrics.GamesClosed.Inc()
		srv.publishEvent(r.Context(), models.EventRecord{
			Type:    models.EventGameClosed,
			GameID:  id,
			Players: members,
		})
		srv.notifyPlayers(r.Context(), members, 0, notify.Event{
			Type:   "game_closed",
			GameID: id,
		})
		srv.Logger.WithField("game_id", id).Infof("closed game with %d members", len(members))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":      id,
			"players": members,
		})
	}
}

// parseCloseTarget extracts the id from /api/games/{id}/close.
func parseCloseTarget(path string) (int64, bool) {
	rest, ok := strings.CutPrefix(path, "/api/games/")
	if !ok {
		return 0, false
	}
	idStr, ok := strings.CutSuffix(rest, "/close")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// dedupePlayers drops repeated ids, keeping first-seen order.
func dedupePlayers(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	var out []int64
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
