package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/muster-gg/muster/internal/models"
	"github.com/muster-gg/muster/internal/notify"
	"github.com/muster-gg/muster/internal/state"
)

// clientFrame is one inbound action from a game client.
type clientFrame struct {
	Type   string `json:"type"`
	GameID int64  `json:"game_id,omitempty"`
}

// ConnectWSHandler upgrades the connection, authenticates the player token,
// attaches a notifier to the player record, and runs the pumps until the
// client goes away. Game membership deliberately survives disconnects:
// dropping the socket only detaches the notifier, so a player reconnects
// into the same game.
func ConnectWSHandler(logger *logrus.Logger, srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"muster"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept failed: %v", err)
			return
		}
		if c.Subprotocol() != "muster" {
			c.Close(websocket.StatusCode(BadSubprotocolError), "client must speak the muster subprotocol")
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			token = extractCookieToken(r.Header.Get("Cookie"), "auth_token")
		}
		playerID, err := srv.Keys.VerifyPlayerToken(token)
		if err != nil {
			c.Close(websocket.StatusCode(InvalidAuthTokenError), "invalid auth token")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		n := notify.New(srv.Session.NotifyBuffer)
		p, err := srv.Store.AcquirePlayer(ctx, playerID)
		if err != nil {
			c.Close(websocket.StatusGoingAway, "going away")
			return
		}
		prev := p.SetNotifier(n)
		p.Release()
		if prev != nil {
			// Wakes the superseded connection's write pump so it closes out.
			prev.Close()
		}

		srv.Metrics.Connections.Inc()
		connLog := logger.WithFields(logrus.Fields{
			"player_id": playerID,
			"conn_id":   uuid.New().String(),
			"remote":    r.RemoteAddr,
		})
		connLog.Info("player connected")

		go writePump(ctx, c, n, connLog)
		readPump(ctx, c, srv, playerID, n, connLog)
		cancel()

		// Detach our notifier unless a newer connection already replaced it.
		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelCleanup()
		if p, err := srv.Store.AcquirePlayer(cleanupCtx, playerID); err == nil {
			if p.Notifier() == n {
				p.ClearNotifier()
			}
			p.Release()
		}
		n.Close()
		connLog.Info("player disconnected")
	}
}

// readPump decodes and applies client frames until the connection or the
// context dies. Inbound frames are rate limited per connection.
func readPump(ctx context.Context, c *websocket.Conn, srv *Server, playerID int64, n *notify.Notifier, logger *logrus.Entry) {
	lim := rate.NewLimiter(rate.Limit(srv.Session.MsgRate), srv.Session.MsgBurst)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Info("websocket closed")
			} else if ctx.Err() == nil {
				logger.Warnf("read error: %v (close status %d)", err, closeStatus)
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Warnf("ignoring non-text message type %d", typ)
			continue
		}
		if !lim.Allow() {
			n.TrySend(notify.Event{Type: "error", Message: "rate limited"})
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			n.TrySend(notify.Event{Type: "error", Message: "invalid JSON frame"})
			continue
		}
		srv.handleFrame(ctx, playerID, frame, n, logger)
	}
}

// handleFrame applies one client action. Mutations go through the combined
// store helpers; notifications fan out only after every lease is released.
func (s *Server) handleFrame(ctx context.Context, playerID int64, frame clientFrame, n *notify.Notifier, logger *logrus.Entry) {
	switch frame.Type {
	case "join_game":
		if frame.GameID <= 0 {
			n.TrySend(notify.Event{Type: "error", Message: "join_game requires game_id"})
			return
		}
		members, ok, err := s.Store.JoinGame(ctx, playerID, frame.GameID)
		if errors.Is(err, state.ErrAlreadyInGame) {
			n.TrySend(notify.Event{Type: "error", GameID: frame.GameID, Message: "already in another game"})
			return
		}
		if err != nil {
			// Context is gone; the pumps are on their way down.
			return
		}
		if !ok {
			n.TrySend(notify.Event{Type: "error", GameID: frame.GameID, Message: "game not found"})
			return
		}
		s.Metrics.Joins.Inc()
		logger.WithField("game_id", frame.GameID).Info("player joined game")
		n.TrySend(notify.Event{Type: "joined", GameID: frame.GameID, NumPlayers: len(members)})
		s.publishEvent(ctx, models.EventRecord{
			Type:     models.EventPlayerJoined,
			GameID:   frame.GameID,
			PlayerID: playerID,
			Players:  members,
		})
		s.notifyPlayers(ctx, members, playerID, notify.Event{
			Type:       "player_joined",
			GameID:     frame.GameID,
			PlayerID:   playerID,
			NumPlayers: len(members),
		})

	case "leave_game":
		gameID, members, ok, err := s.Store.LeaveGame(ctx, playerID)
		if err != nil {
			return
		}
		if !ok {
			n.TrySend(notify.Event{Type: "error", Message: "not in a game"})
			return
		}
		s.Metrics.Leaves.Inc()
		logger.WithField("game_id", gameID).Info("player left game")
		n.TrySend(notify.Event{Type: "left", GameID: gameID})
		s.publishEvent(ctx, models.EventRecord{
			Type:     models.EventPlayerLeft,
			GameID:   gameID,
			PlayerID: playerID,
			Players:  members,
		})
		s.notifyPlayers(ctx, members, playerID, notify.Event{
			Type:       "player_left",
			GameID:     gameID,
			PlayerID:   playerID,
			NumPlayers: len(members),
		})

	case "list_games":
		listings, err := s.listOpenGames(ctx)
		if err != nil {
			logger.Errorf("list games: %v", err)
			n.TrySend(notify.Event{Type: "error", Message: "failed to list games"})
			return
		}
		n.TrySend(notify.Event{Type: "games", Games: listings})

	default:
		n.TrySend(notify.Event{Type: "error", Message: fmt.Sprintf("unknown action type: %s", frame.Type)})
	}
}

// writePump drains the notifier into the socket and keeps the connection
// alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, n *notify.Notifier, logger *logrus.Entry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.C():
			if !ok {
				c.Close(websocket.StatusCode(ConnectionReplaced), "session superseded")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal outgoing event: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}

// extractCookieToken pulls a named cookie's value out of a Cookie header,
// returning empty if absent.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
