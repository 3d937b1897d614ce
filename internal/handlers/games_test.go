package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muster-gg/muster/internal/auth"
	"github.com/muster-gg/muster/internal/config"
	"github.com/muster-gg/muster/internal/metrics"
	"github.com/muster-gg/muster/internal/models"
	"github.com/muster-gg/muster/internal/state"
)

// fakePersistence is an in-memory stand-in for the games tables so handler
// tests run without PostgreSQL. Rows are kept newest first, like the real
// listing query.
type fakePersistence struct {
	mu     sync.Mutex
	nextID int64
	open   []models.GameListing
	ended  []int64
}

func (f *fakePersistence) CreateGame(ctx context.Context, name string, maxPlayers int, players []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.open = append([]models.GameListing{{
		ID:         f.nextID,
		Name:       name,
		MaxPlayers: maxPlayers,
		CreatedAt:  time.Now(),
	}}, f.open...)
	return f.nextID, nil
}

func (f *fakePersistence) MarkGameEnded(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.open {
		if l.ID == id {
			f.open = append(f.open[:i], f.open[i+1:]...)
			break
		}
	}
	f.ended = append(f.ended, id)
	return nil
}

func (f *fakePersistence) ListOpenGames(ctx context.Context) ([]models.GameListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.GameListing(nil), f.open...), nil
}

func (f *fakePersistence) endedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ended...)
}

// setupAPIServer builds a Server over the in-memory persistence fake.
func setupAPIServer(t *testing.T, apiSecretHash string) *Server {
	t.Helper()
	store := state.New(nil)
	keys, err := auth.NewKeys(time.Hour)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Auth.APISecretHash = apiSecretHash
	return NewServer(store, &fakePersistence{}, &capturePublisher{}, keys, metrics.New(store), logrus.New(), cfg)
}

// TestHealthz verifies the liveness endpoint.
func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

// TestPlatformEndpointsDisabledWithoutSecret verifies an unset hash turns
// the platform surface off rather than open.
func TestPlatformEndpointsDisabledWithoutSecret(t *testing.T) {
	srv := setupAPIServer(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(`{"name":"a"}`))
	GamesHandler(srv)(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestPlatformSecretChecked covers missing, wrong, and right secrets. The
// right-secret case uses a bad body so only the gate itself is exercised.
func TestPlatformSecretChecked(t *testing.T) {
	hash, err := auth.CreateSecretHash("topsecret", auth.Params)
	require.NoError(t, err)
	srv := setupAPIServer(t, hash)
	handler := GamesHandler(srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(`{"name":"a"}`))
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing secret")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(`{"name":"a"}`))
	req.Header.Set("X-Api-Secret", "wrong")
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "wrong secret")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(`{{`))
	req.Header.Set("X-Api-Secret", "topsecret")
	handler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "right secret reaches validation")
}

// TestCreateGameValidation covers the request checks behind the secret.
func TestCreateGameValidation(t *testing.T) {
	hash, err := auth.CreateSecretHash("topsecret", auth.Params)
	require.NoError(t, err)
	srv := setupAPIServer(t, hash)
	handler := CreateGameHandler(srv)

	cases := []struct {
		name string
		body string
	}{
		{"empty name", `{"name":"  "}`},
		{"bad player id", `{"name":"a","players":[1,0]}`},
		{"too many players", `{"name":"a","max_players":1,"players":[1,2]}`},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(tc.body))
		req.Header.Set("X-Api-Secret", "topsecret")
		handler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
	}
}

// TestCreateListCloseGameFlow drives one game through the whole platform
// surface: create it, browse it with a live count, close it, and watch the
// store purge it lazily.
func TestCreateListCloseGameFlow(t *testing.T) {
	hash, err := auth.CreateSecretHash("topsecret", auth.Params)
	require.NoError(t, err)
	srv := setupAPIServer(t, hash)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/games",
		strings.NewReader(`{"name":"friday night","max_players":4,"players":[1,2,2]}`))
	req.Header.Set("X-Api-Secret", "topsecret")
	GamesHandler(srv)(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID      int64   `json:"id"`
		Players []int64 `json:"players"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, []int64{1, 2}, created.Players, "duplicate ids collapse")

	n, ok := srv.Store.NumPlayers(created.ID)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	rec = httptest.NewRecorder()
	GamesHandler(srv)(rec, httptest.NewRequest(http.MethodGet, "/api/games", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Games []models.GameListing `json:"games"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Games, 1)
	assert.Equal(t, "friday night", listed.Games[0].Name)
	assert.Equal(t, 2, listed.Games[0].NumPlayers, "count comes from the store, not the database")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/games/%d/close", created.ID), nil)
	req.Header.Set("X-Api-Secret", "topsecret")
	CloseGameHandler(srv)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []int64{created.ID}, srv.DB.(*fakePersistence).endedIDs())

	// The closed record is swept out by the next lease attempt.
	_, ok, err = srv.Store.AcquireGame(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	records := srv.Events.(*capturePublisher).all()
	require.Len(t, records, 2)
	assert.Equal(t, models.EventGameRegistered, records[0].Type)
	assert.Equal(t, []int64{1, 2}, records[0].Players)
	assert.Equal(t, models.EventGameClosed, records[1].Type)
	assert.Equal(t, created.ID, records[1].GameID)
}

// TestGamesHandlerMethodNotAllowed verifies the dispatcher rejects other
// verbs.
func TestGamesHandlerMethodNotAllowed(t *testing.T) {
	srv := setupAPIServer(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/games", nil)
	GamesHandler(srv)(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// TestCloseGameHandlerPaths covers method, id parsing, and the absent game.
func TestCloseGameHandlerPaths(t *testing.T) {
	hash, err := auth.CreateSecretHash("topsecret", auth.Params)
	require.NoError(t, err)
	srv := setupAPIServer(t, hash)
	handler := CloseGameHandler(srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/games/1/close", nil)
	handler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/games/abc/close", nil)
	req.Header.Set("X-Api-Secret", "topsecret")
	handler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/games/12/close", nil)
	req.Header.Set("X-Api-Secret", "topsecret")
	handler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestParseCloseTarget pins the path parser.
func TestParseCloseTarget(t *testing.T) {
	cases := []struct {
		path string
		id   int64
		ok   bool
	}{
		{"/api/games/12/close", 12, true},
		{"/api/games/abc/close", 0, false},
		{"/api/games/12", 0, false},
		{"/api/games/-3/close", 0, false},
		{"/api/games//close", 0, false},
		{"/other/12/close", 0, false},
	}
	for _, tc := range cases {
		id, ok := parseCloseTarget(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		if tc.ok {
			assert.Equal(t, tc.id, id, tc.path)
		}
	}
}

// TestDedupePlayers verifies order-preserving dedup.
func TestDedupePlayers(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, dedupePlayers([]int64{3, 1, 3, 2, 1}))
	assert.Nil(t, dedupePlayers(nil))
}
