package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/muster-gg/muster/internal/auth"
	"github.com/muster-gg/muster/internal/cache"
	"github.com/muster-gg/muster/internal/config"
	"github.com/muster-gg/muster/internal/database"
	"github.com/muster-gg/muster/internal/metrics"
	"github.com/muster-gg/muster/internal/models"
	"github.com/muster-gg/muster/internal/notify"
	"github.com/muster-gg/muster/internal/state"
)

// EventPublisher sinks event records for the historian. *cache.Queue is the
// production implementation.
type EventPublisher interface {
	Publish(ctx context.Context, record models.EventRecord) error
}

var _ EventPublisher = (*cache.Queue)(nil)

// Persistence is the durable side the handlers checkpoint to. *database.DB
// is the production implementation.
type Persistence interface {
	CreateGame(ctx context.Context, name string, maxPlayers int, players []int64) (int64, error)
	MarkGameEnded(ctx context.Context, id int64) error
	ListOpenGames(ctx context.Context) ([]models.GameListing, error)
}

var _ Persistence = (*database.DB)(nil)

// Server ties the state store to its collaborators for every HTTP surface
// the service exposes. One instance per process, built in main.
type Server struct {
	Store   *state.Store
	DB      Persistence
	Events  EventPublisher
	Keys    *auth.Keys
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
	Session config.SessionConfig

	apiSecretHash string
}

// NewServer wires a Server from its collaborators. A nil events publisher
// disables archival, which is only sensible in development.
func NewServer(store *state.Store, db Persistence, events EventPublisher, keys *auth.Keys, m *metrics.Metrics, logger *logrus.Logger, cfg config.Config) *Server {
	return &Server{
		Store:         store,
		DB:            db,
		Events:        events,
		Keys:          keys,
		Metrics:       m,
		Logger:        logger,
		Session:       cfg.Session,
		apiSecretHash: cfg.Auth.APISecretHash,
	}
}

// publishEvent stamps and queues a record for the historian. Failures are
// logged, never propagated: archival must not fail a live mutation.
func (s *Server) publishEvent(ctx context.Context, record models.EventRecord) {
	if s.Events == nil {
		return
	}
	record.Timestamp = time.Now().UnixMilli()
	if err := s.Events.Publish(ctx, record); err != nil {
		s.Logger.Warnf("failed to publish %s event for game %d: %v", record.Type, record.GameID, err)
	}
}

// notifyPlayers pushes ev to each listed player's live connection, skipping
// except. Player leases are taken one at a time, strictly after the caller
// released its mutation leases, so the fan-out never holds two locks at
// once.
func (s *Server) notifyPlayers(ctx context.Context, players []int64, except int64, ev notify.Event) {
	for _, pid := range players {
		if pid == except {
			continue
		}
		p, err := s.Store.AcquirePlayer(ctx, pid)
		if err != nil {
			return
		}
		n := p.Notifier()
		p.Release()
		if n != nil && !n.TrySend(ev) {
			s.Metrics.DroppedEvents.Inc()
		}
	}
}

// authorizePlatform guards the platform endpoints with the X-Api-Secret
// header, checked against the configured argon2id hash. With no hash
// configured the endpoints are disabled outright.
func (s *Server) authorizePlatform(w http.ResponseWriter, r *http.Request) bool {
	if s.apiSecretHash == "" {
		http.Error(w, "platform api disabled", http.StatusServiceUnavailable)
		return false
	}
	secret := r.Header.Get("X-Api-Secret")
	if secret == "" {
		http.Error(w, "missing api secret", http.StatusUnauthorized)
		return false
	}
	ok, err := auth.CompareSecretAndHash(secret, s.apiSecretHash)
	if err != nil {
		s.Logger.Errorf("configured api secret hash is malformed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return false
	}
	if !ok {
		http.Error(w, "invalid api secret", http.StatusUnauthorized)
		return false
	}
	return true
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthzHandler reports process liveness.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
