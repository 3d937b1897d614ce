// Package historian drains the event queue into PostgreSQL. Records are
// buffered and written in batches, either when the buffer fills or on a
// timer, and games that stop producing events are eventually marked
// abandoned.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/muster-gg/muster/internal/cache"
	"github.com/muster-gg/muster/internal/database"
	"github.com/muster-gg/muster/internal/models"
)

// EventSource yields archived event records, normally the Redis queue.
type EventSource interface {
	PopBlocking(ctx context.Context, timeout time.Duration) (models.EventRecord, bool, error)
}

// EventSink persists event records, normally the database.
type EventSink interface {
	InsertEvents(ctx context.Context, events []models.EventRecord) error
	MarkGameAbandoned(ctx context.Context, gameID int64) error
}

var (
	_ EventSource = (*cache.Queue)(nil)
	_ EventSink   = (*database.DB)(nil)
)

// Config tunes batching and the abandonment sweep. Zero fields fall back
// to defaults.
type Config struct {
	BatchSize  int
	FlushDelay time.Duration
	Inactivity time.Duration
	PopTimeout time.Duration
}

// Service pops events from a source and persists them to a sink in batches.
type Service struct {
	source EventSource
	sink   EventSink
	cfg    Config

	batchMu sync.Mutex
	batch   []models.EventRecord

	// flushMu serializes sink writes so batches land in queue order even
	// when a size-triggered flush races the timer.
	flushMu sync.Mutex

	lastActivity sync.Map // map[int64]time.Time, last event seen per game
}

// New constructs a Service around the given source and sink.
func New(source EventSource, sink EventSink, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = 10 * time.Minute
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 3 * time.Second
	}
	return &Service{
		source: source,
		sink:   sink,
		cfg:    cfg,
		batch:  make([]models.EventRecord, 0, cfg.BatchSize),
	}
}

// Run drives the read, flush and inactivity loops until ctx is canceled,
// then flushes whatever is still buffered.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.flushLoop(gctx) })
	g.Go(func() error { return s.inactivityLoop(gctx) })
	err := g.Wait()

	// The loop context is gone by now; give the final flush its own window.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readLoop pops records one at a time and buffers them. Pop errors are
// logged and retried after a short pause so a Redis blip does not spin.
func (s *Service) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		record, ok, err := s.source.PopBlocking(ctx, s.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("historian: pop: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}

		if record.Type == models.EventGameClosed {
			// Closed games need no abandonment sweep.
			s.lastActivity.Delete(record.GameID)
		} else {
			s.lastActivity.Store(record.GameID, time.Now())
		}
		s.append(ctx, record)
	}
}

// append buffers one record and flushes when the batch is full.
func (s *Service) append(ctx context.Context, record models.EventRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, record)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if full {
		s.flush(ctx)
	}
}

// flushLoop flushes whatever accumulated between size-triggered flushes.
func (s *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// flush writes the buffered records in one sink call. On failure the batch
// is put back at the front of the buffer: records appended since are
// necessarily newer, so queue order is preserved for the retry.
func (s *Service) flush(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := s.batch
	s.batch = make([]models.EventRecord, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	if err := s.sink.InsertEvents(ctx, pending); err != nil {
		log.Errorf("historian: flush of %d events failed: %v", len(pending), err)
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return
	}
	log.Debugf("historian: flushed %d events", len(pending))
}

// inactivityLoop periodically marks games abandoned when no event has been
// seen for them within the configured window.
func (s *Service) inactivityLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepInactive(ctx)
		}
	}
}

// sweepInactive walks the activity map and abandons every game past the
// inactivity window. Entries are kept on sink failure so the next sweep
// retries them.
func (s *Service) sweepInactive(ctx context.Context) {
	now := time.Now()
	s.lastActivity.Range(func(key, val interface{}) bool {
		gameID, ok1 := key.(int64)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.cfg.Inactivity {
			return true
		}
		if err := s.sink.MarkGameAbandoned(ctx, gameID); err != nil {
			log.Errorf("historian: mark game %d abandoned: %v", gameID, err)
			return true
		}
		s.lastActivity.Delete(gameID)
		log.Infof("historian: marked game %d abandoned after inactivity", gameID)
		return true
	})
}
