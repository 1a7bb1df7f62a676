package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/painscope/painscope/pkg/config"
	"github.com/painscope/painscope/pkg/models"
)

// Scheduler runs the pick-and-dispatch loop and the stale-recovery sweep
// on independent tickers. Claims go through the store's skip-locked
// query, so any number of scheduler instances may run concurrently
// without double-dispatching a search.
type Scheduler struct {
	cfg    config.QueueConfig
	queue  SearchQueue
	runner SearchRunner

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	mu       sync.Mutex
	inFlight map[string]struct{}

	sweepMu    sync.Mutex
	lastSweep  time.Time
	totalReset int64
	totalFail  int64
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg config.QueueConfig, queue SearchQueue, runner SearchRunner) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		queue:    queue,
		runner:   runner,
		stopCh:   make(chan struct{}),
		inFlight: make(map[string]struct{}),
	}
}

// Start launches the dispatch and recovery loops. An immediate recovery
// sweep runs first so searches stranded by a crash of this instance are
// rescheduled without waiting a full interval. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	if s.started {
		slog.Warn("Scheduler already started, ignoring duplicate Start call")
		return
	}
	s.started = true

	slog.Info("Starting scheduler",
		"max_concurrent", s.cfg.MaxConcurrent,
		"pick_interval", s.cfg.PickInterval,
		"recovery_interval", s.cfg.RecoveryInterval)

	s.runRecovery(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.dispatchLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.recoveryLoop(ctx)
	}()
}

// Stop signals both loops and waits for in-flight workers to finish.
func (s *Scheduler) Stop() {
	slog.Info("Stopping scheduler")
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// dispatchLoop claims ready searches every PickInterval and dispatches
// each to its own goroutine, bounded by MaxConcurrent.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PickInterval)
	defer ticker.Stop()

	// First pick runs immediately; a fresh instance should not idle a
	// full interval with work already queued.
	s.pickAndDispatch(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pickAndDispatch(ctx)
		}
	}
}

// pickAndDispatch claims up to the free concurrency slots and fires a
// worker goroutine per claimed search. The claim itself moved the rows
// to processing, so nothing here blocks on the pipeline.
func (s *Scheduler) pickAndDispatch(ctx context.Context) {
	free := s.freeSlots()
	if free <= 0 {
		return
	}

	claimed, err := s.queue.ClaimPending(ctx, time.Now().UTC(), free)
	if err != nil {
		slog.Error("Failed to claim pending searches", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	slog.Info("Dispatching searches", "count", len(claimed))
	for _, search := range claimed {
		s.track(search.ID)
		s.wg.Add(1)
		go func(search *models.Search) {
			defer s.wg.Done()
			defer s.untrack(search.ID)

			log := slog.With("search_id", search.ID)
			log.Info("Worker started")
			if err := s.runner.Run(ctx, search); err != nil {
				log.Error("Worker bookkeeping failed", "error", err)
				return
			}
			log.Info("Worker finished")
		}(search)
	}
}

// recoveryLoop sweeps stale processing searches every RecoveryInterval.
func (s *Scheduler) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runRecovery(ctx)
		}
	}
}

// runRecovery resets retryable stale searches and fails the exhausted
// ones. All instances run this independently; both updates are
// idempotent.
func (s *Scheduler) runRecovery(ctx context.Context) {
	now := time.Now().UTC()

	reset, err := s.queue.ResetStale(ctx, now, s.cfg.StaleAfter)
	if err != nil {
		slog.Error("Stale reset failed", "error", err)
		return
	}
	failed, err := s.queue.MarkPermanentlyFailed(ctx, now, s.cfg.StaleAfter)
	if err != nil {
		slog.Error("Stale fail sweep failed", "error", err)
		return
	}

	s.sweepMu.Lock()
	s.lastSweep = now
	s.totalReset += reset
	s.totalFail += failed
	s.sweepMu.Unlock()

	if reset > 0 || failed > 0 {
		slog.Warn("Recovered stale searches", "reset", reset, "failed", failed)
	}
}

// Health reports scheduler and queue state.
func (s *Scheduler) Health(ctx context.Context) Health {
	depth, err := s.queue.CountByStatus(ctx, models.StatusPending)
	h := Health{
		QueueDepth:    depth,
		MaxConcurrent: s.cfg.MaxConcurrent,
		DBReachable:   err == nil,
	}
	if err != nil {
		h.DBError = err.Error()
	}

	s.mu.Lock()
	h.InFlight = len(s.inFlight)
	for id := range s.inFlight {
		h.ActiveSearchIDs = append(h.ActiveSearchIDs, id)
	}
	s.mu.Unlock()

	s.sweepMu.Lock()
	h.LastRecoverySweep = s.lastSweep
	h.StaleReset = s.totalReset
	h.StaleFailed = s.totalFail
	s.sweepMu.Unlock()
	return h
}

func (s *Scheduler) freeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MaxConcurrent - len(s.inFlight)
}

func (s *Scheduler) track(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[id] = struct{}{}
}

func (s *Scheduler) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
