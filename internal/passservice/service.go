// Package passservice coordinates reconciliation passes, the pass journal,
// and listeners such as the SSE broker.
package passservice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/denote-reconcile/internal/apperr"
	"github.com/starford/denote-reconcile/internal/journal"
	"github.com/starford/denote-reconcile/internal/reconcile"
)

// Result is a finished pass. PassID is zero when no journal is configured.
type Result struct {
	PassID int64             `json:"pass_id,omitempty"`
	Report *reconcile.Report `json:"report"`
}

// Listener is notified after every pass, failed ones included.
type Listener func(Result)

// Service serializes passes over one corpus: at most one runs at a time.
type Service struct {
	engine  *reconcile.Engine
	opts    reconcile.Options
	journal journal.Store
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []Listener
	listenMu  sync.RWMutex
}

// New creates a service. store may be nil to disable the journal.
func New(engine *reconcile.Engine, opts reconcile.Options, store journal.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, opts: opts, journal: store, logger: logger}
}

// OnPass registers a listener.
func (s *Service) OnPass(l Listener) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Reconcile runs a pass, waiting for any pass in progress to finish first.
func (s *Service) Reconcile(ctx context.Context, dryRun bool) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, dryRun)
}

// TryReconcile runs a pass unless one is already running, in which case it
// returns apperr.ErrBusy.
func (s *Service) TryReconcile(ctx context.Context, dryRun bool) (Result, error) {
	if !s.mu.TryLock() {
		return Result{}, apperr.ErrBusy
	}
	defer s.mu.Unlock()
	return s.run(ctx, dryRun)
}

func (s *Service) run(ctx context.Context, dryRun bool) (Result, error) {
	opts := s.opts
	opts.DryRun = dryRun
	report, err := s.engine.Run(ctx, opts)

	res := Result{Report: report}
	if s.journal != nil && report != nil {
		id, jerr := s.journal.RecordPass(ctx, report)
		if jerr != nil {
			s.logger.Warn("journal: record pass failed", slog.String("error", jerr.Error()))
		} else {
			res.PassID = id
		}
	}

	s.listenMu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenMu.RUnlock()
	for _, l := range listeners {
		l(res)
	}
	return res, err
}

// ListPasses returns recorded passes, newest first.
func (s *Service) ListPasses(ctx context.Context, limit, offset int) ([]journal.PassSummary, int, error) {
	if s.journal == nil {
		return nil, 0, apperr.ErrDisabled
	}
	return s.journal.ListPasses(ctx, limit, offset)
}

// GetPass returns one recorded pass.
func (s *Service) GetPass(ctx context.Context, id int64) (*journal.Pass, error) {
	if s.journal == nil {
		return nil, apperr.ErrDisabled
	}
	return s.journal.GetPass(ctx, id)
}

// NoteHistory returns the recorded line items naming one note.
func (s *Service) NoteHistory(ctx context.Context, note string, limit int) ([]journal.ItemHit, error) {
	if s.journal == nil {
		return nil, apperr.ErrDisabled
	}
	return s.journal.NoteHistory(ctx, note, limit)
}

// Search searches recorded line items.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]journal.ItemHit, error) {
	if s.journal == nil {
		return nil, apperr.ErrDisabled
	}
	return s.journal.Search(ctx, query, limit)
}
