// Package ledger owns every mutation of accounts, balances and chained
// transactions. Writes go through a single path that links new transactions
// into the hash chain, archives superseded versions and records audit entries
// in the same database transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/topupledger/pkg/auditlog"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/hashchain"
	"github.com/amirasaad/topupledger/pkg/repository"
)

const defaultMaxLinkAttempts = 3

// Service is the ledger write path and its read models.
type Service struct {
	uow             repository.UnitOfWork
	audit           *auditlog.Recorder
	logger          *slog.Logger
	now             func() time.Time
	maxLinkAttempts int

	// chainMu serializes tail assignment inside this process. It is always
	// taken before a database transaction starts, never inside one.
	chainMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxLinkAttempts bounds retries after a chain link conflict.
func WithMaxLinkAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLinkAttempts = n
		}
	}
}

// WithRecorder replaces the audit recorder.
func WithRecorder(r *auditlog.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// New creates a ledger Service.
func New(uow repository.UnitOfWork, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		uow:             uow,
		logger:          logger.With("component", "ledger"),
		now:             time.Now,
		maxLinkAttempts: defaultMaxLinkAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = auditlog.NewRecorder(logger)
	}
	return s
}

// Do runs fn in one database transaction with a Writer for non-chain
// mutations. fn must not call Append.
func (s *Service) Do(ctx context.Context, fn func(ctx context.Context, w *Writer) error) error {
	return s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		return fn(ctx, s.newWriter(u))
	})
}

// Append validates draft, links a new transaction to the chain tail and
// inserts it. within runs in the same database transaction after the insert,
// so anything it writes commits or rolls back together with the transaction.
// A chain link conflict is retried a bounded number of times and then
// surfaced as ErrLedgerWrite.
func (s *Service) Append(
	ctx context.Context,
	draft domain.TransactionDraft,
	within func(ctx context.Context, w *Writer, t *domain.Transaction) error,
) (*domain.Transaction, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxLinkAttempts; attempt++ {
		t, err := s.appendOnce(ctx, draft, within)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, domain.ErrChainLinkConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("⚠️ Chain link conflict, retrying", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrLedgerWrite, lastErr)
}

func (s *Service) appendOnce(
	ctx context.Context,
	draft domain.TransactionDraft,
	within func(ctx context.Context, w *Writer, t *domain.Transaction) error,
) (*domain.Transaction, error) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	var out *domain.Transaction
	err := s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		w := s.newWriter(u)
		t, err := w.appendTransaction(ctx, draft)
		if err != nil {
			return err
		}
		if within != nil {
			if err := within(ctx, w, t); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Transaction chained", "transaction_id", out.ID, "chain_seq", out.ChainSeq)
	return out, nil
}

func (s *Service) newWriter(u repository.UnitOfWork) *Writer {
	return &Writer{s: s, uow: u, now: hashchain.NormalizeTime(s.now())}
}
