// Package topup orchestrates card top-ups across the ledger, the settlement
// contract and the payment gateway.
//
// A top-up is recorded as a pending ledger transaction together with its
// saga row, submitted to the contract, then charged at the gateway. The
// contract and gateway outcomes arrive on the event bus in any order; the
// transaction completes and the balance is credited only when both
// confirmed. Contradicting outcomes are flagged for reconciliation and
// never undone automatically.
package topup

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/ledger"
	"github.com/amirasaad/topupledger/pkg/provider/onchain"
	"github.com/amirasaad/topupledger/pkg/provider/payment"
	"github.com/amirasaad/topupledger/pkg/repository"
	"github.com/amirasaad/topupledger/pkg/retry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

var cardLast4Pattern = regexp.MustCompile(`^[0-9]{4}$`)

// Config tunes the orchestrator.
type Config struct {
	Retry           retry.Policy
	DefaultCurrency string
	StaleAfter      time.Duration
	SweepInterval   time.Duration
}

// DefaultConfig mirrors the config package defaults.
func DefaultConfig() Config {
	return Config{
		Retry:           retry.DefaultPolicy(),
		DefaultCurrency: "USD",
		StaleAfter:      15 * time.Minute,
		SweepInterval:   time.Minute,
	}
}

// ConfigFrom builds a Config from the SAGA_* environment section.
func ConfigFrom(c *config.Saga) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	if c.CallTimeout > 0 {
		cfg.Retry.Timeout = c.CallTimeout
	}
	cfg.Retry.MaxRetries = c.MaxRetries
	if c.Currency != "" {
		cfg.DefaultCurrency = c.Currency
	}
	if c.StaleAfter > 0 {
		cfg.StaleAfter = c.StaleAfter
	}
	if c.SweepInterval > 0 {
		cfg.SweepInterval = c.SweepInterval
	}
	return cfg
}

// InitiateRequest is a validated-on-entry top-up request.
type InitiateRequest struct {
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	CardLast4      string
	IdempotencyKey string
}

// Result is what Initiate reports back to the caller.
type Result struct {
	Saga *domain.TopUpSaga
	// Charge is nil for duplicates and when the gateway was never reached.
	Charge *payment.ChargeResult
	// Duplicate is set when the correlation key was already known and
	// nothing was executed.
	Duplicate bool
}

// Service is the top-up orchestrator.
type Service struct {
	ledger   *ledger.Service
	uow      repository.UnitOfWork
	contract onchain.Contract
	gateway  payment.Gateway
	bus      eventbus.Bus
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	inflight singleflight.Group
	locks    sync.Map

	// parked holds contract outcomes that arrived before their request id
	// was stored on the saga.
	parkMu sync.Mutex
	parked map[string]onChainOutcome
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used by the sweeper.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the orchestrator.
func New(
	ledgerSvc *ledger.Service,
	uow repository.UnitOfWork,
	contract onchain.Contract,
	gateway payment.Gateway,
	bus eventbus.Bus,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		ledger:   ledgerSvc,
		uow:      uow,
		contract: contract,
		gateway:  gateway,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With("component", "topup"),
		now:      time.Now,
		parked:   make(map[string]onChainOutcome),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) normalize(req InitiateRequest) (InitiateRequest, error) {
	if req.AccountID == uuid.Nil {
		return req, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return req, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return req, fmt.Errorf("%w: amount has more than two decimal places", domain.ErrValidation)
	}
	// The contract takes the amount in cents as an int64.
	if !req.Amount.Shift(2).BigInt().IsInt64() {
		return req, fmt.Errorf("%w: amount is too large", domain.ErrValidation)
	}
	if !cardLast4Pattern.MatchString(req.CardLast4) {
		return req, fmt.Errorf("%w: card last four must be 4 digits", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Currency) == "" {
		req.Currency = s.cfg.DefaultCurrency
	}
	cur, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return req, err
	}
	req.Currency = cur
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	return req, nil
}

func (s *Service) lockFor(sagaID uuid.UUID) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(sagaID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get returns one saga.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.TopUpSaga, error) {
	sagas, err := s.uow.SagaRepository()
	if err != nil {
		return nil, err
	}
	return sagas.Get(ctx, id)
}

// GetByCorrelationKey returns the saga started with key.
func (s *Service) GetByCorrelationKey(ctx context.Context, key string) (*domain.TopUpSaga, error) {
	sagas, err := s.uow.SagaRepository()
	if err != nil {
		return nil, err
	}
	return sagas.FindByCorrelationKey(ctx, key)
}

// NeedsReconciliation lists sagas waiting for an operator, oldest first.
func (s *Service) NeedsReconciliation(ctx context.Context, limit int) ([]*domain.TopUpSaga, error) {
	sagas, err := s.uow.SagaRepository()
	if err != nil {
		return nil, err
	}
	return sagas.ListByState(ctx, []domain.SagaState{domain.SagaNeedsReconciliation}, time.Time{}, limit)
}
