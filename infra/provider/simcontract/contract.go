// Package simcontract is an in-process stand-in for the settlement
// contract. Requests above the configured amount limit revert; everything
// else is confirmed after a short delay.
package simcontract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/provider/onchain"
)

// Confirmation is a recorded Confirm call.
type Confirmation struct {
	RequestID string
	Success   bool
	Message   string
}

// Contract simulates the settlement contract.
type Contract struct {
	bus      eventbus.Bus
	delay    time.Duration
	maxCents int64
	logger   *slog.Logger

	mu            sync.Mutex
	seq           int64
	receipts      map[string]*onchain.SubmitReceipt
	known         map[string]bool
	confirmations []Confirmation
	pending       sync.WaitGroup
}

// New creates a simulated contract.
func New(bus eventbus.Bus, cfg *config.Chain, logger *slog.Logger) *Contract {
	c := &Contract{
		bus:      bus,
		delay:    time.Second,
		logger:   logger.With("provider", "sim_contract"),
		receipts: make(map[string]*onchain.SubmitReceipt),
		known:    make(map[string]bool),
	}
	if cfg != nil {
		if cfg.ConfirmDelay >= 0 {
			c.delay = cfg.ConfirmDelay
		}
		c.maxCents = cfg.MaxAmountCents
	}
	return c
}

// Submit accepts the request and schedules its outcome. Resubmitting the
// same correlation key returns the original receipt.
func (c *Contract) Submit(ctx context.Context, req *onchain.SubmitRequest) (*onchain.SubmitReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient(err)
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrOnChainSubmission)
	}

	c.mu.Lock()
	if r, ok := c.receipts[req.CorrelationKey]; ok {
		c.mu.Unlock()
		out := *r
		return &out, nil
	}
	c.seq++
	requestID := strconv.FormatInt(c.seq, 10)
	sum := sha256.Sum256([]byte(req.CorrelationKey + "|" + requestID))
	receipt := &onchain.SubmitReceipt{RequestID: requestID, TxRef: "0x" + hex.EncodeToString(sum[:])}
	c.receipts[req.CorrelationKey] = receipt
	c.known[requestID] = true
	c.mu.Unlock()

	c.logger.Info("🔗 Top-up request submitted",
		"request_id", receipt.RequestID,
		"tx_ref", receipt.TxRef,
		"amount_cents", req.AmountCents,
		"card_last4", req.CardLast4,
	)
	c.settleLater(*receipt, req.AmountCents)
	out := *receipt
	return &out, nil
}

func (c *Contract) settleLater(r onchain.SubmitReceipt, amountCents int64) {
	c.pending.Add(1)
	time.AfterFunc(c.delay, func() {
		defer c.pending.Done()
		ctx := context.Background()
		var err error
		if c.maxCents > 0 && amountCents > c.maxCents {
			reason := fmt.Sprintf("amount %d exceeds contract limit %d", amountCents, c.maxCents)
			err = c.bus.Emit(ctx, events.NewOnChainFailed(r.RequestID, r.TxRef, reason))
		} else {
			err = c.bus.Emit(ctx, events.NewOnChainConfirmed(r.RequestID, r.TxRef))
		}
		if err != nil {
			c.logger.Error("❌ Failed to publish on-chain outcome", "request_id", r.RequestID, "error", err)
		}
	})
}

// Confirm records the payment outcome for a submitted request.
func (c *Contract) Confirm(ctx context.Context, requestID string, success bool, message string) error {
	if err := ctx.Err(); err != nil {
		return domain.Transient(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known[requestID] {
		return fmt.Errorf("%w: unknown request %s", domain.ErrNotFound, requestID)
	}
	c.confirmations = append(c.confirmations, Confirmation{RequestID: requestID, Success: success, Message: message})
	return nil
}

// Confirmations returns the Confirm calls seen so far.
func (c *Contract) Confirmations() []Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Confirmation, len(c.confirmations))
	copy(out, c.confirmations)
	return out
}

func (c *Contract) Health(context.Context) onchain.Health { return onchain.Health{} }

// Wait blocks until every scheduled outcome was published.
func (c *Contract) Wait() { c.pending.Wait() }

var _ onchain.Contract = (*Contract)(nil)
