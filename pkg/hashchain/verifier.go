package hashchain

import (
	"context"
	"fmt"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
)

// ViolationKind classifies an integrity problem.
type ViolationKind string

const (
	// ContentMismatch means the stored hash does not match the stored fields.
	ContentMismatch ViolationKind = "content_mismatch"
	// BrokenLink means previous_hash does not equal the predecessor's hash.
	BrokenLink ViolationKind = "broken_link"
	// SequenceGap means chain_seq skipped or repeated a number.
	SequenceGap ViolationKind = "sequence_gap"
)

// Violation describes one problem found on one transaction.
type Violation struct {
	Kind          ViolationKind `json:"kind"`
	TransactionID uuid.UUID     `json:"transaction_id"`
	ChainSeq      int64         `json:"chain_seq"`
	Expected      string        `json:"expected"`
	Actual        string        `json:"actual"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s at seq %d (%s): expected %q, got %q", v.Kind, v.ChainSeq, v.TransactionID, v.Expected, v.Actual)
}

// Report is the outcome of a verification pass.
type Report struct {
	Checked    int         `json:"checked"`
	HeadSeq    int64       `json:"head_seq"`
	HeadHash   string      `json:"head_hash"`
	Violations []Violation `json:"violations"`
}

// OK reports whether the chain is intact.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Err returns ErrIntegrityViolation when the report has violations.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %d problem(s) in %d transaction(s)", domain.ErrIntegrityViolation, len(r.Violations), r.Checked)
}

// Source streams transactions in chain order from one consistent snapshot.
type Source interface {
	ScanChain(ctx context.Context, fn func(t *domain.Transaction) error) error
}

// Checker verifies transactions one at a time in chain order.
type Checker struct {
	report   Report
	prevHash string
	prevSeq  int64
}

// NewChecker starts at the genesis sentinel.
func NewChecker() *Checker {
	return &Checker{prevHash: GenesisHash, report: Report{Violations: []Violation{}}}
}

// Check records violations of t against its predecessor.
func (c *Checker) Check(t *domain.Transaction) {
	c.report.Checked++
	if want := c.prevSeq + 1; t.ChainSeq != want {
		c.add(SequenceGap, t, fmt.Sprint(want), fmt.Sprint(t.ChainSeq))
	}
	if t.PreviousHash != c.prevHash {
		c.add(BrokenLink, t, c.prevHash, t.PreviousHash)
	}
	if recomputed := Digest(t); recomputed != t.CurrentHash {
		c.add(ContentMismatch, t, recomputed, t.CurrentHash)
	}
	// continue from what is stored so one tampered row is reported once
	c.prevHash = t.CurrentHash
	c.prevSeq = t.ChainSeq
	c.report.HeadSeq = t.ChainSeq
	c.report.HeadHash = t.CurrentHash
}

func (c *Checker) add(kind ViolationKind, t *domain.Transaction, expected, actual string) {
	c.report.Violations = append(c.report.Violations, Violation{
		Kind:          kind,
		TransactionID: t.ID,
		ChainSeq:      t.ChainSeq,
		Expected:      expected,
		Actual:        actual,
	})
}

// Report returns a copy of the accumulated report.
func (c *Checker) Report() *Report {
	r := c.report
	r.Violations = make([]Violation, len(c.report.Violations))
	copy(r.Violations, c.report.Violations)
	return &r
}

// Verify reads the whole chain from src and checks every link. It never writes.
func Verify(ctx context.Context, src Source) (*Report, error) {
	c := NewChecker()
	if err := src.ScanChain(ctx, func(t *domain.Transaction) error {
		c.Check(t)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("scan chain: %w", err)
	}
	return c.Report(), nil
}
