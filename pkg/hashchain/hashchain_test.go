package hashchain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/hashchain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource []*domain.Transaction

func (s sliceSource) ScanChain(_ context.Context, fn func(t *domain.Transaction) error) error {
	for _, t := range s {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

type failingSource struct{}

func (failingSource) ScanChain(context.Context, func(*domain.Transaction) error) error {
	return errors.New("db gone")
}

func buildChain(t *testing.T, n int) sliceSource {
	t.Helper()
	receiver := uuid.New()
	base := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	chain := make(sliceSource, 0, n)
	tailSeq, tailHash := int64(0), hashchain.GenesisHash
	for i := 0; i < n; i++ {
		tx := &domain.Transaction{
			ID:                uuid.New(),
			ReceiverAccountID: &receiver,
			Amount:            decimal.NewFromInt(int64(10 * (i + 1))),
			Currency:          "USD",
			Type:              domain.TransactionTypeTopUp,
			Status:            domain.TransactionStatusPending,
			CreatedAt:         base.Add(time.Duration(i) * time.Second),
		}
		hashchain.Link(tx, tailSeq, tailHash)
		tailSeq, tailHash = tx.ChainSeq, tx.CurrentHash
		chain = append(chain, tx)
	}
	return chain
}

func TestDigest_Deterministic(t *testing.T) {
	id := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	receiver := uuid.MustParse("16fd2706-8baf-433b-82eb-8c7fada847da")
	tx := &domain.Transaction{
		ID:                id,
		ChainSeq:          1,
		ReceiverAccountID: &receiver,
		Amount:            decimal.RequireFromString("100"),
		Currency:          "USD",
		Type:              domain.TransactionTypeTopUp,
		Description:       "Card top-up ****1234",
		CreatedAt:         time.Date(2024, 1, 2, 3, 4, 5, 6000, time.FixedZone("X", 3600)),
	}

	assert.Equal(t,
		`7c9e6679-7425-40de-944b-e07fc1f90ae7|1||16fd2706-8baf-433b-82eb-8c7fada847da|100.00|USD|TOPUP|"Card top-up ****1234"|2024-01-02T02:04:05.000006Z`,
		string(hashchain.Canonical(tx)))

	first := hashchain.Digest(tx)
	same := *tx
	same.Amount = decimal.RequireFromString("100.00")
	same.CreatedAt = tx.CreatedAt.UTC()
	assert.Equal(t, first, hashchain.Digest(&same), "equal values must hash equally")
	assert.Len(t, first, 64)

	// mutable fields stay out of the digest
	same.Status = domain.TransactionStatusCompleted
	same.UpdatedAt = time.Now()
	assert.Equal(t, first, hashchain.Digest(&same))

	described := same
	described.Description = "changed"
	assert.NotEqual(t, first, hashchain.Digest(&described))

	same.PreviousHash = "abc"
	assert.NotEqual(t, first, hashchain.Digest(&same))
}

func TestVerify_IntactChain(t *testing.T) {
	chain := buildChain(t, 5)

	report, err := hashchain.Verify(context.Background(), chain)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.NoError(t, report.Err())
	assert.Equal(t, 5, report.Checked)
	assert.Equal(t, int64(5), report.HeadSeq)
	assert.Equal(t, chain[4].CurrentHash, report.HeadHash)
	assert.Equal(t, hashchain.GenesisHash, chain[0].PreviousHash)
	for i := 1; i < len(chain); i++ {
		assert.Equal(t, chain[i-1].CurrentHash, chain[i].PreviousHash)
	}
}

func TestVerify_DetectsTamperedContent(t *testing.T) {
	chain := buildChain(t, 4)
	chain[2].Amount = decimal.NewFromInt(1_000_000)

	report, err := hashchain.Verify(context.Background(), chain)
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, hashchain.ContentMismatch, v.Kind)
	assert.Equal(t, chain[2].ID, v.TransactionID)
	assert.Equal(t, int64(3), v.ChainSeq)
	assert.ErrorIs(t, report.Err(), domain.ErrIntegrityViolation)
}

func TestVerify_DetectsEveryImmutableField(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(tx *domain.Transaction)
	}{
		{"amount", func(tx *domain.Transaction) { tx.Amount = tx.Amount.Add(decimal.NewFromInt(1)) }},
		{"currency", func(tx *domain.Transaction) { tx.Currency = "EUR" }},
		{"type", func(tx *domain.Transaction) { tx.Type = domain.TransactionTypeDeposit }},
		{"description", func(tx *domain.Transaction) { tx.Description = "rewritten" }},
		{"description separator", func(tx *domain.Transaction) { tx.Description = "|" }},
		{"sender", func(tx *domain.Transaction) {
			sender := uuid.New()
			tx.SenderAccountID = &sender
		}},
		{"receiver", func(tx *domain.Transaction) {
			receiver := uuid.New()
			tx.ReceiverAccountID = &receiver
		}},
		{"receiver removed", func(tx *domain.Transaction) { tx.ReceiverAccountID = nil }},
		{"created_at", func(tx *domain.Transaction) { tx.CreatedAt = tx.CreatedAt.Add(time.Microsecond) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain := buildChain(t, 3)
			tc.tamper(chain[1])

			report, err := hashchain.Verify(context.Background(), chain)
			require.NoError(t, err)
			require.Len(t, report.Violations, 1)
			assert.Equal(t, hashchain.ContentMismatch, report.Violations[0].Kind)
			assert.Equal(t, chain[1].ID, report.Violations[0].TransactionID)
		})
	}

	t.Run("status and updated_at are mutable", func(t *testing.T) {
		chain := buildChain(t, 3)
		chain[1].Status = domain.TransactionStatusCompleted
		chain[1].UpdatedAt = time.Now()
		report, err := hashchain.Verify(context.Background(), chain)
		require.NoError(t, err)
		assert.True(t, report.OK())
	})
}

func TestVerify_DetectsBrokenLinkAndGap(t *testing.T) {
	chain := buildChain(t, 4)
	// drop a transaction from the middle
	chain = append(chain[:1], chain[2:]...)

	report, err := hashchain.Verify(context.Background(), chain)
	require.NoError(t, err)
	kinds := map[hashchain.ViolationKind]int{}
	for _, v := range report.Violations {
		kinds[v.Kind]++
		assert.Equal(t, int64(3), v.ChainSeq)
	}
	assert.Equal(t, 1, kinds[hashchain.BrokenLink])
	assert.Equal(t, 1, kinds[hashchain.SequenceGap])
	assert.Zero(t, kinds[hashchain.ContentMismatch])
}

func TestVerify_RehashedRowStillBreaksLink(t *testing.T) {
	chain := buildChain(t, 3)
	chain[1].Amount = decimal.NewFromInt(7)
	chain[1].CurrentHash = hashchain.Digest(chain[1])

	report, err := hashchain.Verify(context.Background(), chain)
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, hashchain.BrokenLink, report.Violations[0].Kind)
	assert.Equal(t, chain[2].ID, report.Violations[0].TransactionID)
}

func TestVerify_SourceError(t *testing.T) {
	_, err := hashchain.Verify(context.Background(), failingSource{})
	assert.Error(t, err)
}
