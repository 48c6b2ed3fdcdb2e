package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amirasaad/topupledger/infra/repository"
	"github.com/amirasaad/topupledger/internal/fixtures"
	"github.com/amirasaad/topupledger/pkg/auditlog"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/hashchain"
	"github.com/amirasaad/topupledger/pkg/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newLedger(t *testing.T, opts ...ledger.Option) (*ledger.Service, *gorm.DB) {
	t.Helper()
	db := fixtures.NewTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ledger.New(repository.NewUoW(db), logger, opts...), db
}

func topUpDraft(receiver uuid.UUID, amount string) domain.TransactionDraft {
	return domain.TransactionDraft{
		ReceiverAccountID: &receiver,
		Amount:            decimal.RequireFromString(amount),
		Currency:          "usd",
		Type:              domain.TransactionTypeTopUp,
		Description:       "top-up",
	}
}

func TestAppendLinksChain(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	user := uuid.New()

	var chained []*domain.Transaction
	for i := 0; i < 5; i++ {
		tx, err := svc.Append(ctx, topUpDraft(user, "10.00"), nil)
		require.NoError(t, err)
		chained = append(chained, tx)
	}

	assert.Equal(t, hashchain.GenesisHash, chained[0].PreviousHash)
	for i, tx := range chained {
		assert.Equal(t, int64(i+1), tx.ChainSeq)
		assert.Equal(t, "USD", tx.Currency)
		assert.Equal(t, domain.TransactionStatusPending, tx.Status)
		assert.Equal(t, hashchain.Digest(tx), tx.CurrentHash)
		if i > 0 {
			assert.Equal(t, chained[i-1].CurrentHash, tx.PreviousHash)
		}
	}

	report, err := hashchain.Verify(ctx, repository.NewChainSnapshot(db))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 5, report.Checked)
	assert.Equal(t, chained[4].CurrentHash, report.HeadHash)
}

func TestAppendRejectsInvalidDraftWithoutSideEffects(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	user := uuid.New()

	cases := []domain.TransactionDraft{
		topUpDraft(user, "0"),
		topUpDraft(user, "-5.00"),
		topUpDraft(user, "1.005"),
		{ReceiverAccountID: &user, Amount: decimal.NewFromInt(1), Currency: "US", Type: domain.TransactionTypeTopUp},
		{Amount: decimal.NewFromInt(1), Currency: "USD", Type: domain.TransactionTypeTopUp},
	}
	for _, d := range cases {
		_, err := svc.Append(ctx, d, nil)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}

	var n int64
	require.NoError(t, db.Model(&repository.Transaction{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&repository.AuditLog{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestConcurrentAppendsNeverFork(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, topUpDraft(uuid.New(), "1.00"), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var rows []repository.Transaction
	require.NoError(t, db.Order("chain_seq").Find(&rows).Error)
	require.Len(t, rows, writers)
	seen := map[string]bool{}
	for i, r := range rows {
		assert.Equal(t, int64(i+1), r.ChainSeq)
		assert.False(t, seen[r.PreviousHash], "previous_hash %q used twice", r.PreviousHash)
		seen[r.PreviousHash] = true
	}

	report, err := hashchain.Verify(ctx, repository.NewChainSnapshot(db))
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Violations)
}

func TestAppendWithinFailureRollsBackTheLink(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	user := uuid.New()
	boom := errors.New("saga insert failed")

	_, err := svc.Append(ctx, topUpDraft(user, "5.00"), func(context.Context, *ledger.Writer, *domain.Transaction) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	tx, err := svc.Append(ctx, topUpDraft(user, "5.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.ChainSeq)
	assert.Equal(t, hashchain.GenesisHash, tx.PreviousHash)
}

func TestAppendSurfacesLedgerWriteAfterRepeatedConflicts(t *testing.T) {
	svc, db := newLedger(t, ledger.WithMaxLinkAttempts(2))
	ctx := context.Background()
	user := uuid.New()

	// a row linked behind the genesis without the head row moving
	stray := &domain.Transaction{
		ID:                uuid.New(),
		ReceiverAccountID: &user,
		Amount:            decimal.NewFromInt(1),
		Currency:          "USD",
		Type:              domain.TransactionTypeTopUp,
		Status:            domain.TransactionStatusPending,
		CreatedAt:         hashchain.NormalizeTime(time.Now()),
		UpdatedAt:         hashchain.NormalizeTime(time.Now()),
	}
	hashchain.Link(stray, 0, hashchain.GenesisHash)
	uow := repository.NewUoW(db)
	txs, err := uow.TransactionRepository()
	require.NoError(t, err)
	require.NoError(t, txs.Create(ctx, stray))

	_, err = svc.Append(ctx, topUpDraft(user, "1.00"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerWrite)
	assert.ErrorIs(t, err, domain.ErrChainLinkConflict)
}

func TestSetTransactionStatusKeepsHashValid(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	tx, err := svc.Append(ctx, topUpDraft(uuid.New(), "42.00"), nil)
	require.NoError(t, err)

	err = svc.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		updated, err := w.SetTransactionStatus(ctx, tx.ID, domain.TransactionStatusCompleted)
		if err != nil {
			return err
		}
		assert.Equal(t, domain.TransactionStatusCompleted, updated.Status)
		return nil
	})
	require.NoError(t, err)

	err = svc.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		_, err := w.SetTransactionStatus(ctx, tx.ID, domain.TransactionStatusFailed)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	report, err := hashchain.Verify(ctx, repository.NewChainSnapshot(db))
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestTamperedRowIsDetected(t *testing.T) {
	tests := []struct {
		name  string
		query string
		arg   func(tx *domain.Transaction) any
	}{
		{"amount", "UPDATE transactions SET amount = ? WHERE id = ?",
			func(*domain.Transaction) any { return "1000.00" }},
		{"description", "UPDATE transactions SET description = ? WHERE id = ?",
			func(*domain.Transaction) any { return "rewritten after the fact" }},
		{"sender", "UPDATE transactions SET sender_account_id = ? WHERE id = ?",
			func(*domain.Transaction) any { return uuid.New() }},
		{"receiver", "UPDATE transactions SET receiver_account_id = ? WHERE id = ?",
			func(*domain.Transaction) any { return uuid.New() }},
		{"created_at", "UPDATE transactions SET created_at = ? WHERE id = ?",
			func(tx *domain.Transaction) any { return tx.CreatedAt.Add(-time.Hour) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := newLedger(t)
			ctx := context.Background()
			user := uuid.New()
			var second *domain.Transaction
			for i := 0; i < 3; i++ {
				tx, err := svc.Append(ctx, topUpDraft(user, "10.00"), nil)
				require.NoError(t, err)
				if i == 1 {
					second = tx
				}
			}

			require.NoError(t, db.Exec(tc.query, tc.arg(second), second.ID).Error)

			report, err := hashchain.Verify(ctx, repository.NewChainSnapshot(db))
			require.NoError(t, err)
			require.False(t, report.OK())
			require.Len(t, report.Violations, 1)
			assert.Equal(t, hashchain.ContentMismatch, report.Violations[0].Kind)
			assert.Equal(t, int64(2), report.Violations[0].ChainSeq)
			assert.Equal(t, second.ID, report.Violations[0].TransactionID)
			assert.ErrorIs(t, report.Err(), domain.ErrIntegrityViolation)
		})
	}
}

func TestEveryMutationIsAuditedOnce(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := auditlog.WithActor(context.Background(), "operator")

	acct, err := svc.CreateAccount(ctx, "Ada", "ada@example.com", "pw")
	require.NoError(t, err)
	name := "Ada L."
	_, err = svc.UpdateAccount(ctx, acct.ID, domain.AccountChanges{HolderName: &name})
	require.NoError(t, err)

	var tx *domain.Transaction
	tx, err = svc.Append(ctx, topUpDraft(acct.ID, "50.00"), func(ctx context.Context, w *ledger.Writer, t *domain.Transaction) error {
		_, err := w.CreditBalance(ctx, acct.ID, "USD", t.Amount)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, svc.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		_, err := w.DebitBalance(ctx, acct.ID, "USD", decimal.RequireFromString("50.00"))
		return err
	}))
	require.NoError(t, svc.DeleteAccount(ctx, acct.ID))

	accountEntries, err := svc.AuditTrail(ctx, domain.AuditFilter{TableName: domain.TableAccounts, RecordID: acct.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, []domain.AuditAction{domain.AuditDelete, domain.AuditUpdate, domain.AuditInsert}, actions(accountEntries))
	for _, e := range accountEntries {
		assert.Equal(t, "operator", e.Actor)
	}
	insert := accountEntries[2]
	assert.Nil(t, insert.Before)
	assert.NotContains(t, string(insert.After), "pw")
	del := accountEntries[0]
	assert.NotNil(t, del.Before)
	assert.Nil(t, del.After)

	txEntries, err := svc.AuditTrail(ctx, domain.AuditFilter{TableName: domain.TableTransactions, RecordID: tx.ID.String()})
	require.NoError(t, err)
	assert.Len(t, txEntries, 1)

	balanceEntries, err := svc.AuditTrail(ctx, domain.AuditFilter{TableName: domain.TableBalances})
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.AuditAction{domain.AuditInsert, domain.AuditUpdate, domain.AuditDelete}, actions(balanceEntries))
}

func TestAuditFailureNeverBlocksTheMutation(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	require.NoError(t, db.Migrator().DropTable(&repository.AuditLog{}))

	acct, err := svc.CreateAccount(ctx, "Grace", "grace@example.com", "")
	require.NoError(t, err)
	tx, err := svc.Append(ctx, topUpDraft(acct.ID, "12.34"), func(ctx context.Context, w *ledger.Writer, t *domain.Transaction) error {
		_, err := w.CreditBalance(ctx, acct.ID, t.Currency, t.Amount)
		return err
	})
	require.NoError(t, err)

	got, err := svc.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.CurrentHash, got.CurrentHash)
	balances, err := svc.Balances(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "12.34", balances[0].Amount.StringFixed(2))
}

func TestVersionTimelineAndAsOf(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc, _ := newLedger(t, ledger.WithClock(clock.Now))
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Alan", "alan@example.com", "")
	require.NoError(t, err)
	created := acct.CreatedAt

	renamed := "Alan T."
	v2, err := svc.UpdateAccount(ctx, acct.ID, domain.AccountChanges{HolderName: &renamed})
	require.NoError(t, err)
	suspended := domain.AccountStatusSuspended
	v3, err := svc.UpdateAccount(ctx, acct.ID, domain.AccountChanges{Status: &suspended})
	require.NoError(t, err)

	violations, err := svc.CheckAccountIntervals(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, violations)

	timeline, err := svc.AccountTimeline(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	assert.True(t, timeline[0].ValidTo.Equal(v2.ValidFrom))
	assert.True(t, timeline[1].ValidTo.Equal(v3.ValidFrom))
	assert.Nil(t, timeline[2].ValidTo)

	at, err := svc.AccountAsOf(ctx, acct.ID, created)
	require.NoError(t, err)
	assert.Equal(t, "Alan", at.HolderName)
	at, err = svc.AccountAsOf(ctx, acct.ID, v3.ValidFrom.Add(-time.Microsecond))
	require.NoError(t, err)
	assert.Equal(t, "Alan T.", at.HolderName)
	assert.Equal(t, domain.AccountStatusActive, at.Status)
	at, err = svc.AccountAsOf(ctx, acct.ID, v3.ValidFrom.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusSuspended, at.Status)
	_, err = svc.AccountAsOf(ctx, acct.ID, created.Add(-time.Second))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.DeleteAccount(ctx, acct.ID))
	violations, err = svc.CheckAccountIntervals(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, violations)
	_, err = svc.AccountAsOf(ctx, acct.ID, clock.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	at, err = svc.AccountAsOf(ctx, acct.ID, v3.ValidFrom)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusSuspended, at.Status)
}

func TestBalanceAsOfAndNeverNegative(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc, _ := newLedger(t, ledger.WithClock(clock.Now))
	ctx := context.Background()
	acct := uuid.New()

	credit := func(amount string) *domain.Balance {
		var b *domain.Balance
		require.NoError(t, svc.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
			var err error
			b, err = w.CreditBalance(ctx, acct, "EUR", decimal.RequireFromString(amount))
			return err
		}))
		return b
	}
	first := credit("10.00")
	second := credit("5.50")

	err := svc.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		_, err := w.DebitBalance(ctx, acct, "EUR", decimal.RequireFromString("15.51"))
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	b, err := svc.BalanceAsOf(ctx, acct, "eur", first.ValidFrom)
	require.NoError(t, err)
	assert.Equal(t, "10.00", b.Amount.StringFixed(2))
	b, err = svc.BalanceAsOf(ctx, acct, "EUR", second.ValidFrom)
	require.NoError(t, err)
	assert.Equal(t, "15.50", b.Amount.StringFixed(2))

	violations, err := svc.CheckBalanceIntervals(ctx, acct, "EUR")
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestDeleteAccountWithFundsIsRejected(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	acct, err := svc.CreateAccount(ctx, "Linus", "linus@example.com", "")
	require.NoError(t, err)
	require.NoError(t, svc.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		_, err := w.CreditBalance(ctx, acct.ID, "USD", decimal.NewFromInt(1))
		return err
	}))

	assert.ErrorIs(t, svc.DeleteAccount(ctx, acct.ID), domain.ErrValidation)
	_, err = svc.Account(ctx, acct.ID)
	assert.NoError(t, err)
}

func TestCheckIntervals(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1, t2 := t0.Add(time.Hour), t0.Add(2*time.Hour)

	assert.Empty(t, ledger.CheckIntervals(t0, []ledger.Interval{{From: t0, To: &t1}, {From: t1}}, true))
	assert.Empty(t, ledger.CheckIntervals(t0, []ledger.Interval{{From: t0, To: &t1}, {From: t1, To: &t2}}, false))
	assert.Len(t, ledger.CheckIntervals(t0, []ledger.Interval{{From: t1}}, true), 1)
	assert.Len(t, ledger.CheckIntervals(t0, []ledger.Interval{{From: t0, To: &t1}, {From: t2}}, true), 1)
	assert.Len(t, ledger.CheckIntervals(t0, []ledger.Interval{{From: t0}, {From: t1}}, true), 1)
	assert.Len(t, ledger.CheckIntervals(t0, []ledger.Interval{{From: t0, To: &t1}}, true), 1)
	assert.Len(t, ledger.CheckIntervals(t0, nil, true), 1)
}

func actions(entries []*domain.AuditEntry) []domain.AuditAction {
	out := make([]domain.AuditAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
