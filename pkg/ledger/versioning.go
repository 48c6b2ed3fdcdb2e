package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
)

// Interval is the validity window of one version. A nil To marks the live row.
type Interval struct {
	From time.Time  `json:"valid_from"`
	To   *time.Time `json:"valid_to"`
}

// IntervalViolation describes a break in a version timeline.
type IntervalViolation struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// CheckIntervals verifies that versions, ordered by From, tile the lifetime of
// an entity created at created: the first starts at creation, each ends where
// the next starts, only the last may be open, and it is open exactly when the
// entity is live.
func CheckIntervals(created time.Time, versions []Interval, live bool) []IntervalViolation {
	var out []IntervalViolation
	if len(versions) == 0 {
		return append(out, IntervalViolation{Index: -1, Reason: "no versions"})
	}
	if !versions[0].From.Equal(created) {
		out = append(out, IntervalViolation{Index: 0, Reason: fmt.Sprintf("first version starts at %s, entity created at %s", versions[0].From, created)})
	}
	for i, v := range versions {
		last := i == len(versions)-1
		if v.To == nil {
			if !last {
				out = append(out, IntervalViolation{Index: i, Reason: "open interval before the last version"})
			} else if !live {
				out = append(out, IntervalViolation{Index: i, Reason: "deleted entity has an open interval"})
			}
			continue
		}
		if v.To.Before(v.From) {
			out = append(out, IntervalViolation{Index: i, Reason: "interval ends before it starts"})
		}
		if last {
			if live {
				out = append(out, IntervalViolation{Index: i, Reason: "live entity has no open interval"})
			}
			continue
		}
		if next := versions[i+1].From; !v.To.Equal(next) {
			out = append(out, IntervalViolation{Index: i, Reason: fmt.Sprintf("gap or overlap: ends %s, next starts %s", v.To, next)})
		}
	}
	return out
}

// AccountTimeline returns every version of an account, archived ones first,
// followed by the live row when the account still exists.
func (s *Service) AccountTimeline(ctx context.Context, id uuid.UUID) ([]domain.AccountVersion, error) {
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	history, err := accounts.AccountHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AccountVersion, 0, len(history)+1)
	for _, v := range history {
		out = append(out, *v)
	}
	current, err := accounts.Get(ctx, id)
	switch {
	case err == nil:
		out = append(out, domain.AccountVersion{Account: *current})
	case !isNotFound(err):
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

// BalanceTimeline returns every version of one (account, currency) balance.
func (s *Service) BalanceTimeline(ctx context.Context, accountID uuid.UUID, currency string) ([]domain.BalanceVersion, error) {
	currency, err := domain.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	history, err := accounts.BalanceHistory(ctx, accountID, currency)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BalanceVersion, 0, len(history)+1)
	for _, v := range history {
		out = append(out, *v)
	}
	current, err := accounts.GetBalance(ctx, accountID, currency)
	switch {
	case err == nil:
		out = append(out, domain.BalanceVersion{Balance: *current})
	case !isNotFound(err):
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

// AccountAsOf returns the account as it was at instant at.
func (s *Service) AccountAsOf(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Account, error) {
	timeline, err := s.AccountTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range timeline {
		v := &timeline[i]
		if covers(v.ValidFrom, v.ValidTo, at) {
			a := v.Account
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: account %s did not exist at %s", domain.ErrNotFound, id, at.UTC().Format(time.RFC3339Nano))
}

// BalanceAsOf returns the balance as it was at instant at.
func (s *Service) BalanceAsOf(ctx context.Context, accountID uuid.UUID, currency string, at time.Time) (*domain.Balance, error) {
	timeline, err := s.BalanceTimeline(ctx, accountID, currency)
	if err != nil {
		return nil, err
	}
	for i := range timeline {
		v := &timeline[i]
		if covers(v.ValidFrom, v.ValidTo, at) {
			b := v.Balance
			return &b, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s balance at %s", domain.ErrNotFound, currency, at.UTC().Format(time.RFC3339Nano))
}

// CheckAccountIntervals checks the version timeline of one account.
func (s *Service) CheckAccountIntervals(ctx context.Context, id uuid.UUID) ([]IntervalViolation, error) {
	timeline, err := s.AccountTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	intervals := make([]Interval, len(timeline))
	for i, v := range timeline {
		intervals[i] = Interval{From: v.ValidFrom, To: v.ValidTo}
	}
	live := timeline[len(timeline)-1].ValidTo == nil
	return CheckIntervals(timeline[0].CreatedAt, intervals, live), nil
}

// CheckBalanceIntervals checks the version timeline of one balance.
func (s *Service) CheckBalanceIntervals(ctx context.Context, accountID uuid.UUID, currency string) ([]IntervalViolation, error) {
	timeline, err := s.BalanceTimeline(ctx, accountID, currency)
	if err != nil {
		return nil, err
	}
	intervals := make([]Interval, len(timeline))
	for i, v := range timeline {
		intervals[i] = Interval{From: v.ValidFrom, To: v.ValidTo}
	}
	live := timeline[len(timeline)-1].ValidTo == nil
	return CheckIntervals(timeline[0].CreatedAt, intervals, live), nil
}

// covers reports whether at falls in [from, to).
func covers(from time.Time, to *time.Time, at time.Time) bool {
	if at.Before(from) {
		return false
	}
	return to == nil || at.Before(*to)
}
