package repository

import (
	"context"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/repository/account"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns the gorm store of accounts, balances and their history.
func NewAccountRepository(db *gorm.DB) account.Repository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, a *domain.Account) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(accountToModel(a)).Error
	})
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *accountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *accountRepository) GetByContact(ctx context.Context, contact string) (*domain.Account, error) {
	var m Account
	if err := WrapError(func() error {
		return r.db.WithContext(ctx).Where("contact = ?", contact).First(&m).Error
	}); err != nil {
		return nil, err
	}
	return accountFromModel(&m), nil
}

func (r *accountRepository) get(db *gorm.DB, id uuid.UUID) (*domain.Account, error) {
	var m Account
	if err := WrapError(func() error {
		return db.Where("id = ?", id).First(&m).Error
	}); err != nil {
		return nil, err
	}
	return accountFromModel(&m), nil
}

func (r *accountRepository) Update(ctx context.Context, a *domain.Account) error {
	m := accountToModel(a)
	return WrapError(func() error {
		res := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", a.ID).Updates(map[string]any{
			"holder_name":     m.HolderName,
			"contact":         m.Contact,
			"credential_hash": m.CredentialHash,
			"status":          m.Status,
			"valid_from":      m.ValidFrom,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return WrapError(func() error {
		res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Account{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *accountRepository) CreateBalance(ctx context.Context, b *domain.Balance) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(balanceToModel(b)).Error
	})
}

func (r *accountRepository) GetBalance(ctx context.Context, accountID uuid.UUID, currency string) (*domain.Balance, error) {
	return r.getBalance(r.db.WithContext(ctx), accountID, currency)
}

func (r *accountRepository) GetBalanceForUpdate(ctx context.Context, accountID uuid.UUID, currency string) (*domain.Balance, error) {
	return r.getBalance(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), accountID, currency)
}

func (r *accountRepository) getBalance(db *gorm.DB, accountID uuid.UUID, currency string) (*domain.Balance, error) {
	var m Balance
	if err := WrapError(func() error {
		return db.Where("account_id = ? AND currency = ?", accountID, currency).First(&m).Error
	}); err != nil {
		return nil, err
	}
	return balanceFromModel(&m), nil
}

func (r *accountRepository) UpdateBalance(ctx context.Context, b *domain.Balance) error {
	return WrapError(func() error {
		res := r.db.WithContext(ctx).Model(&Balance{}).Where("id = ?", b.ID).Updates(map[string]any{
			"amount":     b.Amount,
			"valid_from": b.ValidFrom,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *accountRepository) DeleteBalance(ctx context.Context, id uuid.UUID) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Balance{}).Error
	})
}

func (r *accountRepository) ListBalances(ctx context.Context, accountID uuid.UUID) ([]*domain.Balance, error) {
	var rows []Balance
	if err := WrapError(func() error {
		return r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("currency").Find(&rows).Error
	}); err != nil {
		return nil, err
	}
	out := make([]*domain.Balance, 0, len(rows))
	for i := range rows {
		out = append(out, balanceFromModel(&rows[i]))
	}
	return out, nil
}

func (r *accountRepository) ArchiveAccount(ctx context.Context, v *domain.AccountVersion) error {
	m := &AccountHistory{
		AccountID:      v.ID,
		HolderName:     v.HolderName,
		Contact:        v.Contact,
		CredentialHash: v.CredentialHash,
		Status:         string(v.Status),
		CreatedAt:      v.CreatedAt,
		ValidFrom:      v.ValidFrom,
		ValidTo:        *v.ValidTo,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(m).Error
	})
}

func (r *accountRepository) ArchiveBalance(ctx context.Context, v *domain.BalanceVersion) error {
	m := &BalanceHistory{
		BalanceID: v.ID,
		AccountID: v.AccountID,
		Currency:  v.Currency,
		Amount:    v.Amount,
		CreatedAt: v.CreatedAt,
		ValidFrom: v.ValidFrom,
		ValidTo:   *v.ValidTo,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(m).Error
	})
}

func (r *accountRepository) AccountHistory(ctx context.Context, id uuid.UUID) ([]*domain.AccountVersion, error) {
	var rows []AccountHistory
	if err := WrapError(func() error {
		return r.db.WithContext(ctx).Where("account_id = ?", id).Order("valid_from, history_id").Find(&rows).Error
	}); err != nil {
		return nil, err
	}
	out := make([]*domain.AccountVersion, 0, len(rows))
	for i := range rows {
		out = append(out, accountVersionFromModel(&rows[i]))
	}
	return out, nil
}

func (r *accountRepository) BalanceHistory(ctx context.Context, accountID uuid.UUID, currency string) ([]*domain.BalanceVersion, error) {
	var rows []BalanceHistory
	if err := WrapError(func() error {
		return r.db.WithContext(ctx).
			Where("account_id = ? AND currency = ?", accountID, currency).
			Order("valid_from, history_id").
			Find(&rows).Error
	}); err != nil {
		return nil, err
	}
	out := make([]*domain.BalanceVersion, 0, len(rows))
	for i := range rows {
		out = append(out, balanceVersionFromModel(&rows[i]))
	}
	return out, nil
}
