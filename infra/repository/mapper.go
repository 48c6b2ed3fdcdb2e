package repository

import (
	"github.com/amirasaad/topupledger/pkg/domain"
)

func accountToModel(a *domain.Account) *Account {
	return &Account{
		ID:             a.ID,
		HolderName:     a.HolderName,
		Contact:        a.Contact,
		CredentialHash: a.CredentialHash,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
		ValidFrom:      a.ValidFrom,
	}
}

func accountFromModel(m *Account) *domain.Account {
	return &domain.Account{
		ID:             m.ID,
		HolderName:     m.HolderName,
		Contact:        m.Contact,
		CredentialHash: m.CredentialHash,
		Status:         domain.AccountStatus(m.Status),
		CreatedAt:      m.CreatedAt.UTC(),
		ValidFrom:      m.ValidFrom.UTC(),
	}
}

func accountVersionFromModel(m *AccountHistory) *domain.AccountVersion {
	validTo := m.ValidTo.UTC()
	return &domain.AccountVersion{
		Account: domain.Account{
			ID:             m.AccountID,
			HolderName:     m.HolderName,
			Contact:        m.Contact,
			CredentialHash: m.CredentialHash,
			Status:         domain.AccountStatus(m.Status),
			CreatedAt:      m.CreatedAt.UTC(),
			ValidFrom:      m.ValidFrom.UTC(),
		},
		ValidTo: &validTo,
	}
}

func balanceToModel(b *domain.Balance) *Balance {
	return &Balance{
		ID:        b.ID,
		AccountID: b.AccountID,
		Currency:  b.Currency,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt,
		ValidFrom: b.ValidFrom,
	}
}

func balanceFromModel(m *Balance) *domain.Balance {
	return &domain.Balance{
		ID:        m.ID,
		AccountID: m.AccountID,
		Currency:  m.Currency,
		Amount:    m.Amount,
		CreatedAt: m.CreatedAt.UTC(),
		ValidFrom: m.ValidFrom.UTC(),
	}
}

func balanceVersionFromModel(m *BalanceHistory) *domain.BalanceVersion {
	validTo := m.ValidTo.UTC()
	return &domain.BalanceVersion{
		Balance: domain.Balance{
			ID:        m.BalanceID,
			AccountID: m.AccountID,
			Currency:  m.Currency,
			Amount:    m.Amount,
			CreatedAt: m.CreatedAt.UTC(),
			ValidFrom: m.ValidFrom.UTC(),
		},
		ValidTo: &validTo,
	}
}

func transactionToModel(t *domain.Transaction) *Transaction {
	return &Transaction{
		ID:                t.ID,
		ChainSeq:          t.ChainSeq,
		SenderAccountID:   t.SenderAccountID,
		ReceiverAccountID: t.ReceiverAccountID,
		Amount:            t.Amount,
		Currency:          t.Currency,
		TransactionType:   string(t.Type),
		Status:            string(t.Status),
		Description:       t.Description,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		PreviousHash:      t.PreviousHash,
		CurrentHash:       t.CurrentHash,
	}
}

func transactionFromModel(m *Transaction) *domain.Transaction {
	return &domain.Transaction{
		ID:                m.ID,
		ChainSeq:          m.ChainSeq,
		SenderAccountID:   m.SenderAccountID,
		ReceiverAccountID: m.ReceiverAccountID,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Type:              domain.TransactionType(m.TransactionType),
		Status:            domain.TransactionStatus(m.Status),
		Description:       m.Description,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
		PreviousHash:      m.PreviousHash,
		CurrentHash:       m.CurrentHash,
	}
}

func sagaToModel(s *domain.TopUpSaga) *TopUpSaga {
	return &TopUpSaga{
		ID:               s.ID,
		CorrelationKey:   s.CorrelationKey,
		AccountID:        s.AccountID,
		Amount:           s.Amount,
		Currency:         s.Currency,
		CardLast4:        s.CardLast4,
		State:            string(s.State),
		TransactionID:    s.TransactionID,
		OnChainRequestID: nullable(s.OnChainRequestID),
		OnChainTxRef:     s.OnChainTxRef,
		OnChainOutcome:   string(s.OnChainOutcome),
		GatewayTxnID:     nullable(s.GatewayTxnID),
		GatewayStatus:    s.GatewayStatus,
		PaymentOutcome:   string(s.PaymentOutcome),
		LastError:        s.LastError,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func sagaFromModel(m *TopUpSaga) *domain.TopUpSaga {
	return &domain.TopUpSaga{
		ID:               m.ID,
		CorrelationKey:   m.CorrelationKey,
		AccountID:        m.AccountID,
		Amount:           m.Amount,
		Currency:         m.Currency,
		CardLast4:        m.CardLast4,
		State:            domain.SagaState(m.State),
		TransactionID:    m.TransactionID,
		OnChainRequestID: deref(m.OnChainRequestID),
		OnChainTxRef:     m.OnChainTxRef,
		OnChainOutcome:   domain.Outcome(m.OnChainOutcome),
		GatewayTxnID:     deref(m.GatewayTxnID),
		GatewayStatus:    m.GatewayStatus,
		PaymentOutcome:   domain.Outcome(m.PaymentOutcome),
		LastError:        m.LastError,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
