package account

import "github.com/amirasaad/topupledger/pkg/domain"

// CreateAccountRequest is the body of POST /accounts.
type CreateAccountRequest struct {
	HolderName string `json:"holder_name" validate:"required,max=255"`
	Contact    string `json:"contact" validate:"required,max=255"`
	Credential string `json:"credential,omitempty" validate:"omitempty,min=8,max=72"`
}

// UpdateAccountRequest is a partial update; absent fields are kept.
type UpdateAccountRequest struct {
	HolderName *string `json:"holder_name,omitempty" validate:"omitempty,max=255"`
	Contact    *string `json:"contact,omitempty" validate:"omitempty,max=255"`
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive suspended"`
	Credential *string `json:"credential,omitempty" validate:"omitempty,min=8,max=72"`
}

func (r UpdateAccountRequest) changes() domain.AccountChanges {
	ch := domain.AccountChanges{
		HolderName: r.HolderName,
		Contact:    r.Contact,
		Credential: r.Credential,
	}
	if r.Status != nil {
		st := domain.AccountStatus(*r.Status)
		ch.Status = &st
	}
	return ch
}

// AccountHistoryResponse is either the full timeline or the version valid
// at the requested instant.
type AccountHistoryResponse struct {
	AccountID string                  `json:"account_id"`
	AsOf      string                  `json:"as_of,omitempty"`
	Account   *domain.Account         `json:"account,omitempty"`
	Versions  []domain.AccountVersion `json:"versions,omitempty"`
}
