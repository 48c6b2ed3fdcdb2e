package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccountStatus is the lifecycle status of an account holder.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusInactive  AccountStatus = "inactive"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusSuspended:
		return true
	}
	return false
}

// Account is a system-versioned account holder. ValidFrom is the start of
// the interval the current row describes.
type Account struct {
	ID             uuid.UUID     `json:"id"`
	HolderName     string        `json:"holder_name"`
	Contact        string        `json:"contact"`
	CredentialHash string        `json:"-"`
	Status         AccountStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	ValidFrom      time.Time     `json:"valid_from"`
}

// NewAccount builds an active account and hashes its credential with bcrypt.
func NewAccount(holder, contact, credential string) (*Account, error) {
	holder = strings.TrimSpace(holder)
	contact = strings.TrimSpace(contact)
	if holder == "" {
		return nil, fmt.Errorf("%w: holder name is required", ErrValidation)
	}
	if contact == "" {
		return nil, fmt.Errorf("%w: contact is required", ErrValidation)
	}
	a := &Account{
		ID:         uuid.New(),
		HolderName: holder,
		Contact:    contact,
		Status:     AccountStatusActive,
	}
	if credential != "" {
		if err := a.SetCredential(credential); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// SetCredential replaces the stored credential hash.
func (a *Account) SetCredential(credential string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	a.CredentialHash = string(hash)
	return nil
}

// CheckCredential compares credential against the stored hash.
func (a *Account) CheckCredential(credential string) bool {
	if a.CredentialHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.CredentialHash), []byte(credential)) == nil
}

// AccountChanges is a partial update. Nil fields are left untouched.
type AccountChanges struct {
	HolderName *string
	Contact    *string
	Status     *AccountStatus
	Credential *string
}

// Apply mutates a in place.
func (c AccountChanges) Apply(a *Account) error {
	if c.HolderName != nil {
		if strings.TrimSpace(*c.HolderName) == "" {
			return fmt.Errorf("%w: holder name cannot be empty", ErrValidation)
		}
		a.HolderName = strings.TrimSpace(*c.HolderName)
	}
	if c.Contact != nil {
		if strings.TrimSpace(*c.Contact) == "" {
			return fmt.Errorf("%w: contact cannot be empty", ErrValidation)
		}
		a.Contact = strings.TrimSpace(*c.Contact)
	}
	if c.Status != nil {
		if !c.Status.Valid() {
			return fmt.Errorf("%w: unknown account status %q", ErrValidation, *c.Status)
		}
		a.Status = *c.Status
	}
	if c.Credential != nil {
		if err := a.SetCredential(*c.Credential); err != nil {
			return err
		}
	}
	return nil
}

// AccountVersion is one row of an account timeline. ValidTo is nil for the
// live row.
type AccountVersion struct {
	Account
	ValidTo *time.Time `json:"valid_to,omitempty"`
}
