package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// NormalizeCurrency upper-cases code and checks it is a three letter ISO code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currencyPattern.MatchString(code) {
		return "", fmt.Errorf("%w: invalid currency code %q", ErrValidation, code)
	}
	return code, nil
}

// Balance is the system-versioned amount an account holds in one currency.
type Balance struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	ValidFrom time.Time       `json:"valid_from"`
}

// BalanceVersion is one row of a balance timeline.
type BalanceVersion struct {
	Balance
	ValidTo *time.Time `json:"valid_to,omitempty"`
}
