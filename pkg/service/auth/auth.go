// Package auth issues and reads the bearer tokens that carry a caller's
// identity and roles. What a caller may do is decided by pkg/authz.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/golang-jwt/jwt/v5"
)

// dummyHash is compared against when the contact is unknown so that both
// failure paths cost one bcrypt comparison.
const dummyHash = "$2a$10$.IIxpSc3OElWXLV2Wj517eUGmZ64IQgBNQ4OcFbanW85CTrgrIDQy"

// AccountFinder looks up account holders by their contact.
type AccountFinder interface {
	AccountByContact(ctx context.Context, contact string) (*domain.Account, error)
}

type Service struct {
	accounts AccountFinder
	cfg      *config.Jwt
	logger   *slog.Logger
	now      func() time.Time
}

func NewWithJWT(
	accounts AccountFinder,
	cfg *config.Jwt,
	logger *slog.Logger,
) *Service {
	return &Service{accounts: accounts, cfg: cfg, logger: logger, now: time.Now}
}

// Login checks an account holder's credential. Unknown contacts, wrong
// credentials and inactive accounts all fail with ErrUnauthorized.
func (s *Service) Login(
	ctx context.Context,
	contact, credential string,
) (*domain.Account, error) {
	log := s.logger.With("context", "Login")
	log.Debug("Login called", "contact", contact)
	a, err := s.accounts.AccountByContact(ctx, contact)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error("Login failed", "error", err)
			return nil, err
		}
		_ = (&domain.Account{CredentialHash: dummyHash}).CheckCredential(credential)
		log.Warn("Login failed", "error", domain.ErrUnauthorized)
		return nil, domain.ErrUnauthorized
	}
	if !a.CheckCredential(credential) || a.Status != domain.AccountStatusActive {
		log.Warn("Login failed", "accountID", a.ID, "error", domain.ErrUnauthorized)
		return nil, domain.ErrUnauthorized
	}
	log.Info("Login successful", "accountID", a.ID)
	return a, nil
}

// GenerateToken signs an HS256 token for p.
func (s *Service) GenerateToken(
	ctx context.Context,
	p authz.Principal,
) (string, error) {
	log := s.logger.With("subject", p.Subject)
	if s.cfg == nil || s.cfg.Secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	roles := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, string(r))
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   p.Subject,
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(s.cfg.Expiry).Unix(),
	})
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		log.Error("GenerateToken failed", "error", err)
		return "", err
	}
	log.Debug("GenerateToken successful")
	return signed, nil
}

// PrincipalFromToken reads the subject and roles of a verified token.
func PrincipalFromToken(token *jwt.Token) (authz.Principal, error) {
	if token == nil || !token.Valid {
		return authz.Principal{}, domain.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return authz.Principal{}, domain.ErrUnauthorized
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return authz.Principal{}, fmt.Errorf("%w: missing subject", domain.ErrUnauthorized)
	}
	var raw []string
	if list, ok := claims["roles"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	return authz.Principal{Subject: sub, Roles: authz.ParseRoles(raw)}, nil
}
