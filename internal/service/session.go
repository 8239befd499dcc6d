// Package service contains application services: sessions, source credentials,
// table selection and mapping, sync and weekly KPIs.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// SessionService issues and verifies API session tokens.
type SessionService interface {
	// Issue signs an access token for the user.
	Issue(userID uuid.UUID) (model.Tokens, error)
	// Verify checks a token and returns its subject.
	Verify(token string) (uuid.UUID, error)
}

type SessionServiceImpl struct {
	signKey   []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewSessionService constructs a HS256 session service.
func NewSessionService(signKey []byte, accessTTL time.Duration) *SessionServiceImpl {
	return &SessionServiceImpl{signKey: signKey, accessTTL: accessTTL, now: time.Now}
}

// Issue creates a signed HS256 JWT for the given subject.
func (s *SessionServiceImpl) Issue(userID uuid.UUID) (model.Tokens, error) {
	if userID == uuid.Nil {
		return model.Tokens{}, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify parses an HS256 token and returns sub as UUID.
func (s *SessionServiceImpl) Verify(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return id, nil
}
