package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"usersvc/internal/auth"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/metrics"
	"usersvc/internal/model"
	"usersvc/internal/repository"
)

// AccessGuard resolves bearer tokens to users and enforces the active-user and
// superuser gates. It has no side effects beyond the user lookup.
type AccessGuard struct {
	users   repository.UserRepository
	tokens  *auth.TokenService
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewAccessGuard creates an access guard.
func NewAccessGuard(users repository.UserRepository, tokens *auth.TokenService, log logrus.FieldLogger, m *metrics.Metrics) *AccessGuard {
	return &AccessGuard{
		users:   users,
		tokens:  tokens,
		log:     log,
		metrics: m,
	}
}

// ActiveUser returns the active user the token was issued to. Any token or
// account problem yields ErrUnauthenticated; store failures pass through.
func (g *AccessGuard) ActiveUser(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, g.RejectMissingToken()
	}

	subject, err := g.tokens.Verify(token)
	if err != nil {
		return nil, g.reject(err.Error(), apperrors.ErrUnauthenticated)
	}

	user, err := g.users.FindByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, g.reject("unknown subject", apperrors.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("resolve token subject: %w", err)
	}
	if !user.IsActive {
		return nil, g.reject("inactive user", apperrors.ErrUnauthenticated)
	}
	return user, nil
}

// RejectMissingToken records a request that carried no bearer token.
func (g *AccessGuard) RejectMissingToken() error {
	return g.reject("missing token", apperrors.ErrUnauthenticated)
}

// Superuser runs the active-user gate and then requires the superuser flag.
func (g *AccessGuard) Superuser(ctx context.Context, token string) (*model.User, error) {
	user, err := g.ActiveUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := g.RequireSuperuser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// RequireSuperuser checks the role of an already resolved user.
func (g *AccessGuard) RequireSuperuser(user *model.User) error {
	if user == nil {
		return g.reject("no user", apperrors.ErrUnauthenticated)
	}
	if !user.IsSuperuser {
		return g.reject("not a superuser", apperrors.ErrForbidden)
	}
	return nil
}

func (g *AccessGuard) reject(reason string, err error) error {
	outcome := metrics.OutcomeUnauthenticated
	if errors.Is(err, apperrors.ErrForbidden) {
		outcome = metrics.OutcomeForbidden
	}
	g.metrics.GuardRejected(outcome)
	g.log.WithField("reason", reason).Debug("access denied")
	return err
}
