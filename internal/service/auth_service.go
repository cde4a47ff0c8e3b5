package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"usersvc/internal/auth"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/metrics"
	"usersvc/internal/model"
	"usersvc/internal/repository"
)

// RegisterInput carries a registration request.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	FullName *string
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"-"`
}

// AuthService handles registration and login.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (*TokenResponse, error)
}

type authService struct {
	users   repository.UserRepository
	hasher  auth.Hasher
	tokens  *auth.TokenService
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	dummyOnce   sync.Once
	dummyDigest string
}

// NewAuthService creates a new authentication service.
func NewAuthService(users repository.UserRepository, hasher auth.Hasher, tokens *auth.TokenService, log logrus.FieldLogger, m *metrics.Metrics) AuthService {
	return &authService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		log:     log,
		metrics: m,
	}
}

// Register creates an active, non-superuser account.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	user, err := s.register(ctx, in)
	switch {
	case err == nil:
		s.metrics.Registration(metrics.OutcomeSuccess)
		s.log.WithField("user_id", user.ID).Info("user registered")
	case errors.Is(err, apperrors.ErrDuplicateUser):
		s.metrics.Registration(metrics.OutcomeDuplicate)
		s.log.WithField("username", in.Username).Info("registration rejected: already registered")
	default:
		s.metrics.Registration(metrics.OutcomeError)
	}
	return user, err
}

func (s *authService) register(ctx context.Context, in RegisterInput) (*model.User, error) {
	// Fast path only; the unique indexes decide races.
	if err := s.ensureAbsent(ctx, s.users.FindByUsername, in.Username); err != nil {
		return nil, err
	}
	if err := s.ensureAbsent(ctx, s.users.FindByEmail, in.Email); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:          in.Email,
		Username:       in.Username,
		HashedPassword: digest,
		FullName:       in.FullName,
		IsActive:       true,
		IsSuperuser:    false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateUser) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *authService) ensureAbsent(ctx context.Context, find func(context.Context, string) (*model.User, error), value string) error {
	_, err := find(ctx, value)
	switch {
	case err == nil:
		return apperrors.ErrDuplicateUser
	case errors.Is(err, apperrors.ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("check user existence: %w", err)
	}
}

// Login verifies credentials and issues an access token. Unknown usernames and
// wrong passwords produce the same error and cost the same bcrypt work.
func (s *authService) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	resp, err := s.login(ctx, username, password)
	entry := s.log.WithField("username", username)
	switch {
	case err == nil:
		s.metrics.Login(metrics.OutcomeSuccess)
		entry.Info("login succeeded")
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		s.metrics.Login(metrics.OutcomeInvalidCredentials)
		entry.Info("login failed: invalid credentials")
	case errors.Is(err, apperrors.ErrInactiveAccount):
		s.metrics.Login(metrics.OutcomeInactive)
		entry.Info("login failed: inactive account")
	default:
		s.metrics.Login(metrics.OutcomeError)
	}
	return resp, err
}

func (s *authService) login(ctx context.Context, username, password string) (*TokenResponse, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			s.hasher.Verify(password, s.dummy())
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.ErrInactiveAccount
	}

	token, expiresAt, err := s.tokens.Issue(user.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   auth.TokenType,
		ExpiresAt:   expiresAt,
	}, nil
}

// dummy returns a digest that no submitted password is expected to match.
// It is hashed on first use with the configured cost.
func (s *authService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.Hash("timing-equalizer-not-a-password")
	})
	return s.dummyDigest
}
