package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"usersvc/internal/auth"
	"usersvc/internal/cache"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/model"
	"usersvc/internal/repository"
)

const defaultUserCacheTTL = 5 * time.Minute

// ProfileUpdate carries the fields a user may change on their own record.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Email    *string
	FullName *string
	Password *string
}

// UserService exposes user profile and administration operations.
type UserService interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
	ListUsers(ctx context.Context, skip, limit int) ([]model.User, error)
	UpdateProfile(ctx context.Context, user *model.User, in ProfileUpdate) (*model.User, error)
	EnsureSuperuser(ctx context.Context, in RegisterInput) (user *model.User, created bool, err error)
}

type userService struct {
	repo   repository.UserRepository
	hasher auth.Hasher
	cache  *cache.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewUserService builds a UserService with repository and cache. The cache may
// be nil.
func NewUserService(repo repository.UserRepository, hasher auth.Hasher, cache *cache.Client, ttl time.Duration, log logrus.FieldLogger) UserService {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	return &userService{repo: repo, hasher: hasher, cache: cache, ttl: ttl, log: log}
}

func (s *userService) cacheKey(id uint) string {
	return fmt.Sprintf("user:%d", id)
}

// GetUser loads a user by id, served from cache when possible.
func (s *userService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var cached model.User
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, s.cacheKey(id), user, s.ttl)
	return user, nil
}

// ListUsers returns a page of users in insertion order.
func (s *userService) ListUsers(ctx context.Context, skip, limit int) ([]model.User, error) {
	return s.repo.List(ctx, skip, limit)
}

// UpdateProfile applies a partial update to user. A new password is hashed
// before it reaches the store.
func (s *userService) UpdateProfile(ctx context.Context, user *model.User, in ProfileUpdate) (*model.User, error) {
	patch := model.UserPatch{
		Email:    in.Email,
		FullName: in.FullName,
	}
	if in.Password != nil {
		digest, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		patch.HashedPassword = &digest
	}

	updated, err := s.repo.Update(ctx, user.ID, patch)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Delete(ctx, s.cacheKey(user.ID))

	s.log.WithFields(logrus.Fields{
		"user_id":          user.ID,
		"password_changed": in.Password != nil,
	}).Info("profile updated")
	return updated, nil
}

// EnsureSuperuser creates the account as an active superuser, or promotes and
// reactivates an existing account with that username.
func (s *userService) EnsureSuperuser(ctx context.Context, in RegisterInput) (*model.User, bool, error) {
	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByUsername(ctx, in.Username)
	if err != nil && !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, false, err
	}

	if existing != nil {
		yes := true
		updated, err := s.repo.Update(ctx, existing.ID, model.UserPatch{
			HashedPassword: &digest,
			IsActive:       &yes,
			IsSuperuser:    &yes,
		})
		if err != nil {
			return nil, false, err
		}
		_ = s.cache.Delete(ctx, s.cacheKey(existing.ID))
		return updated, false, nil
	}

	user := &model.User{
		Email:          in.Email,
		Username:       in.Username,
		HashedPassword: digest,
		FullName:       in.FullName,
		IsActive:       true,
		IsSuperuser:    true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}
