package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	apperrors "usersvc/internal/errors"
	"usersvc/internal/model"
)

const (
	// DefaultListLimit is used when the caller passes no limit.
	DefaultListLimit = 100
	// MaxListLimit bounds a single page.
	MaxListLimit = 1000
)

// UserRepository defines persistence operations for user identities.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, id uint, patch model.UserPatch) (*model.User, error)
	List(ctx context.Context, offset, limit int) ([]model.User, error)
	Ping(ctx context.Context) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts user. Uniqueness of email and username is enforced by the
// database indexes, so concurrent duplicates resolve to ErrDuplicateUser.
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	// GORM writes the column default in place of a false is_active.
	active := user.IsActive
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		if active {
			return nil
		}
		user.IsActive = false
		return tx.Model(user).Update("is_active", false).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return apperrors.ErrDuplicateUser
		}
		return storeError("create user", err)
	}
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	return r.findOne(ctx, "find user by id", "id = ?", id)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "find user by username", "username = ?", username)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "find user by email", "email = ?", email)
}

// Update applies the set fields of patch and returns the stored row.
func (r *userRepository) Update(ctx context.Context, id uint, patch model.UserPatch) (*model.User, error) {
	var updated model.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&updated).Error; err != nil {
			return err
		}
		if patch.Empty() {
			return nil
		}
		if err := tx.Model(&updated).Updates(patch.Columns()).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperrors.ErrUserNotFound
		case isDuplicate(err):
			return nil, apperrors.ErrDuplicateUser
		default:
			return nil, storeError("update user", err)
		}
	}
	return &updated, nil
}

// List returns users in insertion order.
func (r *userRepository) List(ctx context.Context, offset, limit int) ([]model.User, error) {
	offset, limit = NormalizePage(offset, limit)
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id asc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

// Ping checks the database connection.
func (r *userRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storeError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// NormalizePage applies the default and maximum page bounds.
func NormalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return offset, limit
}

func (r *userRepository) findOne(ctx context.Context, op, query string, arg interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, storeError(op, err)
	}
	return &user, nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStoreUnavailable, err)
}

// isDuplicate recognizes unique violations. TranslateError covers the drivers
// we ship; the message checks catch connections opened without it.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
