package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"usersvc/internal/db"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/model"
)

func setupRepo(t *testing.T) UserRepository {
	t.Helper()
	gormDB, err := db.NewSQLite(filepath.Join(t.TempDir(), "users.db"), db.Options{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	return NewUserRepository(gormDB)
}

func newUser(username, email string) *model.User {
	return &model.User{
		Username:       username,
		Email:          email,
		HashedPassword: "$2a$10$digest",
		IsActive:       true,
	}
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	user := newUser("alice", "a@x.com")
	require.NoError(t, repo.Create(ctx, user))
	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	byName, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
	assert.True(t, byName.IsActive)
	assert.False(t, byName.IsSuperuser)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)

	byEmail, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", byEmail.Username)
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	_, err = repo.FindByID(ctx, 42)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	_, err = repo.Update(ctx, 42, model.UserPatch{})
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestUserRepository_DuplicateRejectedByStore(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("alice", "a@x.com")))

	err := repo.Create(ctx, newUser("alice", "other@x.com"))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateUser)

	err = repo.Create(ctx, newUser("bob", "a@x.com"))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateUser)
}

func TestUserRepository_ConcurrentDuplicateCreate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		duplicate int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newUser("racer", "racer@x.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, apperrors.ErrDuplicateUser):
				duplicate++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicate)
}

func TestUserRepository_UpdatePartial(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	user := newUser("alice", "a@x.com")
	require.NoError(t, repo.Create(ctx, user))

	name := "Alice Liddell"
	updated, err := repo.Update(ctx, user.ID, model.UserPatch{FullName: &name})
	require.NoError(t, err)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, name, *updated.FullName)
	assert.Equal(t, "a@x.com", updated.Email)
	assert.Equal(t, "$2a$10$digest", updated.HashedPassword)
	assert.Equal(t, user.ID, updated.ID)

	inactive := false
	updated, err = repo.Update(ctx, user.ID, model.UserPatch{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, name, *updated.FullName)
}

func TestUserRepository_UpdateDuplicateEmail(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	alice := newUser("alice", "a@x.com")
	require.NoError(t, repo.Create(ctx, alice))
	require.NoError(t, repo.Create(ctx, newUser("bob", "b@x.com")))

	taken := "b@x.com"
	_, err := repo.Update(ctx, alice.ID, model.UserPatch{Email: &taken})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateUser)

	stored, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", stored.Email)
}

func TestUserRepository_ListPaging(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newUser(fmt.Sprintf("user%d", i), fmt.Sprintf("u%d@x.com", i))))
	}

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, u := range all {
		assert.Equal(t, fmt.Sprintf("user%d", i), u.Username)
	}

	page, err := repo.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "user1", page[0].Username)
	assert.Equal(t, "user2", page[1].Username)

	tail, err := repo.List(ctx, 4, 100)
	require.NoError(t, err)
	assert.Len(t, tail, 1)
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		offset, limit         int
		wantOffset, wantLimit int
	}{
		{0, 0, 0, DefaultListLimit},
		{-5, 10, 0, 10},
		{3, MaxListLimit + 1, 3, MaxListLimit},
		{7, 50, 7, 50},
	}
	for _, tt := range tests {
		offset, limit := NormalizePage(tt.offset, tt.limit)
		assert.Equal(t, tt.wantOffset, offset)
		assert.Equal(t, tt.wantLimit, limit)
	}
}

func TestUserRepository_IsActiveDefault(t *testing.T) {
	gormDB, err := db.NewSQLite(filepath.Join(t.TempDir(), "users.db"), db.Options{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	repo := NewUserRepository(gormDB)
	ctx := context.Background()

	// rows written without an explicit is_active come up active
	now := time.Now().UTC()
	require.NoError(t, gormDB.Exec(
		"INSERT INTO users (email, username, hashed_password, is_superuser, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		"c@x.com", "carol", "$2a$10$digest", false, now, now,
	).Error)
	carol, err := repo.FindByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, carol.IsActive)

	// an explicitly inactive user stays inactive
	dave := newUser("dave", "d@x.com")
	dave.IsActive = false
	require.NoError(t, repo.Create(ctx, dave))
	assert.False(t, dave.IsActive)

	stored, err := repo.FindByID(ctx, dave.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestUserRepository_StoreFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	repo := NewUserRepository(gormDB)

	mock.ExpectQuery("SELECT (.+) FROM `users`").WillReturnError(errors.New("connection refused"))

	_, err = repo.FindByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, apperrors.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateStoreFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	repo := NewUserRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `users`").WillReturnError(errors.New("server has gone away"))
	mock.ExpectRollback()

	err = repo.Create(context.Background(), newUser("alice", "a@x.com"))
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
