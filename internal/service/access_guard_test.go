package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"usersvc/internal/auth"
	apperrors "usersvc/internal/errors"
	"usersvc/internal/metrics"
	"usersvc/internal/model"
)

func issue(t *testing.T, tokens *auth.TokenService, subject string) string {
	t.Helper()
	token, _, err := tokens.Issue(subject)
	require.NoError(t, err)
	return token
}

func TestAccessGuard_ActiveUser(t *testing.T) {
	tokens := testTokens(t)
	expired := tokens.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	foreign, err := auth.NewTokenService("other-secret", "HS256", time.Hour)
	require.NoError(t, err)

	alice := &model.User{ID: 1, Username: "alice", IsActive: true}
	inactive := &model.User{ID: 2, Username: "carol", IsActive: false}

	tests := []struct {
		name          string
		token         string
		setupMock     func(*MockUserRepository)
		expectedUser  *model.User
		expectedError error
	}{
		{
			name:  "valid token",
			token: issue(t, tokens, "alice"),
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
			},
			expectedUser: alice,
		},
		{
			name:          "missing token",
			token:         "",
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperrors.ErrUnauthenticated,
		},
		{
			name:          "malformed token",
			token:         "garbage",
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperrors.ErrUnauthenticated,
		},
		{
			name:          "expired token",
			token:         issue(t, expired, "alice"),
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperrors.ErrUnauthenticated,
		},
		{
			name:          "foreign signature",
			token:         issue(t, foreign, "alice"),
			setupMock:     func(m *MockUserRepository) {},
			expectedError: apperrors.ErrUnauthenticated,
		},
		{
			name:  "subject no longer exists",
			token: issue(t, tokens, "ghost"),
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "ghost").Return(nil, apperrors.ErrUserNotFound)
			},
			expectedError: apperrors.ErrUnauthenticated,
		},
		{
			name:  "inactive user with valid token",
			token: issue(t, tokens, "carol"),
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "carol").Return(inactive, nil)
			},
			expectedError: apperrors.ErrUnauthenticated,
		},
		{
			name:  "store unavailable",
			token: issue(t, tokens, "alice"),
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "alice").Return(nil, errors.Join(apperrors.ErrStoreUnavailable, errDBDown))
			},
			expectedError: apperrors.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)
			guard := NewAccessGuard(mockRepo, tokens, testLogger(), nil)

			user, err := guard.ActiveUser(context.Background(), tt.token)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedUser, user)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAccessGuard_Superuser(t *testing.T) {
	tokens := testTokens(t)
	m := metrics.New(nil)

	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByUsername", mock.Anything, "alice").Return(&model.User{ID: 1, Username: "alice", IsActive: true}, nil)
	mockRepo.On("FindByUsername", mock.Anything, "root").Return(&model.User{ID: 2, Username: "root", IsActive: true, IsSuperuser: true}, nil)
	guard := NewAccessGuard(mockRepo, tokens, testLogger(), m)

	_, err := guard.Superuser(context.Background(), issue(t, tokens, "alice"))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthenticated)

	root, err := guard.Superuser(context.Background(), issue(t, tokens, "root"))
	require.NoError(t, err)
	assert.True(t, root.IsSuperuser)

	_, err = guard.Superuser(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardRejections.WithLabelValues(metrics.OutcomeForbidden)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardRejections.WithLabelValues(metrics.OutcomeUnauthenticated)))
}

func TestAccessGuard_RequireSuperuser(t *testing.T) {
	guard := NewAccessGuard(new(MockUserRepository), testTokens(t), testLogger(), nil)

	assert.ErrorIs(t, guard.RequireSuperuser(nil), apperrors.ErrUnauthenticated)
	assert.ErrorIs(t, guard.RequireSuperuser(&model.User{IsActive: true}), apperrors.ErrForbidden)
	assert.NoError(t, guard.RequireSuperuser(&model.User{IsActive: true, IsSuperuser: true}))
}
