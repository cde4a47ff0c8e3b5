package handler

import (
	"errors"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	apperrors "usersvc/internal/errors"
	"usersvc/internal/model"
	"usersvc/internal/service"
)

// userContextKey holds the *model.User resolved by ActiveUser.
const userContextKey = "current_user"

// UserHandlerFunc is a handler that runs for an already resolved caller.
type UserHandlerFunc func(c echo.Context, user *model.User) error

// ActiveUser extracts the bearer token and resolves it through the access
// guard's active-user gate.
func ActiveUser(guard *service.AccessGuard) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  userContextKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return guard.ActiveUser(c.Request().Context(), token)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			var missing *echojwt.TokenExtractionError
			switch {
			case errors.Is(err, apperrors.ErrStoreUnavailable):
				return err
			case errors.As(err, &missing):
				// ParseTokenFunc never ran, so the guard has not seen the request
				return guard.RejectMissingToken()
			default:
				return apperrors.ErrUnauthenticated
			}
		},
	})
}

// Superuser applies the superuser gate to a caller resolved by ActiveUser.
func Superuser(guard *service.AccessGuard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := guard.RequireSuperuser(currentUser(c)); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// WithUser adapts fn to echo, passing the resolved caller as an argument.
func WithUser(fn UserHandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := currentUser(c)
		if user == nil {
			return apperrors.ErrUnauthenticated
		}
		return fn(c, user)
	}
}

func currentUser(c echo.Context) *model.User {
	user, _ := c.Get(userContextKey).(*model.User)
	return user
}
