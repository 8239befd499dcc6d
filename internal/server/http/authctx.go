package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/service"
	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
)

type ctxKey string

const userIDKey ctxKey = "tp.userID"

// WithUserID stores authenticated user ID in context.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx fetches user ID from context.
func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Authenticate verifies the bearer session token and stores the user ID in the request context.
func Authenticate(sessions service.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get(echo.HeaderAuthorization)
			if h == "" {
				return errs.ErrUnauthorized
			}
			const prefix = "bearer "
			if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
				return errs.ErrUnauthorized
			}
			uid, err := sessions.Verify(strings.TrimSpace(h[len(prefix):]))
			if err != nil {
				return err
			}
			req := c.Request()
			c.SetRequest(req.WithContext(WithUserID(req.Context(), uid)))
			return next(c)
		}
	}
}

func currentUser(c echo.Context) (uuid.UUID, error) {
	uid, ok := UserIDFromCtx(c.Request().Context())
	if !ok || uid == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return uid, nil
}
