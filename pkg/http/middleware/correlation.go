package middleware

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const HeaderCorrelationID = "X-Correlation-ID"

type ctxKey struct{}

var correlationPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// Correlation reads X-Correlation-ID or generates one, echoes it on the response
// and stores it on both the echo and the request context.
func Correlation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(HeaderCorrelationID)
			if !correlationPattern.MatchString(id) {
				id = uuid.NewString()
			}
			c.Set(HeaderCorrelationID, id)
			c.SetRequest(c.Request().WithContext(WithCorrelationID(c.Request().Context(), id)))
			c.Response().Header().Set(HeaderCorrelationID, id)
			return next(c)
		}
	}
}

// CorrelationID returns the id assigned by Correlation, or "" outside of it.
func CorrelationID(c echo.Context) string {
	if v, ok := c.Get(HeaderCorrelationID).(string); ok {
		return v
	}
	return CorrelationIDFrom(c.Request().Context())
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func CorrelationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}
