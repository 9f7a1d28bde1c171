package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newCORSServer(origins ...string) *echo.Echo {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{echo.HeaderContentType, HeaderCorrelationID},
		ExposeHeaders: []string{HeaderCorrelationID},
		MaxAge:        time.Minute,
	}))
	e.POST("/analyze", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func TestCORSPreflightForAllowedOrigin(t *testing.T) {
	e := newCORSServer("https://Desk.example.com/")

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set(echo.HeaderOrigin, "https://desk.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://desk.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "60", rec.Header().Get(echo.HeaderAccessControlMaxAge))
	assert.Contains(t, rec.Header().Values(echo.HeaderVary), echo.HeaderOrigin)
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	e := newCORSServer("https://desk.example.com")

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestCORSWildcardExposesCorrelationHeader(t *testing.T) {
	e := newCORSServer("*")

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	req.Header.Set(echo.HeaderOrigin, "https://anything.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, HeaderCorrelationID, rec.Header().Get(echo.HeaderAccessControlExposeHeaders))
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), "only preflights list methods")
}
