package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinepass/seat-reservation/internal/utils"
)

const testSecret = "test-secret"

func runAuth(t *testing.T, authHeader string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotOwner string
	handler := SessionAuth(testSecret)(func(c echo.Context) error {
		gotOwner, _ = c.Get("owner_id").(string)
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec, gotOwner
}

func TestSessionAuth(t *testing.T) {
	t.Run("valid token passes the owner through", func(t *testing.T) {
		tok, err := utils.NewSessionToken(testSecret, 30)
		require.NoError(t, err)

		rec, owner := runAuth(t, "Bearer "+tok.Token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tok.OwnerID, owner)
	})

	t.Run("missing header", func(t *testing.T) {
		rec, _ := runAuth(t, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := utils.NewSessionToken("other-secret", 30)
		require.NoError(t, err)
		rec, _ := runAuth(t, "Bearer "+tok.Token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		tok, err := utils.NewSessionToken(testSecret, -5)
		require.NoError(t, err)
		rec, _ := runAuth(t, "Bearer "+tok.Token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		rec, _ := runAuth(t, "Bearer "+raw)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
