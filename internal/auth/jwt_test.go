package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateTokenClaims(t *testing.T) {
	signed, expiresAt, err := GenerateToken("owner-1", testSecret, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "owner-1", claims["sub"])
	assert.Equal(t, "owner-1", claims["user_id"])
	assert.Equal(t, RoleOwner, claims["role"])
}

func TestParseTokenRoundTrip(t *testing.T) {
	signed, _, err := GenerateOwnerToken("owner-1", "Maria", testSecret, time.Hour)
	require.NoError(t, err)
	p, err := ParseToken(signed, testSecret)
	require.NoError(t, err)
	assert.Equal(t, Principal{Role: RoleOwner, OwnerID: "owner-1", Name: "Maria"}, p)

	session := CounterpartSession{OwnerID: "owner-1", ConversationID: "conv-1", CounterpartID: "cp-1"}
	signed, _, err = GenerateCounterpartToken(session, testSecret, time.Hour)
	require.NoError(t, err)
	p, err = ParseToken(signed, testSecret)
	require.NoError(t, err)
	assert.Equal(t, RoleCounterpart, p.Role)
	assert.Equal(t, "conv-1", p.ConversationID)
	assert.Equal(t, "cp-1", p.CounterpartID)
	assert.Equal(t, "owner-1", p.OwnerID)
	assert.False(t, p.IsOwner())
}

func TestParseTokenRejects(t *testing.T) {
	signed, _, err := GenerateToken("owner-1", testSecret, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(signed, "other-secret")
	assert.Error(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseToken(noRole, testSecret)
	assert.Error(t, err)
}

func TestGenerateErrors(t *testing.T) {
	_, _, err := GenerateToken("", testSecret, time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken("o", "", time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken("o", testSecret, 0)
	assert.Error(t, err)
	_, _, err = GenerateCounterpartToken(CounterpartSession{ConversationID: "c"}, testSecret, time.Hour)
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(JWTMiddleware(testSecret, func(c echo.Context) bool { return c.Path() == "/open" }))
	e.GET("/me", func(c echo.Context) error {
		id, err := UserIDFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, id)
	})
	e.GET("/open", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	owner, _, err := GenerateToken("owner-1", testSecret, time.Hour)
	require.NoError(t, err)
	counterpart, _, err := GenerateCounterpartToken(CounterpartSession{ConversationID: "c", CounterpartID: "p"}, testSecret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"skipped", "/open", "", http.StatusNoContent},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"header", "/me", "Bearer " + owner, http.StatusOK},
		{"query", "/me?access_token=" + owner, "", http.StatusOK},
		{"counterpart on owner route", "/me", "Bearer " + counterpart, http.StatusForbidden},
		{"garbage", "/me", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
