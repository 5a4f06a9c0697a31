// Package auth issues and verifies the JWTs carried by owners and counterparts.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Roles carried in the "role" claim.
const (
	RoleOwner       = "owner"
	RoleCounterpart = "counterpart"
)

const (
	contextKey   = "user"
	tokenLookup  = "header:Authorization:Bearer ,query:access_token"
	claimSub     = "sub"
	claimUserID  = "user_id"
	claimRole    = "role"
	claimName    = "name"
	claimConvID  = "conversation_id"
	claimCounter = "counterpart_id"
	claimOwnerID = "owner_id"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Role           string
	OwnerID        string
	Name           string
	CounterpartID  string
	ConversationID string
}

// IsOwner reports whether the principal is an authenticated owner.
func (p Principal) IsOwner() bool { return p.Role == RoleOwner }

// CounterpartSession describes the conversation a counterpart was admitted to.
type CounterpartSession struct {
	OwnerID        string
	ConversationID string
	CounterpartID  string
}

// GenerateToken signs an owner JWT.
func GenerateToken(ownerID, secret string, ttl time.Duration) (string, time.Time, error) {
	return GenerateOwnerToken(ownerID, "", secret, ttl)
}

// GenerateOwnerToken signs an owner JWT with an optional display name.
func GenerateOwnerToken(ownerID, name, secret string, ttl time.Duration) (string, time.Time, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", time.Time{}, errors.New("owner id is required")
	}
	claims := jwt.MapClaims{
		claimSub:    ownerID,
		claimUserID: ownerID,
		claimRole:   RoleOwner,
	}
	if name = strings.TrimSpace(name); name != "" {
		claims[claimName] = name
	}
	return sign(claims, secret, ttl)
}

// GenerateCounterpartToken signs the session JWT handed to a counterpart after validation.
func GenerateCounterpartToken(session CounterpartSession, secret string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(session.ConversationID) == "" || strings.TrimSpace(session.CounterpartID) == "" {
		return "", time.Time{}, errors.New("conversation id and counterpart id are required")
	}
	claims := jwt.MapClaims{
		claimSub:     session.CounterpartID,
		claimRole:    RoleCounterpart,
		claimConvID:  session.ConversationID,
		claimCounter: session.CounterpartID,
		claimOwnerID: session.OwnerID,
	}
	return sign(claims, secret, ttl)
}

func sign(claims jwt.MapClaims, secret string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims["iat"] = now.Unix()
	claims["exp"] = expiresAt.Unix()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies raw and returns its principal.
func ParseToken(raw, secret string) (Principal, error) {
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("unexpected claims type")
	}
	return principalFromClaims(claims)
}

func principalFromClaims(claims jwt.MapClaims) (Principal, error) {
	str := func(key string) string {
		v, _ := claims[key].(string)
		return strings.TrimSpace(v)
	}
	p := Principal{Role: str(claimRole), Name: str(claimName)}
	switch p.Role {
	case RoleOwner:
		p.OwnerID = str(claimUserID)
		if p.OwnerID == "" {
			p.OwnerID = str(claimSub)
		}
		if p.OwnerID == "" {
			return Principal{}, errors.New("owner token without subject")
		}
	case RoleCounterpart:
		p.OwnerID = str(claimOwnerID)
		p.ConversationID = str(claimConvID)
		p.CounterpartID = str(claimCounter)
		if p.ConversationID == "" || p.CounterpartID == "" {
			return Principal{}, errors.New("counterpart token without conversation")
		}
	default:
		return Principal{}, fmt.Errorf("unknown role %q", p.Role)
	}
	return p, nil
}

// JWTMiddleware validates HS256 tokens from the Authorization header or the access_token query parameter.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		ContextKey:    contextKey,
		TokenLookup:   tokenLookup,
		Skipper:       skipper,
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token").SetInternal(err)
		},
	})
}

// PrincipalFromContext returns the caller authenticated by JWTMiddleware.
func PrincipalFromContext(c echo.Context) (Principal, error) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok || token == nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	p, err := principalFromClaims(claims)
	if err != nil {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return p, nil
}

// UserIDFromContext returns the owner id of an owner principal.
func UserIDFromContext(c echo.Context) (string, error) {
	p, err := PrincipalFromContext(c)
	if err != nil {
		return "", err
	}
	if !p.IsOwner() {
		return "", echo.NewHTTPError(http.StatusForbidden, "owner token required")
	}
	return p.OwnerID, nil
}
