package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/publicid"
)

// TokenHandler lets an owner mint the contact-me link.
type TokenHandler struct {
	logger    *slog.Logger
	tokens    *accesstoken.Service
	publicIDs *publicid.Service
	linkHost  string
}

func NewTokenHandler(log *slog.Logger, tokens *accesstoken.Service, publicIDs *publicid.Service, linkHost string) *TokenHandler {
	return &TokenHandler{
		logger:    log.With(slog.String("handler", "tokens")),
		tokens:    tokens,
		publicIDs: publicIDs,
		linkHost:  strings.TrimSpace(linkHost),
	}
}

func (h *TokenHandler) Register(e *echo.Echo) {
	group := e.Group("/tokens")
	group.POST("", h.Issue)
	group.GET("/current", h.Current)
}

// TokenResponse is a token plus the shareable link that carries it.
type TokenResponse struct {
	Token     string    `json:"token"`
	PublicID  string    `json:"public_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Link      string    `json:"link"`
}

// Issue godoc
// @Summary Issue or return the current contact link token
// @Description Returns the owner's current usable token, issuing one when none exists. rotate=true always issues a new token.
// @Tags tokens
// @Produce json
// @Param rotate query bool false "Always issue a new token"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /tokens [post]
func (h *TokenHandler) Issue(c echo.Context) error {
	ownerID, err := RequireOwnerID(c)
	if err != nil {
		return err
	}
	rotate := false
	if raw := strings.TrimSpace(c.QueryParam("rotate")); raw != "" {
		rotate, err = strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "rotate must be a boolean")
		}
	}
	var token accesstoken.Token
	if rotate {
		token, err = h.tokens.Issue(c.Request().Context(), ownerID)
	} else {
		token, err = h.tokens.CurrentFor(c.Request().Context(), ownerID)
	}
	if err != nil {
		return tokenHTTPError(h.logger, err)
	}
	return h.respond(c, token)
}

// Current godoc
// @Summary Current usable token, issuing one when none exists
// @Tags tokens
// @Produce json
// @Success 200 {object} TokenResponse
// @Router /tokens/current [get]
func (h *TokenHandler) Current(c echo.Context) error {
	ownerID, err := RequireOwnerID(c)
	if err != nil {
		return err
	}
	token, err := h.tokens.CurrentFor(c.Request().Context(), ownerID)
	if err != nil {
		return tokenHTTPError(h.logger, err)
	}
	return h.respond(c, token)
}

func (h *TokenHandler) respond(c echo.Context, token accesstoken.Token) error {
	publicID, err := h.publicIDs.ResolvePublicID(c.Request().Context(), token.OwnerID)
	if err != nil {
		return tokenHTTPError(h.logger, fmt.Errorf("%w: resolve public id: %w", accesstoken.ErrStorageUnavailable, err))
	}
	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token.Value,
		PublicID:  publicID,
		ExpiresAt: token.ExpiresAt,
		Link:      BuildLink(h.linkHost, publicID, token.Value),
	})
}

// BuildLink formats the public contact link https://<host>/u/<publicID>/c/<token>.
func BuildLink(host, publicID, token string) string {
	u := url.URL{
		Scheme: "https",
		Host:   host,
		Path:   "/u/" + publicID + "/c/" + token,
	}
	return u.String()
}
