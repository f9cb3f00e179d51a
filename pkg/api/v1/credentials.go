package apiv1

import (
	"net/http"
	"strings"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/auth"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/labstack/echo/v4"
)

// CredentialsGroup stores the calling user's mailbox token and provider keys
type CredentialsGroup struct {
	backend repository.BackendRepository
}

func NewCredentialsGroup(g *echo.Group, backend repository.BackendRepository) *CredentialsGroup {
	cg := &CredentialsGroup{backend: backend}
	g.PUT("/google", cg.SaveGoogleToken)
	g.PUT("/api-keys/:provider", cg.SaveAPIKey)
	return cg
}

type SaveTokenRequest struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type SaveAPIKeyRequest struct {
	Key string `json:"key"`
}

func (cg *CredentialsGroup) SaveGoogleToken(c echo.Context) error {
	ctx := c.Request().Context()
	userId, err := auth.RequireUser(ctx)
	if err != nil {
		return ErrorResponse(c, http.StatusUnauthorized, err.Error())
	}

	var req SaveTokenRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}
	if req.AccessToken == "" && req.RefreshToken == "" {
		return ErrorResponse(c, http.StatusBadRequest, "accessToken or refreshToken required")
	}
	if req.TokenType == "" {
		req.TokenType = "Bearer"
	}

	token := &types.OAuthToken{
		UserId:       userId,
		Provider:     types.ProviderGoogle,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Scope:        req.Scope,
		ExpiresAt:    req.ExpiresAt,
	}
	if err := cg.backend.SaveOAuthToken(ctx, token); err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "failed to save token")
	}
	return SuccessResponse(c, token)
}

func (cg *CredentialsGroup) SaveAPIKey(c echo.Context) error {
	ctx := c.Request().Context()
	userId, err := auth.RequireUser(ctx)
	if err != nil {
		return ErrorResponse(c, http.StatusUnauthorized, err.Error())
	}

	var req SaveAPIKeyRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Key) == "" {
		return ErrorResponse(c, http.StatusBadRequest, "key required")
	}

	key := &types.APIKey{UserId: userId, Provider: strings.ToLower(c.Param("provider")), Key: strings.TrimSpace(req.Key)}
	if err := cg.backend.SaveAPIKey(ctx, key); err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "failed to save api key")
	}
	return SuccessResponse(c, key)
}
