package apiv1

import (
	"net/http"
	"strings"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/auth"
	"github.com/labstack/echo/v4"
)

const UserIdHeader = "X-User-Id"

// UserAuthConfig for user-scoped API routes
type UserAuthConfig struct {
	// AdminToken lets service callers act for the user named in X-User-Id
	AdminToken string
	Sessions   *auth.SessionManager
}

// NewUserAuthMiddleware resolves the calling user from a signed bearer token,
// or from X-User-Id when the static admin token is presented.
func NewUserAuthMiddleware(cfg UserAuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return ErrorResponse(c, http.StatusUnauthorized, "authorization required")
			}

			var userId string
			switch {
			case cfg.AdminToken != "" && token == cfg.AdminToken:
				userId = strings.TrimSpace(c.Request().Header.Get(UserIdHeader))
				if userId == "" {
					return ErrorResponse(c, http.StatusBadRequest, UserIdHeader+" header required")
				}

			case cfg.Sessions.Enabled():
				var err error
				userId, err = cfg.Sessions.Validate(token)
				if err != nil {
					return ErrorResponse(c, http.StatusUnauthorized, "invalid token")
				}

			default:
				return ErrorResponse(c, http.StatusUnauthorized, "invalid token")
			}

			ctx := auth.WithUserId(c.Request().Context(), userId)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
