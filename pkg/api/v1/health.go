package apiv1

import (
	"context"
	"net/http"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthGroup struct {
	backend     pinger
	redisClient *common.RedisClient
}

// NewHealthGroup registers the health check. rdb may be nil in local mode.
func NewHealthGroup(g *echo.Group, backend pinger, rdb *common.RedisClient) *HealthGroup {
	group := &HealthGroup{backend: backend, redisClient: rdb}
	g.GET("", group.HealthCheck)
	return group
}

func (h *HealthGroup) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.backend.Ping(ctx); err != nil {
		return h.unhealthy(c, "backend", err)
	}
	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			return h.unhealthy(c, "redis", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthGroup) unhealthy(c echo.Context, component string, err error) error {
	log.Error().Err(err).Str("component", component).Msg("health check failed")
	return c.JSON(http.StatusServiceUnavailable, map[string]string{
		"status":    "not ok",
		"component": component,
		"error":     err.Error(),
	})
}
