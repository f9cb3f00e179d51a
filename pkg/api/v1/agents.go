package apiv1

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/auth"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/common"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/flow"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	defaultExecutionsLimit = 20
	maxExecutionsLimit     = 100
)

// FlowExecutor runs an agent's flow. Implemented by engine.Engine.
type FlowExecutor interface {
	ExecuteFlow(ctx context.Context, agentId, userId, triggeredBy string) (*types.ExecutionResult, error)
}

// AgentsGroup handles the calling user's agents and their runs
type AgentsGroup struct {
	backend  repository.BackendRepository
	executor FlowExecutor
}

func NewAgentsGroup(g *echo.Group, backend repository.BackendRepository, executor FlowExecutor) *AgentsGroup {
	ag := &AgentsGroup{backend: backend, executor: executor}
	g.GET("", ag.List)
	g.POST("", ag.Create)
	g.GET("/:agent_id", ag.Get)
	g.PUT("/:agent_id", ag.Save)
	g.POST("/:agent_id/execute", ag.Execute)
	g.GET("/:agent_id/executions", ag.ListExecutions)
	g.GET("/:agent_id/executions/:log_id", ag.GetExecution)
	g.PUT("/:agent_id/schedule", ag.SaveSchedule)
	return ag
}

type SaveAgentRequest struct {
	Name   string     `json:"name"`
	Flow   types.Flow `json:"flow"`
	Active *bool      `json:"active"`
}

type SaveScheduleRequest struct {
	Frequency types.ScheduleFrequency `json:"frequency"`
	Interval  int                     `json:"interval"`
	Active    *bool                   `json:"active"`
}

func (ag *AgentsGroup) List(c echo.Context) error {
	userId, err := auth.RequireUser(c.Request().Context())
	if err != nil {
		return ErrorResponse(c, http.StatusUnauthorized, err.Error())
	}

	agents, err := ag.backend.ListAgents(c.Request().Context(), userId)
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "failed to list agents")
	}
	if agents == nil {
		agents = []types.Agent{}
	}
	return SuccessResponse(c, agents)
}

func (ag *AgentsGroup) Get(c echo.Context) error {
	agent, err := ag.ownedAgent(c)
	if err != nil {
		return ErrorFromErr(c, err)
	}
	return SuccessResponse(c, agent)
}

// Create stores a new agent under a generated id
func (ag *AgentsGroup) Create(c echo.Context) error {
	ctx := c.Request().Context()
	userId, err := auth.RequireUser(ctx)
	if err != nil {
		return ErrorResponse(c, http.StatusUnauthorized, err.Error())
	}

	var req SaveAgentRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}
	if _, err := flow.Validate(req.Flow); err != nil {
		return ErrorFromErr(c, err)
	}

	agent := &types.Agent{
		Id:     common.GenerateAgentID(),
		UserId: userId,
		Name:   req.Name,
		Flow:   req.Flow,
		Active: req.Active == nil || *req.Active,
	}
	if err := ag.backend.SaveAgent(ctx, agent); err != nil {
		log.Error().Err(err).Str("user_id", userId).Msg("failed to create agent")
		return ErrorResponse(c, http.StatusInternalServerError, "failed to save agent")
	}
	return c.JSON(http.StatusCreated, Response{Success: true, Data: agent})
}

func (ag *AgentsGroup) Save(c echo.Context) error {
	ctx := c.Request().Context()
	userId, err := auth.RequireUser(ctx)
	if err != nil {
		return ErrorResponse(c, http.StatusUnauthorized, err.Error())
	}

	var req SaveAgentRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}
	if _, err := flow.Validate(req.Flow); err != nil {
		return ErrorFromErr(c, err)
	}

	agentId := c.Param("agent_id")
	agent := &types.Agent{Id: agentId, UserId: userId, Active: true}

	existing, err := ag.backend.GetAgent(ctx, agentId)
	switch {
	case err == nil && existing.UserId != userId:
		return ErrorResponse(c, http.StatusNotFound, (&types.ErrAgentNotFound{AgentId: agentId}).Error())
	case err == nil:
		agent = existing
	case !(&types.ErrAgentNotFound{}).From(err):
		return ErrorResponse(c, http.StatusInternalServerError, "failed to load agent")
	}

	agent.Name = req.Name
	agent.Flow = req.Flow
	if req.Active != nil {
		agent.Active = *req.Active
	}

	if err := ag.backend.SaveAgent(ctx, agent); err != nil {
		log.Error().Err(err).Str("agent_id", agentId).Msg("failed to save agent")
		return ErrorResponse(c, http.StatusInternalServerError, "failed to save agent")
	}
	return SuccessResponse(c, agent)
}

// Execute runs the flow synchronously and returns the result. A failed run
// is still a 200; the result carries the status.
func (ag *AgentsGroup) Execute(c echo.Context) error {
	ctx := c.Request().Context()
	userId, err := auth.RequireUser(ctx)
	if err != nil {
		return ErrorResponse(c, http.StatusUnauthorized, err.Error())
	}

	result, err := ag.executor.ExecuteFlow(ctx, c.Param("agent_id"), userId, types.TriggeredByAPI)
	if err != nil {
		log.Error().Err(err).Str("agent_id", c.Param("agent_id")).Msg("failed to start execution")
		return ErrorResponse(c, http.StatusInternalServerError, "failed to start execution")
	}
	return SuccessResponse(c, result)
}

func (ag *AgentsGroup) ListExecutions(c echo.Context) error {
	agent, err := ag.ownedAgent(c)
	if err != nil {
		return ErrorFromErr(c, err)
	}

	limit := defaultExecutionsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return ErrorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxExecutionsLimit)
	}

	logs, err := ag.backend.ListExecutionLogs(c.Request().Context(), agent.Id, agent.UserId, limit)
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "failed to list executions")
	}
	if logs == nil {
		logs = []types.ExecutionLog{}
	}
	return SuccessResponse(c, logs)
}

func (ag *AgentsGroup) GetExecution(c echo.Context) error {
	agent, err := ag.ownedAgent(c)
	if err != nil {
		return ErrorFromErr(c, err)
	}

	logId := c.Param("log_id")
	entry, err := ag.backend.GetExecutionLog(c.Request().Context(), logId)
	if err != nil {
		return ErrorFromErr(c, err)
	}
	if entry.AgentId != agent.Id || entry.UserId != agent.UserId {
		return ErrorFromErr(c, &types.ErrExecutionLogNotFound{LogId: logId})
	}
	return SuccessResponse(c, entry)
}

func (ag *AgentsGroup) SaveSchedule(c echo.Context) error {
	agent, err := ag.ownedAgent(c)
	if err != nil {
		return ErrorFromErr(c, err)
	}

	var req SaveScheduleRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request")
	}
	if req.Frequency.Period() == 0 {
		return ErrorResponse(c, http.StatusBadRequest, "frequency must be one of minutes, hourly, daily, weekly")
	}
	if req.Interval <= 0 {
		req.Interval = 1
	}

	schedule := &types.Schedule{
		AgentId:   agent.Id,
		UserId:    agent.UserId,
		Frequency: req.Frequency,
		Interval:  req.Interval,
		Active:    req.Active == nil || *req.Active,
	}
	schedule.NextRunAt = schedule.Next(time.Now().UTC())

	if err := ag.backend.SaveSchedule(c.Request().Context(), schedule); err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "failed to save schedule")
	}
	return SuccessResponse(c, schedule)
}

// ownedAgent loads the path agent; agents of other users are reported as missing
func (ag *AgentsGroup) ownedAgent(c echo.Context) (*types.Agent, error) {
	ctx := c.Request().Context()
	userId, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, &types.AuthError{Reason: err.Error()}
	}

	agentId := c.Param("agent_id")
	agent, err := ag.backend.GetAgent(ctx, agentId)
	if err != nil {
		return nil, err
	}
	if agent.UserId != userId {
		return nil, &types.ErrAgentNotFound{AgentId: agentId}
	}
	return agent, nil
}
