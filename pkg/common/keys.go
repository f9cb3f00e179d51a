package common

import "fmt"

var (
	// Gateway keys
	gatewayInitLock string = "gateway:init:lock:%s" // name

	// Token keys
	tokenRefreshLock string = "oauth:refresh:lock:%s:%s" // provider, userId

	// Scheduler keys
	schedulePollLock string = "scheduler:agent:lock:%s" // agentId
)

var Keys = &redisKeys{}

type redisKeys struct{}

func (rk *redisKeys) GatewayInitLock(name string) string {
	return fmt.Sprintf(gatewayInitLock, name)
}

func (rk *redisKeys) TokenRefreshLock(provider, userId string) string {
	return fmt.Sprintf(tokenRefreshLock, provider, userId)
}

func (rk *redisKeys) SchedulePollLock(agentId string) string {
	return fmt.Sprintf(schedulePollLock, agentId)
}
