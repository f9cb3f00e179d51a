package common

import (
	"github.com/google/uuid"
)

// GenerateExecutionID returns the id for a new execution log row
func GenerateExecutionID() string {
	return uuid.NewString()
}

// GenerateAgentID returns the id for a new agent
func GenerateAgentID() string {
	return uuid.NewString()
}
