package types

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError carries every structural violation found in a flow
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid flow: %s", strings.Join(e.Violations, "; "))
}

// From checks if the given error is a ValidationError
func (e *ValidationError) From(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// AuthError is returned when no usable mailbox credential exists for a user
type AuthError struct {
	UserId string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed for user %s: %s: %v", e.UserId, e.Reason, e.Err)
	}
	return fmt.Sprintf("auth failed for user %s: %s", e.UserId, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// From checks if the given error is an AuthError
func (e *AuthError) From(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}

type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// ProviderError is a failed call to an external service
type ProviderError struct {
	Provider   string
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed (%s, status %d): %s", e.Provider, e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s failed (%s): %s", e.Provider, e.Op, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether retrying the call may succeed
func (e *ProviderError) Transient() bool {
	return e.Kind == KindTransient
}

// IsTransient reports whether err wraps a transient ProviderError
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient()
}

// HasStatus reports whether err wraps a ProviderError with the given status code
func HasStatus(err error, status int) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode == status
}

type ClassificationError struct {
	ItemId string
	Err    error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed for item %s: %v", e.ItemId, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

type ActionError struct {
	ItemId string
	Action ActionType
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action failed for item %s: %v", e.Action, e.ItemId, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// OrchestrationError is an internal traversal inconsistency
type OrchestrationError struct {
	NodeId string
	Reason string
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration error at node %s: %s", e.NodeId, e.Reason)
}

type ErrAgentNotFound struct {
	AgentId string
}

func (e *ErrAgentNotFound) Error() string {
	return fmt.Sprintf("agent not found: %s", e.AgentId)
}

// From checks if the given error is an ErrAgentNotFound
func (e *ErrAgentNotFound) From(err error) bool {
	var notFound *ErrAgentNotFound
	return errors.As(err, &notFound)
}

type ErrTokenNotFound struct {
	UserId   string
	Provider string
}

func (e *ErrTokenNotFound) Error() string {
	return fmt.Sprintf("no %s token for user %s", e.Provider, e.UserId)
}

// From checks if the given error is an ErrTokenNotFound
func (e *ErrTokenNotFound) From(err error) bool {
	var notFound *ErrTokenNotFound
	return errors.As(err, &notFound)
}

type ErrExecutionLogNotFound struct {
	LogId string
}

func (e *ErrExecutionLogNotFound) Error() string {
	return fmt.Sprintf("execution log not found: %s", e.LogId)
}
