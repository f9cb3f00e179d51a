package types

import (
	"strings"
	"time"
)

type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

const (
	TriggeredByManual   = "manual"
	TriggeredBySchedule = "schedule"
	TriggeredByAPI      = "api"
)

// Item is a candidate mailbox message
type Item struct {
	Id       string    `json:"id"`
	ThreadId string    `json:"threadId,omitempty"`
	Subject  string    `json:"subject"`
	From     string    `json:"from"`
	To       string    `json:"to,omitempty"`
	Date     time.Time `json:"date"`
	Snippet  string    `json:"snippet,omitempty"`
	Body     string    `json:"body,omitempty"`
	Labels   []string  `json:"labels"`
}

// HasLabel reports whether the item currently carries labelId
func (i *Item) HasLabel(labelId string) bool {
	for _, l := range i.Labels {
		if l == labelId {
			return true
		}
	}
	return false
}

// ApplyLabelChange updates the local label set after a successful mutation
func (i *Item) ApplyLabelChange(add, remove []string) {
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[r] = true
	}

	labels := make([]string, 0, len(i.Labels)+len(add))
	for _, l := range i.Labels {
		if !drop[l] {
			labels = append(labels, l)
		}
	}
	for _, a := range add {
		if !drop[a] && !contains(labels, a) {
			labels = append(labels, a)
		}
	}
	i.Labels = labels
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// ClassificationResult is the outcome for a single item. Category is always one
// of the classifier's configured categories. Fallback marks a result chosen
// without supporting evidence.
type ClassificationResult struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Fallback   bool    `json:"fallback,omitempty"`
	NodeId     string  `json:"nodeId,omitempty"`
}

// Matches reports whether the result carries category with evidence
func (r ClassificationResult) Matches(category string) bool {
	return !r.Fallback && strings.EqualFold(r.Category, category)
}

// ClassificationIssue records a provider failure that was resolved by the
// deterministic classifier
type ClassificationIssue struct {
	ItemId string `json:"itemId"`
	NodeId string `json:"nodeId"`
	Error  string `json:"error"`
}

type ActionRecord struct {
	ItemId   string     `json:"itemId"`
	NodeId   string     `json:"nodeId"`
	Action   ActionType `json:"action"`
	Category string     `json:"category,omitempty"`
	Label    string     `json:"label,omitempty"`
	Success  bool       `json:"success"`
	Message  string     `json:"message,omitempty"`
	At       time.Time  `json:"at"`
}

// ExecutionContext is the mutable per-run state threaded through the traversal
type ExecutionContext struct {
	UserId               string                          `json:"userId"`
	AgentId              string                          `json:"agentId"`
	Items                []Item                          `json:"items"`
	Classifications      map[string]ClassificationResult `json:"classifications"`
	Actions              []ActionRecord                  `json:"actions"`
	ClassificationIssues []ClassificationIssue           `json:"classificationIssues,omitempty"`
	Visited              []string                        `json:"visited"`
	Error                string                          `json:"error,omitempty"`
}

func NewExecutionContext(agentId, userId string) *ExecutionContext {
	return &ExecutionContext{
		UserId:          userId,
		AgentId:         agentId,
		Items:           []Item{},
		Classifications: map[string]ClassificationResult{},
		Actions:         []ActionRecord{},
		Visited:         []string{},
	}
}

// HasCategory reports whether any item in the batch was classified as category
func (c *ExecutionContext) HasCategory(category string) bool {
	for _, item := range c.Items {
		if r, ok := c.Classifications[item.Id]; ok && r.Matches(category) {
			return true
		}
	}
	return false
}

// Item returns a pointer into Items so label updates are visible to later nodes
func (c *ExecutionContext) Item(id string) *Item {
	for i := range c.Items {
		if c.Items[i].Id == id {
			return &c.Items[i]
		}
	}
	return nil
}

type Summary struct {
	TotalItems    int                `json:"totalItems"`
	Classified    int                `json:"classified"`
	ByCategory    map[string]int     `json:"byCategory"`
	ByAction      map[ActionType]int `json:"byAction"`
	FailedActions int                `json:"failedActions"`
}

// Summarize counts classifications per category and successful actions per type
func (c *ExecutionContext) Summarize() Summary {
	s := Summary{
		TotalItems: len(c.Items),
		ByCategory: map[string]int{},
		ByAction:   map[ActionType]int{},
	}

	for _, r := range c.Classifications {
		s.Classified++
		s.ByCategory[r.Category]++
	}

	for _, a := range c.Actions {
		if a.Success {
			s.ByAction[a.Action]++
		} else {
			s.FailedActions++
		}
	}

	return s
}

type ExecutionLog struct {
	Id           string          `json:"id"`
	AgentId      string          `json:"agentId"`
	UserId       string          `json:"userId"`
	Status       ExecutionStatus `json:"status"`
	TriggeredBy  string          `json:"triggeredBy"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      *time.Time      `json:"endTime,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Details      []byte          `json:"details,omitempty"`
}

// ExecutionSnapshot is the document stored in ExecutionLog.Details
type ExecutionSnapshot struct {
	TriggeredBy string            `json:"triggeredBy"`
	Summary     Summary           `json:"summary"`
	Context     *ExecutionContext `json:"context"`
}

type ExecutionResult struct {
	LogId      string            `json:"logId"`
	Status     ExecutionStatus   `json:"status"`
	Context    *ExecutionContext `json:"context"`
	Summary    Summary           `json:"summary"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}
