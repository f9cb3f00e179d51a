package types

import (
	"time"
)

// Agent binds a flow to the user whose mailbox it runs against
type Agent struct {
	Id        string    `json:"id"`
	UserId    string    `json:"userId"`
	Name      string    `json:"name"`
	Flow      Flow      `json:"flow"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const ProviderGoogle = "google"

// OAuthToken is the stored mailbox credential for a user
type OAuthToken struct {
	UserId       string    `json:"userId"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"tokenType"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NeedsRefresh returns true if the token is expired or expires within skew
func (t *OAuthToken) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return !t.ExpiresAt.After(now.Add(skew))
}

// APIKey is a user's credential for a classification provider
type APIKey struct {
	UserId    string    `json:"userId"`
	Provider  string    `json:"provider"`
	Key       string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type ScheduleFrequency string

const (
	FrequencyMinutes ScheduleFrequency = "minutes"
	FrequencyHourly  ScheduleFrequency = "hourly"
	FrequencyDaily   ScheduleFrequency = "daily"
	FrequencyWeekly  ScheduleFrequency = "weekly"
)

// Period returns the duration of one unit of the frequency
func (f ScheduleFrequency) Period() time.Duration {
	switch f {
	case FrequencyMinutes:
		return time.Minute
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

type Schedule struct {
	AgentId   string            `json:"agentId"`
	UserId    string            `json:"userId"`
	Frequency ScheduleFrequency `json:"frequency"`
	Interval  int               `json:"interval"`
	NextRunAt time.Time         `json:"nextRunAt"`
	LastRunAt *time.Time        `json:"lastRunAt,omitempty"`
	Active    bool              `json:"active"`
}

// Next computes the run after now. Missed runs are skipped rather than replayed.
func (s *Schedule) Next(now time.Time) time.Time {
	step := s.Frequency.Period() * time.Duration(max(s.Interval, 1))
	if step <= 0 {
		step = time.Hour
	}

	next := s.NextRunAt
	if next.IsZero() {
		next = now
	}
	if !next.After(now) {
		missed := now.Sub(next)/step + 1
		next = next.Add(missed * step)
	}
	return next
}
