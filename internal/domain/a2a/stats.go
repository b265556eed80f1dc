package a2a

import (
	"math"
	"time"
)

// DefaultArchiveAfter is the age past completion at which cleanup archives
// terminal tasks.
const DefaultArchiveAfter = 30 * 24 * time.Hour

// Stats is the aggregate snapshot returned by GetStats.
type Stats struct {
	TotalTasks        int64 `json:"total_tasks"`
	ActiveTasks       int64 `json:"active_tasks"`
	TotalMessages     int64 `json:"total_messages"`
	TotalInteractions int64 `json:"total_interactions"`
	ActiveSessions    int64 `json:"active_sessions"`
	ExpiredSessions   int64 `json:"expired_sessions"`
}

// CleanupResult reports the rows touched by one cleanup transaction.
type CleanupResult struct {
	ExpiredSessions int64     `json:"expired_sessions"`
	ArchivedTasks   int64     `json:"archived_tasks"`
	RanAt           time.Time `json:"ran_at"`
}

// Timeframe selects the look-back window of interaction stats.
type Timeframe string

const (
	TimeframeHour  Timeframe = "hour"
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// ParseTimeframe maps s to a Timeframe, falling back to a day.
func ParseTimeframe(s string) Timeframe {
	switch Timeframe(s) {
	case TimeframeHour, TimeframeDay, TimeframeWeek, TimeframeMonth:
		return Timeframe(s)
	default:
		return TimeframeDay
	}
}

// Window returns the look-back duration of t.
func (t Timeframe) Window() time.Duration {
	switch t {
	case TimeframeHour:
		return time.Hour
	case TimeframeWeek:
		return 7 * 24 * time.Hour
	case TimeframeMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// InteractionStats summarizes one user's agent interactions over a window.
type InteractionStats struct {
	UserID         int64     `json:"user_id"`
	Timeframe      Timeframe `json:"timeframe"`
	Total          int64     `json:"total_interactions"`
	Successful     int64     `json:"successful_interactions"`
	AvgExecutionMS *float64  `json:"avg_execution_time_ms,omitempty"`
	UniqueAgents   int64     `json:"unique_agents_used"`
	ActionTypes    []string  `json:"action_types"`
}

// PerformanceMetrics summarizes task throughput over the last DaysBack days.
type PerformanceMetrics struct {
	DaysBack             int      `json:"days_back"`
	TotalTasks           int64    `json:"total_tasks"`
	CompletedTasks       int64    `json:"completed_tasks"`
	FailedTasks          int64    `json:"failed_tasks"`
	AvgCompletionSeconds *float64 `json:"avg_completion_time_seconds,omitempty"`
	UniqueUsers          int64    `json:"unique_users"`
	AgentsUsed           int64    `json:"agents_used"`
	SuccessRate          float64  `json:"success_rate"`
}

// ComputeSuccessRate sets SuccessRate to the completed share in percent,
// rounded to two decimals.
func (m *PerformanceMetrics) ComputeSuccessRate() {
	if m.TotalTasks == 0 {
		m.SuccessRate = 0
		return
	}
	rate := float64(m.CompletedTasks) / float64(m.TotalTasks) * 100
	m.SuccessRate = math.Round(rate*100) / 100
}
