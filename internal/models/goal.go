package models

import (
	"strings"
	"time"
)

// ParsedGoalCandidate is a savings goal read out of free text. It is only persisted when
// confidence clears the threshold and both Name and TargetAmount are present.
type ParsedGoalCandidate struct {
	Name         *string    `json:"name"`
	TargetAmount *float64   `json:"target_amount"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Confidence   float64    `json:"confidence"`
}

// Materializable reports whether the candidate carries enough to create a SavingsGoal
func (c *ParsedGoalCandidate) Materializable() bool {
	return c != nil && c.Name != nil && strings.TrimSpace(*c.Name) != "" && c.TargetAmount != nil && *c.TargetAmount > 0
}

// UsageStatus is the outcome of a daily quota check
type UsageStatus struct {
	Allowed   bool      `json:"allowed"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}
