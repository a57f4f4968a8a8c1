package rebalance

import (
	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/models"
)

// State is the freshness of the latest allocation.
type State string

const (
	Fresh State = "fresh"
	Stale State = "stale"
)

type Decision struct {
	State     State     `json:"state"`
	Reason    string    `json:"reason"`
	DaysSince int       `json:"days_since"` // -1 when no allocation exists
	Latest    date.Date `json:"latest,omitzero"`
}

type Status string

const (
	StatusFresh      Status = "fresh"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
	StatusRebalanced Status = "rebalanced"
	StatusError      Status = "error" // storage failure, returned alongside an error
)

type Result struct {
	Status     Status             `json:"status"`
	Reason     string             `json:"reason"`
	Decision   Decision           `json:"decision"`
	Allocation *models.Allocation `json:"allocation,omitempty"`
	RunID      string             `json:"run_id"`
}
