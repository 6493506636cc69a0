package service

import "settlement-reconciler/internal/core/domain"

// BatchCounts tallies the canonical statuses of a batch's matched instructions.
type BatchCounts struct {
	Success   int `json:"success"`
	Pending   int `json:"pending"`
	Scheduled int `json:"scheduled"`
	Failed    int `json:"failed"`
	Deleted   int `json:"deleted"`
}

// Add counts one instruction status.
func (c *BatchCounts) Add(s domain.Status) {
	switch s {
	case domain.StatusSuccess:
		c.Success++
	case domain.StatusScheduled:
		c.Scheduled++
	case domain.StatusFailed:
		c.Failed++
	case domain.StatusDeleted:
		c.Deleted++
	default:
		c.Pending++
	}
}

// Matched is the number of instructions with a classification.
func (c BatchCounts) Matched() int {
	return c.Success + c.Pending + c.Scheduled + c.Failed + c.Deleted
}

// Decide returns the batch status implied by the counts.
func (c BatchCounts) Decide() domain.Status {
	switch {
	case c.Success > 0 && c.Pending+c.Deleted == 0:
		return domain.StatusSuccess
	case c.Pending > 0 || c.Success > 0:
		return domain.StatusPending
	case c.Scheduled > 0:
		return domain.StatusScheduled
	default:
		return domain.StatusFailed
	}
}

// Aggregate is a batch-level decision over accumulated outcomes.
type Aggregate struct {
	Counts   BatchCounts
	Expected int
	Status   domain.Status
}

// AggregateOutcomes counts outcomes and decides the batch status.
func AggregateOutcomes(outcomes map[int64]domain.Outcome, expected int) Aggregate {
	var counts BatchCounts
	for _, o := range outcomes {
		counts.Add(o.Status)
	}
	return Aggregate{Counts: counts, Expected: expected, Status: counts.Decide()}
}

// Complete reports whether every expected instruction has been matched.
// Partial responses accumulate across polls until this holds.
func (a Aggregate) Complete() bool {
	return a.Counts.Matched() >= a.Expected
}
