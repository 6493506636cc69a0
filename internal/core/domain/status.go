package domain

import "fmt"

// Status is the rail-agnostic lifecycle state shared by instructions and
// settlement batches.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusPending   Status = "PENDING"
	StatusScheduled Status = "SCHEDULED"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusDeleted   Status = "DELETED"
)

var transitions = map[Status][]Status{
	StatusSubmitted: {StatusPending, StatusScheduled, StatusSuccess, StatusFailed, StatusDeleted},
	StatusPending:   {StatusPending, StatusScheduled, StatusSuccess, StatusFailed, StatusDeleted},
	StatusScheduled: {StatusPending, StatusScheduled, StatusSuccess, StatusFailed, StatusDeleted},
}

// ParseStatus converts a stored value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the canonical states.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusPending, StatusScheduled, StatusSuccess, StatusFailed, StatusDeleted:
		return true
	}
	return false
}

// IsTerminal returns true if no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusDeleted
}

// IsFailure returns true for FAILED and its DELETED variant.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusDeleted
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SubmissionStatus is the answer of a rail's cheap pre-check on a batch.
type SubmissionStatus string

const (
	SubmissionConfirmed SubmissionStatus = "CONFIRMED"
	SubmissionNotFound  SubmissionStatus = "NOT_FOUND"
	SubmissionDeleted   SubmissionStatus = "DELETED"
	SubmissionPending   SubmissionStatus = "PENDING"
)

// IsRejected returns true when the rail no longer knows the batch.
func (s SubmissionStatus) IsRejected() bool {
	return s == SubmissionNotFound || s == SubmissionDeleted
}

// ReasonCode classifies why an instruction failed.
type ReasonCode string

const (
	ReasonBadAccountNumber ReasonCode = "BAD_ACCOUNT_NUMBER"
	ReasonNameMismatch     ReasonCode = "NAME_MISMATCH"
	ReasonOther            ReasonCode = "OTHER"
	ReasonPurgedByRail     ReasonCode = "PURGED_BY_RAIL"
	ReasonNotFoundOnRail   ReasonCode = "NOT_FOUND_ON_RAIL"
)
