package service

import (
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/rulebook"

	"github.com/rs/zerolog"
)

// Classification is the canonical reading of one external record.
type Classification struct {
	Status           domain.Status
	ReasonCode       domain.ReasonCode
	ReasonMessage    string
	RewriteReference bool // rail outage: resubmit under a fresh reference
	Known            bool // false when the rulebook has no entry for the status code
}

// Classifier maps raw rail codes to canonical statuses using one rail's rulebook.
type Classifier struct {
	rb  *rulebook.Rulebook
	log zerolog.Logger
}

// NewClassifier creates a classifier for a rulebook.
func NewClassifier(rb *rulebook.Rulebook, log zerolog.Logger) *Classifier {
	return &Classifier{rb: rb, log: log}
}

// Classify maps a record to a canonical status. now is the instant the
// record is evaluated, used for cutoff and scheduling gates.
func (c *Classifier) Classify(rec domain.ExternalStatusRecord, settlementDate, now time.Time) Classification {
	rule, ok := c.rb.Lookup(rec.StatusCode, rec.ErrorCode)
	if !ok {
		c.log.Warn().
			Str("record_key", rec.Key()).
			Str("status_code", rec.StatusCode).
			Str("error_code", rec.ErrorCode).
			Msg("unknown rail status code, treating as pending")
		return Classification{Status: domain.StatusPending}
	}

	switch rule.Kind {
	case rulebook.KindQueued:
		if rec.ErrorCode != "" {
			return c.failed(rule, rec)
		}
		if rec.ScheduledFor != nil && dayOf(*rec.ScheduledFor).After(c.rb.Today(now)) {
			return Classification{Status: domain.StatusScheduled, Known: true}
		}
		return Classification{Status: domain.StatusPending, Known: true}

	case rulebook.KindSuccess:
		// Same-day reversals are still possible before the cutoff.
		if now.Before(c.rb.CutoffOn(settlementDate)) {
			return Classification{Status: domain.StatusPending, Known: true}
		}
		return Classification{Status: domain.StatusSuccess, Known: true}

	case rulebook.KindOutage:
		return Classification{Status: domain.StatusPending, RewriteReference: true, Known: true}

	case rulebook.KindReturned:
		code := rec.ReturnReason
		if code == "" {
			code = rec.ErrorCode
		}
		msg := rec.ErrorMessage
		if msg == "" {
			msg = code
		}
		return Classification{
			Status:        domain.StatusFailed,
			ReasonCode:    c.rb.ReasonFor(code),
			ReasonMessage: msg,
			Known:         true,
		}

	case rulebook.KindFailed:
		return c.failed(rule, rec)

	case rulebook.KindDeleted:
		return Classification{
			Status:        domain.StatusDeleted,
			ReasonCode:    domain.ReasonPurgedByRail,
			ReasonMessage: errorText(rec),
			Known:         true,
		}

	default:
		return Classification{Status: domain.StatusPending, Known: true}
	}
}

func (c *Classifier) failed(rule rulebook.Rule, rec domain.ExternalStatusRecord) Classification {
	reason := domain.ReasonCode(rule.Reason)
	if reason == "" {
		reason = c.rb.ReasonFor(rec.ErrorCode)
	}
	return Classification{
		Status:        domain.StatusFailed,
		ReasonCode:    reason,
		ReasonMessage: errorText(rec),
		Known:         true,
	}
}

func errorText(rec domain.ExternalStatusRecord) string {
	switch {
	case rec.ErrorCode != "" && rec.ErrorMessage != "":
		return rec.ErrorCode + ": " + rec.ErrorMessage
	case rec.ErrorCode != "":
		return rec.ErrorCode
	default:
		return rec.ErrorMessage
	}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
