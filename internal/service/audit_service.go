package service

import (
	"context"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"

	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Log records an audit entry. Persistence failures are logged and swallowed.
func (s *auditService) Log(ctx context.Context, entry *domain.AuditLog) {
	ev := s.log.Info().
		Str("action", string(entry.Action)).
		Str("rail", entry.Rail).
		Str("resource_id", entry.ResourceID)
	if entry.BatchID != nil {
		ev = ev.Int64("batch_id", *entry.BatchID)
	}
	ev.Str("details", entry.Details).Msg("audit")

	if s.repo != nil {
		if err := s.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}
}
