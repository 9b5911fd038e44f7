package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scip/internal/auditchain"
	"scip/internal/models"
	"scip/internal/repository"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// AuditService reads an actor's own audit trail. Scoping happens in the
// query, so records of other actors are never loaded.
type AuditService interface {
	ListFor(ctx context.Context, actorID string, limit int) ([]*models.EvaluationRecord, error)
	VerifyChain(ctx context.Context, actorID string) (auditchain.Report, error)
}

type auditService struct {
	repo   repository.EvaluationRepository
	logger *zap.Logger
}

func NewAuditService(repo repository.EvaluationRepository, logger *zap.Logger) AuditService {
	return &auditService{repo: repo, logger: logger}
}

// ListFor returns the actor's records newest first. A non-positive limit
// means DefaultListLimit; larger limits are capped at MaxListLimit.
func (s *auditService) ListFor(ctx context.Context, actorID string, limit int) ([]*models.EvaluationRecord, error) {
	if actorID == "" {
		return nil, ErrUnauthorized
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	records, err := s.repo.ListByActor(ctx, actorID, limit)
	if err != nil {
		s.logger.Error("Failed to list evaluations", zap.String("actor_id", actorID), zap.Error(err))
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	return records, nil
}

// VerifyChain recomputes the actor's hash chain from the first record.
func (s *auditService) VerifyChain(ctx context.Context, actorID string) (auditchain.Report, error) {
	if actorID == "" {
		return auditchain.Report{}, ErrUnauthorized
	}
	records, err := s.repo.ListChain(ctx, actorID)
	if err != nil {
		s.logger.Error("Failed to load evaluation chain", zap.String("actor_id", actorID), zap.Error(err))
		return auditchain.Report{}, fmt.Errorf("failed to load evaluation chain: %w", err)
	}

	report := auditchain.Verify(actorID, records)
	if !report.Valid {
		s.logger.Warn("Audit chain verification failed",
			zap.String("actor_id", actorID),
			zap.String("broken_at", report.BrokenAt),
			zap.String("reason", report.Reason))
	}
	return report, nil
}
