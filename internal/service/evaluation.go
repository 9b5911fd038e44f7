package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scip/internal/anchor"
	"scip/internal/fingerprint"
	"scip/internal/metrics"
	"scip/internal/models"
	"scip/internal/repository"
	"scip/internal/risk"
)

// Stage is a step of the evaluation pipeline.
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageRejectedInput Stage = "REJECTED_INPUT"
	StageFingerprinted Stage = "FINGERPRINTED"
	StageScored        Stage = "SCORED"
	StageAnchored      Stage = "ANCHORED"
	StageAnchorFailed  Stage = "ANCHOR_FAILED"
	StageRecorded      Stage = "RECORDED"
	StageResponded     Stage = "RESPONDED"
)

const DefaultRecordTimeout = 5 * time.Second

// Evaluation is the result of one pipeline run.
type Evaluation struct {
	Record *models.EvaluationRecord
	// Indicators lists the configured indicators found in the content.
	Indicators []string
}

type EvaluationService interface {
	// Evaluate runs fingerprint, score, anchor and record for content submitted
	// by an already authenticated actor.
	Evaluate(ctx context.Context, actorID string, content []byte) (*Evaluation, error)
}

type EvaluationConfig struct {
	// Threshold separates ACCEPTED (score below) from REJECTED.
	Threshold float64
	// AnchorTimeout bounds the whole anchoring step.
	AnchorTimeout time.Duration
	// RecordTimeout bounds the audit write, which is not canceled with the
	// caller's context once started.
	RecordTimeout time.Duration
}

type matcher interface {
	Matches(content []byte) []string
}

type evaluationService struct {
	cfg       EvaluationConfig
	estimator risk.Estimator
	anchorer  anchor.Anchorer
	repo      repository.EvaluationRepository
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewEvaluationService(
	cfg EvaluationConfig,
	estimator risk.Estimator,
	anchorer anchor.Anchorer,
	repo repository.EvaluationRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) EvaluationService {
	if cfg.AnchorTimeout <= 0 {
		cfg.AnchorTimeout = anchor.DefaultTimeout
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = DefaultRecordTimeout
	}
	return &evaluationService{
		cfg:       cfg,
		estimator: estimator,
		anchorer:  anchorer,
		repo:      repo,
		metrics:   m,
		logger:    logger,
	}
}

func (s *evaluationService) Evaluate(ctx context.Context, actorID string, content []byte) (*Evaluation, error) {
	start := time.Now()
	log := s.logger.With(zap.String("actor_id", actorID))
	s.enter(log, StageReceived)

	if actorID == "" {
		s.metrics.EvaluationFailed("unauthorized")
		return nil, ErrUnauthorized
	}
	if len(bytes.TrimSpace(content)) == 0 {
		s.enter(log, StageRejectedInput)
		s.metrics.EvaluationFailed("invalid_input")
		return nil, ErrInvalidInput
	}

	fp := fingerprint.Of(content)
	log = log.With(zap.String("fingerprint", fingerprint.Short(fp)))
	s.enter(log, StageFingerprinted)

	score := s.estimator.Score(content)
	decision := risk.Decide(score, s.cfg.Threshold)
	var indicators []string
	if m, ok := s.estimator.(matcher); ok {
		indicators = m.Matches(content)
	}
	s.enter(log, StageScored, zap.Float64("risk_score", score), zap.String("decision", string(decision)))

	token, anchored := s.anchorFingerprint(ctx, log, fp)
	if anchored {
		s.enter(log, StageAnchored)
	} else {
		s.enter(log, StageAnchorFailed)
	}

	// A caller that left before recording started gets no record. Once the
	// write starts it runs to completion regardless of the caller.
	if err := ctx.Err(); err != nil {
		s.metrics.EvaluationFailed("canceled")
		return nil, fmt.Errorf("evaluation abandoned before recording: %w", err)
	}

	rec := &models.EvaluationRecord{
		ActorID:     actorID,
		Fingerprint: fp,
		RiskScore:   score,
		Decision:    decision,
		AnchorToken: token,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RecordTimeout)
	defer cancel()
	if err := s.repo.Create(writeCtx, rec); err != nil {
		log.Error("Failed to record evaluation", zap.Error(err))
		s.metrics.EvaluationFailed("persistence")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.enter(log, StageRecorded, zap.String("record_id", rec.ID))

	s.metrics.ObserveEvaluation(string(decision), time.Since(start))
	s.enter(log, StageResponded)
	return &Evaluation{Record: rec, Indicators: indicators}, nil
}

// anchorFingerprint never fails the pipeline. Any failure is logged and
// replaced by the sentinel token.
func (s *evaluationService) anchorFingerprint(ctx context.Context, log *zap.Logger, fp string) (string, bool) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.AnchorTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := s.anchorer.Anchor(actx, fp)
	s.metrics.ObserveAnchor(time.Since(start))

	if err == nil && receipt.Token == "" {
		err = &anchor.Error{Backend: receipt.Backend, Kind: anchor.KindMalformed, Err: errors.New("empty token")}
	}
	if err != nil {
		kind := anchor.KindOf(err)
		if kind == "" {
			// Anchorers outside this module may not classify their errors.
			kind = anchor.KindUnavailable
			if errors.Is(err, context.DeadlineExceeded) {
				kind = anchor.KindTimeout
			}
		}
		log.Warn("Anchoring failed, recording sentinel token",
			zap.String("kind", string(kind)), zap.Error(err))
		s.metrics.AnchorFailed(string(kind))
		return models.AnchorFailed, false
	}
	return receipt.Token, true
}

func (s *evaluationService) enter(log *zap.Logger, stage Stage, fields ...zap.Field) {
	log.Debug("Evaluation stage", append([]zap.Field{zap.String("stage", string(stage))}, fields...)...)
}
