package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"scip/internal/auditchain"
	"scip/internal/models"
)

// EvaluationRepository is the append-only audit store. There is deliberately
// no update or delete.
type EvaluationRepository interface {
	// Create assigns ID, CreatedAt, Seq and the chain link of rec and inserts
	// it in one transaction. On error nothing is stored.
	Create(ctx context.Context, rec *models.EvaluationRecord) error
	// ListByActor returns up to limit of the actor's records, newest first.
	ListByActor(ctx context.Context, actorID string, limit int) ([]*models.EvaluationRecord, error)
	// ListChain returns all of the actor's records, oldest first.
	ListChain(ctx context.Context, actorID string) ([]*models.EvaluationRecord, error)
}

type evaluationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewEvaluationRepository(db *sqlx.DB, logger *zap.Logger) EvaluationRepository {
	return &evaluationRepository{db: db, logger: logger, now: time.Now}
}

const evaluationColumns = `seq, id, actor_id, content_fingerprint, risk_score, decision, anchor_token, chain_prev, chain_hash, created_at`

func (r *evaluationRepository) Create(ctx context.Context, rec *models.EvaluationRecord) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to roll back evaluation insert", zap.Error(rbErr))
			}
		}
	}()

	if err = r.lockActor(ctx, tx, rec.ActorID); err != nil {
		return err
	}

	var head models.EvaluationRecord
	query := tx.Rebind(`SELECT ` + evaluationColumns + ` FROM evaluations WHERE actor_id = ? ORDER BY seq DESC LIMIT 1`)
	headErr := tx.GetContext(ctx, &head, query, rec.ActorID)
	hasHead := headErr == nil
	if headErr != nil && !errors.Is(headErr, sql.ErrNoRows) {
		return fmt.Errorf("failed to read chain head: %w", headErr)
	}

	// created_at never goes backwards for one actor, even if the clock does.
	createdAt := r.now().UTC().Truncate(time.Microsecond)
	if hasHead && head.CreatedAt.After(createdAt) {
		createdAt = head.CreatedAt.UTC()
	}

	rec.ID = uuid.NewString()
	rec.CreatedAt = createdAt
	auditchain.Seal(head.ChainHash, rec)

	insert := tx.Rebind(`INSERT INTO evaluations
		(id, actor_id, content_fingerprint, risk_score, decision, anchor_token, chain_prev, chain_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING seq`)
	err = tx.QueryRowxContext(ctx, insert,
		rec.ID, rec.ActorID, rec.Fingerprint, rec.RiskScore, string(rec.Decision),
		rec.AnchorToken, rec.ChainPrev, rec.ChainHash, rec.CreatedAt,
	).Scan(&rec.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit evaluation: %w", err)
	}
	return nil
}

// lockActor serializes writers of one actor's chain. SQLite runs with a
// single connection, so only PostgreSQL needs an explicit lock.
func (r *evaluationRepository) lockActor(ctx context.Context, tx *sqlx.Tx, actorID string) error {
	if r.db.DriverName() != DriverPostgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, actorID); err != nil {
		return fmt.Errorf("failed to lock actor chain: %w", err)
	}
	return nil
}

func (r *evaluationRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]*models.EvaluationRecord, error) {
	records := []*models.EvaluationRecord{}
	query := r.db.Rebind(`SELECT ` + evaluationColumns + ` FROM evaluations WHERE actor_id = ? ORDER BY seq DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &records, query, actorID, limit); err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	return records, nil
}

func (r *evaluationRepository) ListChain(ctx context.Context, actorID string) ([]*models.EvaluationRecord, error) {
	records := []*models.EvaluationRecord{}
	query := r.db.Rebind(`SELECT ` + evaluationColumns + ` FROM evaluations WHERE actor_id = ? ORDER BY seq ASC`)
	if err := r.db.SelectContext(ctx, &records, query, actorID); err != nil {
		return nil, fmt.Errorf("failed to list evaluation chain: %w", err)
	}
	return records, nil
}
