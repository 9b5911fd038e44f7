package models

import "time"

// Decision is the accept/reject outcome of an evaluation.
type Decision string

const (
	DecisionAccepted Decision = "ACCEPTED"
	DecisionRejected Decision = "REJECTED"
)

// AnchorFailed is stored in place of an anchor token when the ledger could not
// be reached. It never affects the decision.
const AnchorFailed = "ANCHOR_FAILED"

// EvaluationRecord is one immutable entry of an actor's audit trail.
type EvaluationRecord struct {
	ID          string    `db:"id" json:"record_id"`
	Seq         int64     `db:"seq" json:"-"`
	ActorID     string    `db:"actor_id" json:"actor_id"`
	Fingerprint string    `db:"content_fingerprint" json:"content_fingerprint"`
	RiskScore   float64   `db:"risk_score" json:"risk_score"`
	Decision    Decision  `db:"decision" json:"decision"`
	AnchorToken string    `db:"anchor_token" json:"anchor_token"`
	ChainPrev   string    `db:"chain_prev" json:"chain_prev"`
	ChainHash   string    `db:"chain_hash" json:"chain_hash"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Anchored reports whether the record carries a real anchor token.
func (r *EvaluationRecord) Anchored() bool {
	return r.AnchorToken != "" && r.AnchorToken != AnchorFailed
}
