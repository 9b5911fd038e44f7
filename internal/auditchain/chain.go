// Package auditchain links an actor's evaluation records into a hash chain so
// that edits, deletions and reordering of stored rows can be detected.
package auditchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"scip/internal/models"
)

// Hash computes the chain hash of rec given the hash of the record before it.
// All fields that make up the audit statement take part; Seq does not, since
// it is assigned by the store after the hash is computed.
func Hash(prev string, rec *models.EvaluationRecord) string {
	fields := []string{
		prev,
		rec.ID,
		rec.ActorID,
		rec.Fingerprint,
		strconv.FormatFloat(rec.RiskScore, 'f', -1, 64),
		string(rec.Decision),
		rec.AnchorToken,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Seal sets ChainPrev and ChainHash on rec.
func Seal(prev string, rec *models.EvaluationRecord) {
	rec.ChainPrev = prev
	rec.ChainHash = Hash(prev, rec)
}

// Report is the outcome of verifying one actor's chain.
type Report struct {
	ActorID  string `json:"actor_id"`
	Records  int    `json:"records"`
	Valid    bool   `json:"valid"`
	BrokenAt string `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Head     string `json:"head,omitempty"`
}

// Verify walks records oldest first and reports the first broken link.
func Verify(actorID string, records []*models.EvaluationRecord) Report {
	report := Report{ActorID: actorID, Records: len(records), Valid: true}
	prev := ""
	for _, rec := range records {
		switch {
		case rec.ActorID != actorID:
			return broken(report, rec, "record belongs to another actor")
		case rec.ChainPrev != prev:
			return broken(report, rec, fmt.Sprintf("expected previous hash %q", prev))
		case Hash(prev, rec) != rec.ChainHash:
			return broken(report, rec, "record contents do not match its hash")
		}
		prev = rec.ChainHash
	}
	report.Head = prev
	return report
}

func broken(r Report, rec *models.EvaluationRecord, reason string) Report {
	r.Valid = false
	r.BrokenAt = rec.ID
	r.Reason = reason
	return r
}
