package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scip/internal/fingerprint"
	"scip/internal/middleware"
	"scip/internal/models"
	"scip/internal/service"
)

// MaxContentBytes caps the request body of a submission.
const MaxContentBytes = 1 << 20

type EvaluationHandler struct {
	evaluations service.EvaluationService
	audit       service.AuditService
	logger      *zap.Logger
}

func NewEvaluationHandler(evaluations service.EvaluationService, audit service.AuditService, logger *zap.Logger) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations, audit: audit, logger: logger}
}

// EvaluationResponse is a record plus the short fingerprint shown to users
// and the indicators that contributed to the score.
type EvaluationResponse struct {
	*models.EvaluationRecord
	CommitHash string   `json:"commit_hash"`
	Indicators []string `json:"indicators"`
}

func (h *EvaluationHandler) AnalyzeCommit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxContentBytes)

	var req models.AnalyzeCommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ev, err := h.evaluations.Evaluate(c.Request.Context(), middleware.ActorID(c), []byte(req.Text()))
	if err != nil {
		respondError(c, h.logger, err, "Failed to record evaluation")
		return
	}

	indicators := ev.Indicators
	if indicators == nil {
		indicators = []string{}
	}
	c.JSON(http.StatusOK, EvaluationResponse{
		EvaluationRecord: ev.Record,
		CommitHash:       fingerprint.Short(ev.Record.Fingerprint),
		Indicators:       indicators,
	})
}

func (h *EvaluationHandler) ListLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			middleware.AbortWithError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.audit.ListFor(c.Request.Context(), middleware.ActorID(c), limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list evaluations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": records})
}

func (h *EvaluationHandler) VerifyLogs(c *gin.Context) {
	report, err := h.audit.VerifyChain(c.Request.Context(), middleware.ActorID(c))
	if err != nil {
		respondError(c, h.logger, err, "Failed to verify evaluations")
		return
	}
	c.JSON(http.StatusOK, report)
}
