package optimize

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"portfolio-backend/internal/documents"
	"portfolio-backend/internal/review"
	"portfolio-backend/internal/shared/server/respond"
	"portfolio-backend/internal/shared/telemetry"
)

// Handler wires the optimization endpoints. Queue may be nil, in which case
// the async endpoint answers 503.
type Handler struct {
	Svc   *Orchestrator
	Queue Enqueuer
	NewID func() string
	Now   func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(svc *Orchestrator, queue Enqueuer) *Handler {
	return &Handler{
		Svc:   svc,
		Queue: queue,
		NewID: uuid.NewString,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes attaches optimization routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/optimize-loop", h.optimize)
	rg.POST("/optimize-loop/async", h.enqueue)
}

type optimizeResponse struct {
	DocumentID string            `json:"documentId"`
	VersionID  string            `json:"versionId"`
	Content    documents.Content `json:"content"`
	Score      float64           `json:"score"`
	Feedback   string            `json:"feedback"`
	Iterations int               `json:"iterations"`
	Converged  bool              `json:"converged"`
	Humanized  bool              `json:"humanized"`
	Outcome    Outcome           `json:"outcome"`
	Review     review.Result     `json:"review"`
}

type enqueueResponse struct {
	JobID      string `json:"jobId"`
	DocumentID string `json:"documentId"`
	Status     string `json:"status"`
}

func (h *Handler) optimize(c *gin.Context) {
	var p Params
	if err := c.ShouldBindJSON(&p); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	p.RequestID = c.GetString("requestId")
	c.Set("documentId", p.DocumentID)

	res, err := h.Svc.Run(c.Request.Context(), p)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set("versionId", res.VersionID)
	c.Set("outcome", string(res.Outcome))
	respond.OK(c, optimizeResponse{
		DocumentID: res.DocumentID,
		VersionID:  res.VersionID,
		Content:    res.Content,
		Score:      res.Score,
		Feedback:   res.Feedback,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Humanized:  res.Humanized,
		Outcome:    res.Outcome,
		Review:     res.Review,
	})
}

func (h *Handler) enqueue(c *gin.Context) {
	if h.Queue == nil {
		respond.Error(c, http.StatusServiceUnavailable, "queue_not_configured", "Background optimization is not configured", nil)
		return
	}
	var p Params
	if err := c.ShouldBindJSON(&p); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	p.DocumentID = strings.TrimSpace(p.DocumentID)
	p.RequestID = c.GetString("requestId")
	c.Set("documentId", p.DocumentID)

	if err := p.validate(); err != nil {
		respond.FromError(c, err)
		return
	}
	if _, err := h.Svc.Docs.Get(c.Request.Context(), p.DocumentID); err != nil {
		respond.FromError(c, err)
		return
	}

	job := Job{ID: h.NewID(), Params: p, EnqueuedAt: h.Now()}
	c.Set("jobId", job.ID)
	if err := h.Queue.Enqueue(c.Request.Context(), job); err != nil {
		telemetry.Error("optimize.enqueue_failed", map[string]any{
			"request_id":  p.RequestID,
			"document_id": p.DocumentID,
			"job_id":      job.ID,
			"error":       err.Error(),
		})
		respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "Could not queue optimization", nil)
		return
	}
	telemetry.Info("optimize.enqueued", map[string]any{
		"request_id":  p.RequestID,
		"document_id": p.DocumentID,
		"job_id":      job.ID,
	})
	respond.JSON(c, http.StatusAccepted, enqueueResponse{JobID: job.ID, DocumentID: p.DocumentID, Status: "queued"})
}
