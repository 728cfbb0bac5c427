package rewrite

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-backend/internal/shared/server/respond"
)

// Handler wires the rewrite endpoint.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches rewrite routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/rewrite-section", h.rewrite)
	rg.GET("/tones", h.tones)
}

type rewriteResponse struct {
	DocumentID string `json:"documentId"`
	SectionKey string `json:"sectionKey"`
	Title      string `json:"title"`
	Tone       string `json:"tone"`
	Content    string `json:"content"`
	Applied    bool   `json:"applied"`
	VersionID  string `json:"versionId,omitempty"`
}

func (h *Handler) rewrite(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set("documentId", req.DocumentID)

	res, err := h.Svc.RewriteSection(c.Request.Context(), req)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	if res.VersionID != "" {
		c.Set("versionId", res.VersionID)
	}
	respond.OK(c, rewriteResponse{
		DocumentID: res.DocumentID,
		SectionKey: res.SectionKey,
		Title:      res.Title,
		Tone:       res.Tone,
		Content:    res.Content,
		Applied:    res.Applied,
		VersionID:  res.VersionID,
	})
}

func (h *Handler) tones(c *gin.Context) {
	respond.OK(c, gin.H{
		"default": h.Svc.Tones.Default,
		"tones":   h.Svc.Tones.Names(),
	})
}
