package documents

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document and version routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.create)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.PATCH("/documents/:id", h.update)
	rg.GET("/documents/:id/structured", h.structured)
	rg.GET("/versions", h.listVersions)
	rg.GET("/versions/:versionId", h.getVersion)
	rg.POST("/restore", h.restore)
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	doc, err := h.Svc.CreateWithInitialVersion(c.Request.Context(), NewDocument{
		Kind:       req.Kind,
		Title:      req.Title,
		Tone:       req.Tone,
		TargetOrg:  req.TargetOrg,
		JobContext: req.JobContext,
		Content:    req.Content,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set("documentId", doc.ID)
	respond.JSON(c, http.StatusCreated, ToResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	docs, err := h.Svc.List(c.Request.Context(), Kind(strings.TrimSpace(c.Query("kind"))), limit, offset)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	resp := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, ToResponse(doc))
	}
	respond.OK(c, resp)
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, ToResponse(doc))
}

func (h *Handler) update(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	id := c.Param("id")
	c.Set("documentId", id)
	// Edits through this endpoint are manual; other tags belong to the
	// operations that write them.
	if tag := strings.TrimSpace(req.SourceTag); tag != "" && tag != TagManual {
		respond.FromError(c, apperr.Validation("sourceTag", "must be "+TagManual))
		return
	}
	doc, v, err := h.Svc.UpdateAndCreateVersion(c.Request.Context(), id, Patch{
		Title:      req.Title,
		Tone:       req.Tone,
		TargetOrg:  req.TargetOrg,
		JobContext: req.JobContext,
		Content:    req.Content,
		IsDefault:  req.IsDefault,
	}, TagManual)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set("versionId", v.ID)
	respond.OK(c, gin.H{
		"document": ToResponse(doc),
		"version":  ToVersionResponse(v),
	})
}

func (h *Handler) structured(c *gin.Context) {
	doc, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, StructuredResponse{
		DocumentID: doc.ID,
		Kind:       doc.Kind,
		Sections:   doc.Structured.Sections,
	})
}

func (h *Handler) listVersions(c *gin.Context) {
	documentID := strings.TrimSpace(c.Query("documentId"))
	c.Set("documentId", documentID)
	versions, err := h.Svc.ListVersions(c.Request.Context(), documentID, queryInt(c, "limit", 20))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	resp := make([]VersionResponse, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, ToVersionResponse(v))
	}
	respond.OK(c, resp)
}

func (h *Handler) getVersion(c *gin.Context) {
	documentID := strings.TrimSpace(c.Query("documentId"))
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "documentId is required", nil)
		return
	}
	v, err := h.Svc.GetVersion(c.Request.Context(), documentID, c.Param("versionId"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, ToVersionResponse(v))
}

func (h *Handler) restore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set("documentId", req.DocumentID)
	doc, v, err := h.Svc.RestoreVersion(c.Request.Context(), req.DocumentID, req.VersionID)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set("versionId", v.ID)
	respond.OK(c, gin.H{
		"document": ToResponse(doc),
		"version":  ToVersionResponse(v),
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
