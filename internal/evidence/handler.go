package evidence

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio-backend/internal/shared/server/middleware"
	"portfolio-backend/internal/shared/server/respond"
)

const maxUploadSize = 10 << 20 // 10MB

// Handler wires evidence endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches evidence routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/evidence", h.upload)
	rg.GET("/evidence", h.search)
	rg.GET("/evidence/uploads", h.uploads)
}

type uploadResponse struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	MimeType  string    `json:"mimeType"`
	SizeBytes int64     `json:"sizeBytes"`
	Snippets  int       `json:"snippets,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	upload, snippets, err := h.Svc.Ingest(c.Request.Context(), middleware.AdminIDFromContext(c), fileHeader.Filename, file)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, uploadResponse{
		ID:        upload.ID,
		FileName:  upload.FileName,
		MimeType:  upload.MimeType,
		SizeBytes: upload.SizeBytes,
		Snippets:  len(snippets),
		CreatedAt: upload.CreatedAt,
	})
}

func (h *Handler) search(c *gin.Context) {
	limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	snippets, err := h.Svc.Lookup(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, snippets)
}

func (h *Handler) uploads(c *gin.Context) {
	limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	list, err := h.Svc.ListUploads(c.Request.Context(), limit)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	resp := make([]uploadResponse, 0, len(list))
	for _, u := range list {
		resp = append(resp, uploadResponse{
			ID:        u.ID,
			FileName:  u.FileName,
			MimeType:  u.MimeType,
			SizeBytes: u.SizeBytes,
			CreatedAt: u.CreatedAt,
		})
	}
	respond.OK(c, resp)
}
