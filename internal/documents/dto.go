package documents

import (
	"time"

	"portfolio-backend/internal/structured"
)

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Title        string    `json:"title"`
	IsDefault    bool      `json:"isDefault"`
	Meta         Meta      `json:"meta"`
	Content      Content   `json:"content"`
	VersionCount int       `json:"versionCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// VersionResponse is the outward-facing representation of a version.
type VersionResponse struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"documentId"`
	Title      string          `json:"title"`
	Tone       string          `json:"tone"`
	Content    Content         `json:"content"`
	SourceTag  string          `json:"sourceTag"`
	Review     *ReviewSnapshot `json:"review,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// StructuredResponse exposes the section projection of a document.
type StructuredResponse struct {
	DocumentID string               `json:"documentId"`
	Kind       Kind                 `json:"kind"`
	Sections   []structured.Section `json:"sections"`
}

type createRequest struct {
	Kind       Kind    `json:"kind"`
	Title      string  `json:"title"`
	Tone       string  `json:"tone"`
	TargetOrg  string  `json:"targetOrg"`
	JobContext string  `json:"jobContext"`
	Content    Content `json:"content"`
	IsDefault  bool    `json:"isDefault"`
}

type patchRequest struct {
	Title      *string  `json:"title"`
	Tone       *string  `json:"tone"`
	TargetOrg  *string  `json:"targetOrg"`
	JobContext *string  `json:"jobContext"`
	Content    *Content `json:"content"`
	IsDefault  *bool    `json:"isDefault"`
	SourceTag  string   `json:"sourceTag"`
}

type restoreRequest struct {
	DocumentID string `json:"documentId"`
	VersionID  string `json:"versionId"`
}

// ToResponse converts a document for API output.
func ToResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		ID:           doc.ID,
		Kind:         doc.Kind,
		Title:        doc.Title,
		IsDefault:    doc.IsDefault,
		Meta:         doc.Meta,
		Content:      doc.Content,
		VersionCount: doc.VersionCount,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

// ToVersionResponse converts a version for API output.
func ToVersionResponse(v Version) VersionResponse {
	return VersionResponse{
		ID:         v.ID,
		DocumentID: v.DocumentID,
		Title:      v.Title,
		Tone:       v.Tone,
		Content:    v.Content,
		SourceTag:  v.SourceTag,
		Review:     v.Review,
		CreatedAt:  v.CreatedAt,
	}
}
