package server

import (
	"time"

	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/service"
)

type RegisterDocumentRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	PageCount int    `json:"pageCount"`
}

type PageCountRequest struct {
	PageCount int `json:"pageCount"`
}

type DocumentResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PageCount   int       `json:"pageCount"`
	CreatedAt   time.Time `json:"createdAt"`
	Deleted     bool      `json:"deleted"`
	PublicToken string    `json:"publicToken,omitempty"`
}

type LinkResponse struct {
	PublicToken string     `json:"publicToken"`
	DocumentID  string     `json:"documentId"`
	Active      bool       `json:"active"`
	ViewCount   int64      `json:"viewCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

type ViewResponse struct {
	DocumentID  string `json:"documentId"`
	Name        string `json:"name"`
	PageCount   int    `json:"pageCount"`
	PublicToken string `json:"publicToken,omitempty"`
}

type OpenSessionRequest struct {
	SessionToken string `json:"sessionToken,omitempty"`
	Email        string `json:"email,omitempty"`
}

type SessionResponse struct {
	Token          string     `json:"sessionToken"`
	DocumentID     string     `json:"documentId"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	TotalPages     int        `json:"totalPages"`
	UniquePages    int        `json:"uniquePages"`
	TotalDuration  float64    `json:"totalDuration"`
	IsAdmin        bool       `json:"isAdmin"`
}

// EventRequest is one telemetry ping. Omitted fields take their defaults.
type EventRequest struct {
	SessionToken    string   `json:"sessionToken"`
	DocumentRef     string   `json:"documentRef,omitempty"`
	Page            *int     `json:"page"`
	Duration        *float64 `json:"duration,omitempty"`
	ScrollDepth     *float64 `json:"scrollDepth,omitempty"`
	ZoomLevel       *float64 `json:"zoomLevel,omitempty"`
	TimeToFirstView *float64 `json:"timeToFirstView,omitempty"`
	IsComplete      bool     `json:"isComplete,omitempty"`
	UpdateOnly      bool     `json:"updateOnly,omitempty"`
}

type EventResponse struct {
	Outcome   string            `json:"outcome"`
	Anomalies []service.Anomaly `json:"anomalies"`
	Session   SessionResponse   `json:"session"`
}

func documentResponse(doc *model.Document, publicToken string) DocumentResponse {
	return DocumentResponse{
		ID:          doc.ID,
		Name:        doc.Name,
		PageCount:   doc.PageCount,
		CreatedAt:   doc.CreatedAt,
		Deleted:     doc.Deleted(),
		PublicToken: publicToken,
	}
}

func linkResponse(link *model.LinkMapping) LinkResponse {
	return LinkResponse{
		PublicToken: link.PublicToken,
		DocumentID:  link.DocumentID,
		Active:      link.Active,
		ViewCount:   link.ViewCount,
		CreatedAt:   link.CreatedAt,
		LastUsedAt:  link.LastUsedAt,
	}
}

func sessionResponse(session *model.ViewingSession) SessionResponse {
	return SessionResponse{
		Token:          session.Token,
		DocumentID:     session.DocumentID,
		Status:         string(session.Status),
		StartedAt:      session.StartedAt,
		EndedAt:        session.EndedAt,
		LastActivityAt: session.LastActivityAt,
		TotalPages:     session.TotalPages,
		UniquePages:    session.UniquePages,
		TotalDuration:  session.TotalDuration,
		IsAdmin:        session.IsAdmin,
	}
}
