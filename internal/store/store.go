package store

import (
	"context"
	"time"

	"github.com/emrgen/docview/internal/model"
)

type Store interface {
	DocumentStore
	LinkStore
	SessionStore
	PageEventStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type DocumentStore interface {
	// CreateDocument creates a new document.
	CreateDocument(ctx context.Context, doc *model.Document) error
	// GetDocument retrieves a document by its stable token, soft-deleted documents included.
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// LockDocument retrieves a document and holds a row lock until the transaction ends.
	LockDocument(ctx context.Context, id string) (*model.Document, error)
	// ListDocuments retrieves all documents that are not soft-deleted, newest first.
	ListDocuments(ctx context.Context) ([]*model.Document, error)
	// UpdatePageCount backfills the page count of a document.
	UpdatePageCount(ctx context.Context, id string, pages int) error
	// SoftDeleteDocument hides a document, keeping its sessions and events.
	SoftDeleteDocument(ctx context.Context, id string) error
	// EraseDocument deletes a document with its mappings, sessions and page events.
	EraseDocument(ctx context.Context, id string) error
	// DocumentTotals summarizes the public sessions of the given documents.
	DocumentTotals(ctx context.Context, ids []string) (map[string]DocumentTotals, error)
}

type LinkStore interface {
	// CreateLinkMapping inserts a new link mapping.
	CreateLinkMapping(ctx context.Context, link *model.LinkMapping) error
	// DeactivateLinkMappings deactivates every active mapping of a document.
	DeactivateLinkMappings(ctx context.Context, docID string) (int64, error)
	// GetLinkMapping retrieves a mapping by public token, active or not.
	GetLinkMapping(ctx context.Context, token string) (*model.LinkMapping, error)
	// GetActiveLinkMapping retrieves the active mapping of a document.
	GetActiveLinkMapping(ctx context.Context, docID string) (*model.LinkMapping, error)
	// TouchLinkMapping records a use of an active mapping.
	TouchLinkMapping(ctx context.Context, token string, at time.Time) error
}

type SessionStore interface {
	// CreateSession inserts a new viewing session.
	CreateSession(ctx context.Context, session *model.ViewingSession) error
	// GetSession retrieves a session by token.
	GetSession(ctx context.Context, token string) (*model.ViewingSession, error)
	// LockSession retrieves a session and holds a row lock until the transaction ends.
	LockSession(ctx context.Context, token string) (*model.ViewingSession, error)
	// UpdateSession writes the given columns of a session.
	UpdateSession(ctx context.Context, token string, fields map[string]any) error
	// ListSessions retrieves sessions matching the filter, newest first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]*model.ViewingSession, error)
	// ListIdleSessions retrieves active sessions with no activity since before.
	ListIdleSessions(ctx context.Context, before time.Time, limit int) ([]*model.ViewingSession, error)
}

type PageEventStore interface {
	// LockPageEvent retrieves the page event of a session page, holding a row lock.
	LockPageEvent(ctx context.Context, token string, page int) (*model.PageEvent, error)
	// CreatePageEvent inserts a page event.
	CreatePageEvent(ctx context.Context, event *model.PageEvent) error
	// UpdatePageEvent writes the given columns of a page event.
	UpdatePageEvent(ctx context.Context, token string, page int, fields map[string]any) error
	// ListPageEvents retrieves the page events of the given sessions ordered by page.
	ListPageEvents(ctx context.Context, tokens ...string) ([]*model.PageEvent, error)
	// SummarizePageEvents computes the duration sum and distinct page count of a session.
	SummarizePageEvents(ctx context.Context, token string) (PageSummary, error)
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	DocumentID   string
	From         *time.Time
	To           *time.Time
	IncludeAdmin bool
	Limit        int
}

// PageSummary is the aggregate over one session's page events.
type PageSummary struct {
	TotalDuration float64
	UniquePages   int64
}

// DocumentTotals is the aggregate over one document's public sessions.
type DocumentTotals struct {
	DocumentID  string
	Sessions    int64
	Views       int64
	Duration    float64
	UniquePages int64
}
