package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/emrgen/docview/internal/cache"
	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type RegisterRequest struct {
	// ID is the stable document token. A UUID is generated when empty.
	ID        string
	Name      string
	PageCount int
}

// DashboardEntry is one row of the admin dashboard.
type DashboardEntry struct {
	DocumentID    string  `json:"documentId"`
	Name          string  `json:"name"`
	PageCount     int     `json:"pageCount"`
	PublicToken   string  `json:"publicToken"`
	Sessions      int64   `json:"sessions"`
	Views         int64   `json:"views"`
	TotalDuration float64 `json:"totalDuration"`
	UniquePages   int64   `json:"uniquePages"`
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(store store.Store, opts Options) *DocumentService {
	c := newCore(store, opts)
	return &DocumentService{
		core:  c,
		links: &LinkResolver{core: c},
	}
}

// DocumentService is the registry of documents known to the tracker.
type DocumentService struct {
	core
	links *LinkResolver
}

// Register creates a document together with its first public link.
func (d *DocumentService) Register(ctx context.Context, caller Caller, req RegisterRequest) (*model.Document, *model.LinkMapping, error) {
	if err := caller.requireAdmin("register document"); err != nil {
		return nil, nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: document name is required", ErrInvalidArgument)
	}
	if req.PageCount < 0 {
		return nil, nil, fmt.Errorf("%w: page count must not be negative", ErrInvalidArgument)
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	doc := &model.Document{
		ID:        id,
		Name:      name,
		PageCount: req.PageCount,
	}

	var link *model.LinkMapping
	err := d.tx(ctx, "register_document", func(ctx context.Context, tx store.Store) error {
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return storeError(err, "document %s", id)
		}

		var err error
		link, err = d.links.issue(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	logrus.Infof("registered document %s (%s, %d pages)", doc.ID, doc.Name, doc.PageCount)

	return doc, link, nil
}

// Get returns a live document.
func (d *DocumentService) Get(ctx context.Context, caller Caller, id string) (*model.Document, error) {
	if err := caller.requireAdmin("get document"); err != nil {
		return nil, err
	}

	var doc *model.Document
	err := d.read(ctx, "get_document", func(ctx context.Context) error {
		var err error
		doc, err = d.document(ctx, d.store, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// List returns every live document, newest first.
func (d *DocumentService) List(ctx context.Context, caller Caller) ([]*model.Document, error) {
	if err := caller.requireAdmin("list documents"); err != nil {
		return nil, err
	}

	var docs []*model.Document
	err := d.read(ctx, "list_documents", func(ctx context.Context) error {
		var err error
		docs, err = d.store.ListDocuments(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// SetPageCount backfills the page count. Sessions opened later declare the new count.
func (d *DocumentService) SetPageCount(ctx context.Context, caller Caller, id string, pages int) (*model.Document, error) {
	if err := caller.requireAdmin("set page count"); err != nil {
		return nil, err
	}
	if pages < 0 {
		return nil, fmt.Errorf("%w: page count must not be negative", ErrInvalidArgument)
	}

	var doc *model.Document
	err := d.tx(ctx, "set_page_count", func(ctx context.Context, tx store.Store) error {
		locked, err := tx.LockDocument(ctx, id)
		if err != nil {
			return storeError(err, "document %s", id)
		}
		if locked.Deleted() {
			return fmt.Errorf("%w: document %s was deleted", ErrGone, id)
		}

		if err := tx.UpdatePageCount(ctx, id, pages); err != nil {
			return storeError(err, "document %s", id)
		}
		locked.PageCount = pages
		doc = locked

		return nil
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// SoftDelete hides the document and deactivates its links. Sessions and page
// events stay for reporting.
func (d *DocumentService) SoftDelete(ctx context.Context, caller Caller, id string) error {
	if err := caller.requireAdmin("delete document"); err != nil {
		return err
	}

	err := d.tx(ctx, "delete_document", func(ctx context.Context, tx store.Store) error {
		doc, err := tx.LockDocument(ctx, id)
		if err != nil {
			return storeError(err, "document %s", id)
		}
		if doc.Deleted() {
			return nil
		}

		deactivated, err := tx.DeactivateLinkMappings(ctx, id)
		if err != nil {
			return storeError(err, "deactivate links of %s", id)
		}
		if err := tx.SoftDeleteDocument(ctx, id); err != nil {
			return storeError(err, "document %s", id)
		}

		logrus.Infof("deleted document %s, deactivated %d links", id, deactivated)

		return nil
	})
	if err != nil {
		return err
	}

	d.evictRollup(ctx, id)
	return nil
}

// Erase removes the document with its links, sessions and page events.
func (d *DocumentService) Erase(ctx context.Context, caller Caller, id string) error {
	if err := caller.requireAdmin("erase document"); err != nil {
		return err
	}

	err := d.tx(ctx, "erase_document", func(ctx context.Context, tx store.Store) error {
		if _, err := tx.LockDocument(ctx, id); err != nil {
			return storeError(err, "document %s", id)
		}

		return storeError(tx.EraseDocument(ctx, id), "erase document %s", id)
	})
	if err != nil {
		return err
	}

	d.evictRollup(ctx, id)
	return nil
}

// evictRollup drops the cached whole-history rollup. Windowed rollups expire with their TTL.
func (d *DocumentService) evictRollup(ctx context.Context, id string) {
	if err := d.opts.Cache.Delete(ctx, cache.RollupKey(id, nil, nil)); err != nil {
		logrus.Warnf("rollup cache eviction for %s failed: %v", id, err)
	}
}

// Dashboard lists every live document with its public totals and public link.
// When links rotate on dashboard views, every call issues a fresh link per document.
func (d *DocumentService) Dashboard(ctx context.Context, caller Caller) ([]*DashboardEntry, error) {
	if err := caller.requireAdmin("dashboard"); err != nil {
		return nil, err
	}

	var docs []*model.Document
	var totals map[string]store.DocumentTotals
	err := d.read(ctx, "dashboard", func(ctx context.Context) error {
		var err error
		docs, err = d.store.ListDocuments(ctx)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, doc.ID)
		}

		totals, err = d.store.DocumentTotals(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*DashboardEntry, 0, len(docs))
	for _, doc := range docs {
		link, err := d.dashboardLink(ctx, doc.ID)
		if err != nil {
			return nil, err
		}

		total := totals[doc.ID]
		entries = append(entries, &DashboardEntry{
			DocumentID:    doc.ID,
			Name:          doc.Name,
			PageCount:     doc.PageCount,
			PublicToken:   link.PublicToken,
			Sessions:      total.Sessions,
			Views:         total.Views,
			TotalDuration: total.Duration,
			UniquePages:   total.UniquePages,
		})
	}

	return entries, nil
}

func (d *DocumentService) dashboardLink(ctx context.Context, docID string) (*model.LinkMapping, error) {
	var link *model.LinkMapping
	err := d.tx(ctx, "dashboard_link", func(ctx context.Context, tx store.Store) error {
		var err error
		if d.opts.DashboardRotatesLinks {
			link, err = d.links.issue(ctx, tx, docID)
		} else {
			link, err = d.links.current(ctx, tx, docID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return link, nil
}
