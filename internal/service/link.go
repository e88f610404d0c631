package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/emrgen/docview/internal/metrics"
	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/store"
	"github.com/sirupsen/logrus"
)

// NewLinkResolver creates a new LinkResolver.
func NewLinkResolver(store store.Store, opts Options) *LinkResolver {
	return &LinkResolver{core: newCore(store, opts)}
}

// LinkResolver maps rotating public tokens onto stable document tokens.
type LinkResolver struct {
	core
}

// Issue creates a fresh active public link for the document and deactivates every other one.
func (r *LinkResolver) Issue(ctx context.Context, caller Caller, docID string) (*model.LinkMapping, error) {
	if err := caller.requireAdmin("issue link"); err != nil {
		return nil, err
	}

	var link *model.LinkMapping
	err := r.tx(ctx, "issue_link", func(ctx context.Context, tx store.Store) error {
		var err error
		link, err = r.issue(ctx, tx, docID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return link, nil
}

// issue rotates the document's link inside tx. The document row lock
// serializes concurrent rotations of the same document, and deactivation and
// activation commit together, so no reader ever sees two or zero active links.
func (r *LinkResolver) issue(ctx context.Context, tx store.Store, docID string) (*model.LinkMapping, error) {
	doc, err := tx.LockDocument(ctx, docID)
	if err != nil {
		return nil, storeError(err, "document %s", docID)
	}
	if doc.Deleted() {
		return nil, fmt.Errorf("%w: document %s was deleted", ErrGone, docID)
	}

	deactivated, err := tx.DeactivateLinkMappings(ctx, docID)
	if err != nil {
		return nil, storeError(err, "deactivate links of %s", docID)
	}

	link, err := r.createLink(ctx, tx, docID)
	if err != nil {
		return nil, err
	}

	metrics.LinksIssuedTotal.Inc()
	logrus.Infof("issued link for document %s, deactivated %d", docID, deactivated)

	return link, nil
}

// createLink inserts the mapping in a savepoint, retrying once with a fresh
// token when the first one collides.
func (r *LinkResolver) createLink(ctx context.Context, tx store.Store, docID string) (*model.LinkMapping, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		token, err := r.opts.TokenSource()
		if err != nil {
			return nil, err
		}

		link := &model.LinkMapping{
			PublicToken: token,
			DocumentID:  docID,
			Active:      true,
			CreatedAt:   r.now(),
		}

		err = tx.Transaction(ctx, func(sp store.Store) error {
			return sp.CreateLinkMapping(ctx, link)
		})
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, storeError(err, "create link for %s", docID)
		}

		logrus.Warnf("public token collision for document %s (attempt %d)", docID, attempt+1)
		lastErr = err
	}

	return nil, fmt.Errorf("%w: public token collided twice for document %s: %v", ErrIntegrity, docID, lastErr)
}

// Resolve maps a public token onto its document and records the use of the link.
// It counts one view of the link.
func (r *LinkResolver) Resolve(ctx context.Context, token string) (*model.Document, *model.LinkMapping, error) {
	var doc *model.Document
	var link *model.LinkMapping

	err := r.tx(ctx, "resolve_link", func(ctx context.Context, tx store.Store) error {
		var err error
		doc, link, err = r.lookup(ctx, tx, token)
		if err != nil {
			return err
		}

		now := r.now()
		// the update re-checks the active flag, so a rotation that committed
		// after the read above turns this into NotFound
		if err := tx.TouchLinkMapping(ctx, token, now); err != nil {
			return storeError(err, "link %s", token)
		}
		link.LastUsedAt = &now
		link.ViewCount++

		return nil
	})

	metrics.LinkResolvesTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, nil, err
	}

	return doc, link, nil
}

// Lookup maps a public token onto its document without recording a view.
func (r *LinkResolver) Lookup(ctx context.Context, token string) (*model.Document, *model.LinkMapping, error) {
	var doc *model.Document
	var link *model.LinkMapping

	err := r.read(ctx, "lookup_link", func(ctx context.Context) error {
		var err error
		doc, link, err = r.lookup(ctx, r.store, token)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return doc, link, nil
}

func (r *LinkResolver) lookup(ctx context.Context, s store.Store, token string) (*model.Document, *model.LinkMapping, error) {
	link, err := s.GetLinkMapping(ctx, token)
	if err != nil {
		return nil, nil, storeError(err, "link %s", token)
	}
	if !link.Active {
		return nil, nil, fmt.Errorf("%w: link %s is no longer active", ErrNotFound, token)
	}

	doc, err := r.document(ctx, s, link.DocumentID)
	if err != nil {
		return nil, nil, err
	}

	return doc, link, nil
}

// ResolveAdmin bypasses link rotation for admin callers.
func (r *LinkResolver) ResolveAdmin(ctx context.Context, caller Caller, docID string) (*model.Document, error) {
	if err := caller.requireAdmin("resolve document"); err != nil {
		return nil, err
	}

	var doc *model.Document
	err := r.read(ctx, "resolve_admin", func(ctx context.Context) error {
		var err error
		doc, err = r.document(ctx, r.store, docID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// Current returns the active link of a document, issuing one when none exists.
func (r *LinkResolver) Current(ctx context.Context, caller Caller, docID string) (*model.LinkMapping, error) {
	if err := caller.requireAdmin("current link"); err != nil {
		return nil, err
	}

	var link *model.LinkMapping
	err := r.tx(ctx, "current_link", func(ctx context.Context, tx store.Store) error {
		var err error
		link, err = r.current(ctx, tx, docID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return link, nil
}

func (r *LinkResolver) current(ctx context.Context, tx store.Store, docID string) (*model.LinkMapping, error) {
	link, err := tx.GetActiveLinkMapping(ctx, docID)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(err, "active link of %s", docID)
	}

	return r.issue(ctx, tx, docID)
}
