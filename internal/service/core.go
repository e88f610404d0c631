package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/emrgen/docview/internal/cache"
	"github.com/emrgen/docview/internal/metrics"
	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/queue"
	"github.com/emrgen/docview/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultRollupTTL = 30 * time.Second
	publicTokenBytes = 18
)

// Options configures the core services. Zero values select the defaults.
type Options struct {
	// Timeout bounds every store operation.
	Timeout time.Duration
	// Clock returns the current time.
	Clock func() time.Time
	// Location is the reporting timezone.
	Location *time.Location
	// Queue receives session lifecycle events after commit.
	Queue queue.SessionQueue
	// Cache holds document rollups for RollupTTL.
	Cache     cache.Cache
	RollupTTL time.Duration
	// TokenSource generates public link tokens.
	TokenSource func() (string, error)
	// RequireViewerEmail rejects public session opens without an email.
	RequireViewerEmail bool
	// DashboardRotatesLinks issues a fresh public link per document on every dashboard load.
	DashboardRotatesLinks bool
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Queue == nil {
		o.Queue = queue.NewNopSessionQueue()
	}
	if o.Cache == nil {
		o.Cache = cache.NewNop()
	}
	if o.RollupTTL <= 0 {
		o.RollupTTL = defaultRollupTTL
	}
	if o.TokenSource == nil {
		o.TokenSource = NewPublicToken
	}

	return o
}

// NewPublicToken returns a 144 bit random url-safe token.
func NewPublicToken() (string, error) {
	buf := make([]byte, publicTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type core struct {
	store store.Store
	opts  Options
}

func newCore(s store.Store, opts Options) core {
	return core{store: s, opts: opts.withDefaults()}
}

func (c *core) now() time.Time {
	return c.opts.Clock().UTC()
}

// tx runs f in one store transaction bounded by the store timeout.
// Any error, cancellation included, rolls the whole transaction back.
func (c *core) tx(ctx context.Context, op string, f func(ctx context.Context, tx store.Store) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := c.store.Transaction(ctx, func(tx store.Store) error {
		return f(ctx, tx)
	})
	err = storeError(err, "%s", op)

	metrics.StoreOperationDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())

	return err
}

// read runs f outside a transaction bounded by the store timeout.
func (c *core) read(ctx context.Context, op string, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := storeError(f(ctx), "%s", op)

	metrics.StoreOperationDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())

	return err
}

// lockSession locks the session row and loads its document.
// The session row lock serializes every mutation of one session.
func (c *core) lockSession(ctx context.Context, tx store.Store, token string) (*model.ViewingSession, *model.Document, error) {
	session, err := tx.LockSession(ctx, token)
	if err != nil {
		return nil, nil, storeError(err, "session %s", token)
	}

	doc, err := tx.GetDocument(ctx, session.DocumentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: document %s of session %s was erased", ErrGone, session.DocumentID, token)
	}
	if err != nil {
		return nil, nil, storeError(err, "document %s", session.DocumentID)
	}
	if doc.Deleted() {
		return nil, nil, fmt.Errorf("%w: document %s was deleted", ErrGone, doc.ID)
	}

	return session, doc, nil
}

// document loads a live document. Soft-deleted documents are Gone.
func (c *core) document(ctx context.Context, s store.DocumentStore, docID string) (*model.Document, error) {
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		return nil, storeError(err, "document %s", docID)
	}
	if doc.Deleted() {
		return nil, fmt.Errorf("%w: document %s was deleted", ErrGone, docID)
	}

	return doc, nil
}

// publish sends a lifecycle event. Failures are logged and never fail the caller.
func (c *core) publish(ctx context.Context, kind queue.SessionEventType, session *model.ViewingSession) {
	event := &queue.SessionEvent{
		Type:          kind,
		SessionToken:  session.Token,
		DocumentID:    session.DocumentID,
		Status:        string(session.Status),
		TotalDuration: session.TotalDuration,
		UniquePages:   session.UniquePages,
		IsAdmin:       session.IsAdmin,
		At:            c.now(),
	}

	if err := c.opts.Queue.Publish(ctx, event); err != nil {
		logrus.WithFields(logrus.Fields{
			"session": session.Token,
			"event":   kind,
		}).Warnf("failed to publish session event: %v", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrGone):
		return "gone"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrPermissionDenied):
		return "denied"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
