package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emrgen/docview/internal/metrics"
	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/queue"
	"github.com/emrgen/docview/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type OpenRequest struct {
	DocumentID string
	// LinkToken is the public token the viewer came through. Admin previews may omit it.
	LinkToken string
	// SessionToken is the client correlation id. A UUID is generated when empty.
	SessionToken string
	Client       model.ClientMeta
	Admin        bool
	Email        string
}

type CompleteRequest struct {
	SessionToken string
	DocumentID   string
	Page         int
	Fields       PageFields
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(store store.Store, opts Options) *SessionManager {
	c := newCore(store, opts)
	return &SessionManager{
		core:   c,
		folder: &PageEventFolder{core: c},
	}
}

// SessionManager owns the session state machine: active, then completed or abandoned.
type SessionManager struct {
	core
	folder *PageEventFolder
}

// Open starts a viewing session in the active state.
func (m *SessionManager) Open(ctx context.Context, caller Caller, req OpenRequest) (*model.ViewingSession, error) {
	if req.Admin {
		if err := caller.requireAdmin("admin preview"); err != nil {
			return nil, err
		}
	}

	email := strings.TrimSpace(req.Email)
	if !req.Admin && m.opts.RequireViewerEmail && email == "" {
		return nil, fmt.Errorf("%w: viewer email is required", ErrInvalidArgument)
	}
	if !req.Admin && req.LinkToken == "" {
		return nil, fmt.Errorf("%w: link token is required", ErrInvalidArgument)
	}

	token := req.SessionToken
	if token == "" {
		token = uuid.New().String()
	}

	var session *model.ViewingSession
	created := false
	err := m.tx(ctx, "open_session", func(ctx context.Context, tx store.Store) error {
		doc, err := m.document(ctx, tx, req.DocumentID)
		if err != nil {
			return err
		}

		if req.LinkToken != "" {
			link, err := tx.GetLinkMapping(ctx, req.LinkToken)
			if err != nil {
				return storeError(err, "link %s", req.LinkToken)
			}
			if link.DocumentID != doc.ID {
				return fmt.Errorf("%w: link %s does not belong to document %s", ErrInvalidArgument, req.LinkToken, doc.ID)
			}
		}

		existing, err := tx.GetSession(ctx, token)
		if err == nil {
			if existing.DocumentID != doc.ID || existing.LinkToken != req.LinkToken {
				return fmt.Errorf("%w: session %s already exists for another document or link", ErrIntegrity, token)
			}
			session = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return storeError(err, "session %s", token)
		}

		now := m.now()
		session = &model.ViewingSession{
			Token:          token,
			DocumentID:     doc.ID,
			LinkToken:      req.LinkToken,
			StartedAt:      now,
			LastActivityAt: now,
			TotalPages:     doc.PageCount,
			Status:         model.SessionActive,
			IsAdmin:        req.Admin,
			ClientMeta:     req.Client,
		}
		if email != "" {
			session.Email = &email
		}

		if err := tx.CreateSession(ctx, session); err != nil {
			return storeError(err, "session %s", token)
		}
		created = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		metrics.SessionTransitionsTotal.WithLabelValues(string(model.SessionActive)).Inc()
		m.publish(ctx, queue.SessionOpened, session)
		logrus.Infof("opened session %s for document %s (admin: %t)", session.Token, session.DocumentID, session.IsAdmin)
	}

	return session, nil
}

// RecordActivity touches the last activity time of a session. Status is unchanged.
func (m *SessionManager) RecordActivity(ctx context.Context, token string) (*model.ViewingSession, error) {
	var session *model.ViewingSession
	err := m.tx(ctx, "record_activity", func(ctx context.Context, tx store.Store) error {
		var err error
		session, _, err = m.lockSession(ctx, tx, token)
		if err != nil {
			return err
		}

		session.LastActivityAt = m.now()
		if err := tx.UpdateSession(ctx, token, map[string]any{"last_activity_at": session.LastActivityAt}); err != nil {
			return storeError(err, "session %s", token)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Complete folds the final page event and closes the session. Completing a
// completed session changes nothing. An abandoned session keeps its status but
// the final event is still folded.
func (m *SessionManager) Complete(ctx context.Context, req CompleteRequest) (*model.ViewingSession, *FoldResult, error) {
	if req.SessionToken == "" {
		return nil, nil, fmt.Errorf("%w: session token is required", ErrInvalidArgument)
	}

	var session *model.ViewingSession
	var result *FoldResult
	completed := false
	err := m.tx(ctx, "complete_session", func(ctx context.Context, tx store.Store) error {
		var doc *model.Document
		var err error
		session, doc, err = m.lockSession(ctx, tx, req.SessionToken)
		if err != nil {
			return err
		}
		if session.Status == model.SessionCompleted {
			return nil
		}

		result, err = m.folder.fold(ctx, tx, session, doc, FoldRequest{
			SessionToken: req.SessionToken,
			DocumentID:   req.DocumentID,
			Page:         req.Page,
			Fields:       req.Fields,
		})
		if err != nil {
			return err
		}

		if !session.Status.Terminal() {
			ended := session.LastActivityAt
			session.Status = model.SessionCompleted
			session.EndedAt = &ended
			completed = true
		}

		return recomputeSession(ctx, tx, session)
	})
	if err != nil {
		return nil, nil, err
	}

	if result != nil {
		metrics.PageFoldsTotal.WithLabelValues(string(result.Outcome)).Inc()
		reportAnomalies(req.SessionToken, req.Page, result.Anomalies)
	}
	if completed {
		metrics.SessionTransitionsTotal.WithLabelValues(string(model.SessionCompleted)).Inc()
		m.publish(ctx, queue.SessionCompleted, session)
		logrus.Infof("completed session %s: %.1fs over %d pages", session.Token, session.TotalDuration, session.UniquePages)
	}

	return session, result, nil
}

// Abandon moves active sessions idle since before into the abandoned state,
// ending them at their last activity. It returns how many sessions moved.
func (m *SessionManager) Abandon(ctx context.Context, before time.Time, limit int) (int, error) {
	var idle []*model.ViewingSession
	err := m.read(ctx, "list_idle_sessions", func(ctx context.Context) error {
		var err error
		idle, err = m.store.ListIdleSessions(ctx, before, limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, candidate := range idle {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		session, err := m.abandon(ctx, candidate.Token, before)
		if err != nil {
			// the session may have been erased between the scan and the lock
			if errors.Is(err, ErrNotFound) {
				logrus.Warnf("skipped abandoning session %s: %v", candidate.Token, err)
				continue
			}
			return count, err
		}
		if session == nil {
			continue
		}

		count++
		metrics.SessionTransitionsTotal.WithLabelValues(string(model.SessionAbandoned)).Inc()
		m.publish(ctx, queue.SessionAbandoned, session)
	}

	if count > 0 {
		logrus.Infof("abandoned %d idle sessions", count)
	}

	return count, nil
}

// abandon re-checks the session under its lock, so activity that arrived after
// the scan keeps the session active. It returns nil when nothing changed.
func (m *SessionManager) abandon(ctx context.Context, token string, before time.Time) (*model.ViewingSession, error) {
	var session *model.ViewingSession
	changed := false
	err := m.tx(ctx, "abandon_session", func(ctx context.Context, tx store.Store) error {
		// abandoning never touches the document, so sessions of
		// soft-deleted documents still end
		var err error
		session, err = tx.LockSession(ctx, token)
		if err != nil {
			return storeError(err, "session %s", token)
		}
		if session.Status.Terminal() || !session.LastActivityAt.Before(before) {
			return nil
		}

		ended := session.LastActivityAt
		session.Status = model.SessionAbandoned
		session.EndedAt = &ended
		changed = true

		return recomputeSession(ctx, tx, session)
	})
	if err != nil || !changed {
		return nil, err
	}

	return session, nil
}
