package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/emrgen/docview/internal/metrics"
	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/store"
)

// PageFields is the telemetry carried by one page event.
type PageFields struct {
	// Duration is the cumulative time on the page in seconds, not a delta.
	Duration        float64
	ScrollDepth     float64
	ZoomLevel       float64
	TimeToFirstView float64
	IsComplete      bool
	// UpdateOnly marks a duration update for a page the client believes was already recorded.
	UpdateOnly bool
}

// DefaultPageFields returns the defaults for omitted telemetry fields.
func DefaultPageFields() PageFields {
	return PageFields{ZoomLevel: 1}
}

type FoldRequest struct {
	SessionToken string
	// DocumentID is optional; the session's document wins on mismatch.
	DocumentID string
	Page       int
	Fields     PageFields
}

type FoldOutcome string

const (
	FoldInserted    FoldOutcome = "inserted"
	FoldUpdated     FoldOutcome = "updated"
	FoldSynthesized FoldOutcome = "synthesized"
)

type FoldResult struct {
	Event     *model.PageEvent
	Session   *model.ViewingSession
	Outcome   FoldOutcome
	Anomalies []Anomaly
}

// NewPageEventFolder creates a new PageEventFolder.
func NewPageEventFolder(store store.Store, opts Options) *PageEventFolder {
	return &PageEventFolder{core: newCore(store, opts)}
}

// PageEventFolder merges repeated page telemetry into one record per (session, page).
type PageEventFolder struct {
	core
}

// Fold merges one telemetry event into its page record and refreshes the session summary.
func (f *PageEventFolder) Fold(ctx context.Context, req FoldRequest) (*FoldResult, error) {
	if req.SessionToken == "" {
		return nil, fmt.Errorf("%w: session token is required", ErrInvalidArgument)
	}

	var result *FoldResult
	err := f.tx(ctx, "fold_page", func(ctx context.Context, tx store.Store) error {
		session, doc, err := f.lockSession(ctx, tx, req.SessionToken)
		if err != nil {
			return err
		}

		result, err = f.fold(ctx, tx, session, doc, req)
		if err != nil {
			return err
		}

		return recomputeSession(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}

	metrics.PageFoldsTotal.WithLabelValues(string(result.Outcome)).Inc()
	reportAnomalies(req.SessionToken, req.Page, result.Anomalies)

	return result, nil
}

// fold runs inside a transaction that already holds the session lock. The
// caller recomputes the session summary afterwards.
func (f *PageEventFolder) fold(ctx context.Context, tx store.Store, session *model.ViewingSession, doc *model.Document, req FoldRequest) (*FoldResult, error) {
	fields, anomalies := sanitize(session, doc, req)
	now := f.now()

	event, outcome, err := f.foldPage(ctx, tx, session, req.Page, fields, now)
	if err != nil {
		return nil, err
	}
	if outcome == FoldSynthesized {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyLateUpdate,
			Detail: fmt.Sprintf("update for unseen page %d, record synthesized", req.Page),
		})
	}

	session.LastActivityAt = now

	return &FoldResult{
		Event:     event,
		Session:   session,
		Outcome:   outcome,
		Anomalies: anomalies,
	}, nil
}

// foldPage inserts the page record or merges into it: duration is replaced,
// scroll depth and zoom level keep their maximum, completion stays set once set.
func (f *PageEventFolder) foldPage(ctx context.Context, tx store.Store, session *model.ViewingSession, page int, fields PageFields, now time.Time) (*model.PageEvent, FoldOutcome, error) {
	event, err := tx.LockPageEvent(ctx, session.Token, page)
	if errors.Is(err, store.ErrNotFound) {
		event = &model.PageEvent{
			SessionToken:    session.Token,
			PageNumber:      page,
			DocumentID:      session.DocumentID,
			Duration:        fields.Duration,
			ScrollDepth:     fields.ScrollDepth,
			ZoomLevel:       fields.ZoomLevel,
			TimeToFirstView: fields.TimeToFirstView,
			IsComplete:      fields.IsComplete,
			FirstSeenAt:     now,
			LastUpdatedAt:   now,
		}
		if err := tx.CreatePageEvent(ctx, event); err != nil {
			return nil, "", storeError(err, "page %d of session %s", page, session.Token)
		}

		if fields.UpdateOnly {
			return event, FoldSynthesized, nil
		}
		return event, FoldInserted, nil
	}
	if err != nil {
		return nil, "", storeError(err, "page %d of session %s", page, session.Token)
	}

	event.Duration = fields.Duration
	event.ScrollDepth = math.Max(event.ScrollDepth, fields.ScrollDepth)
	event.ZoomLevel = math.Max(event.ZoomLevel, fields.ZoomLevel)
	if event.TimeToFirstView == 0 {
		event.TimeToFirstView = fields.TimeToFirstView
	}
	event.IsComplete = event.IsComplete || fields.IsComplete
	event.LastUpdatedAt = now

	err = tx.UpdatePageEvent(ctx, session.Token, page, map[string]any{
		"duration":           event.Duration,
		"scroll_depth":       event.ScrollDepth,
		"zoom_level":         event.ZoomLevel,
		"time_to_first_view": event.TimeToFirstView,
		"is_complete":        event.IsComplete,
		"last_updated_at":    event.LastUpdatedAt,
	})
	if err != nil {
		return nil, "", storeError(err, "page %d of session %s", page, session.Token)
	}

	return event, FoldUpdated, nil
}

// sanitize degrades malformed telemetry to anomalies instead of rejecting it.
func sanitize(session *model.ViewingSession, doc *model.Document, req FoldRequest) (PageFields, []Anomaly) {
	var anomalies []Anomaly
	fields := req.Fields

	if req.DocumentID != "" && req.DocumentID != session.DocumentID {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyDocumentMismatch,
			Detail: fmt.Sprintf("event names document %s, session belongs to %s", req.DocumentID, session.DocumentID),
		})
	}

	total := session.TotalPages
	if total == 0 {
		total = doc.PageCount
	}
	if req.Page < 1 || (total > 0 && req.Page > total) {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyPageOutOfRange,
			Detail: fmt.Sprintf("page %d outside [1, %d]", req.Page, total),
		})
	}

	fields.Duration = nonNegative("duration", fields.Duration, 0, &anomalies)
	fields.ScrollDepth = nonNegative("scroll depth", fields.ScrollDepth, 0, &anomalies)
	fields.TimeToFirstView = nonNegative("time to first view", fields.TimeToFirstView, 0, &anomalies)

	// zero means the client left zoom out
	if fields.ZoomLevel == 0 {
		fields.ZoomLevel = 1
	} else {
		fields.ZoomLevel = nonNegative("zoom level", fields.ZoomLevel, 1, &anomalies)
	}

	return fields, anomalies
}

func nonNegative(name string, v, fallback float64, anomalies *[]Anomaly) float64 {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		*anomalies = append(*anomalies, Anomaly{
			Kind:   AnomalyNonFiniteValue,
			Detail: fmt.Sprintf("%s is %v, using %v", name, v, fallback),
		})
		return fallback
	case v < 0:
		*anomalies = append(*anomalies, Anomaly{
			Kind:   AnomalyNegativeValue,
			Detail: fmt.Sprintf("%s is %v, using %v", name, v, fallback),
		})
		return fallback
	default:
		return v
	}
}
