package service

import (
	"context"
	"sort"
	"time"

	"github.com/emrgen/docview/internal/cache"
	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	maxDailyBuckets = 30
	eventChunkSize  = 500
	unknownClient   = "Unknown"
)

// recomputeSession rewrites the cached summary of a locked session from its page
// events, together with the other mutable session columns. It is the only writer
// of total_duration and unique_pages.
func recomputeSession(ctx context.Context, tx store.Store, session *model.ViewingSession) error {
	summary, err := tx.SummarizePageEvents(ctx, session.Token)
	if err != nil {
		return storeError(err, "summarize session %s", session.Token)
	}

	session.TotalDuration = summary.TotalDuration
	session.UniquePages = int(summary.UniquePages)

	err = tx.UpdateSession(ctx, session.Token, map[string]any{
		"total_duration":   session.TotalDuration,
		"unique_pages":     session.UniquePages,
		"last_activity_at": session.LastActivityAt,
		"status":           session.Status,
		"ended_at":         session.EndedAt,
	})
	if err != nil {
		return storeError(err, "session %s", session.Token)
	}

	return nil
}

// Window bounds a report by session start time, From inclusive and To exclusive.
type Window struct {
	From *time.Time
	To   *time.Time
}

type DailyBucket struct {
	Date            string  `json:"date"`
	Sessions        int     `json:"sessions"`
	Views           int     `json:"views"`
	AverageDuration float64 `json:"avgDuration"`
}

type DeviceBucket struct {
	DeviceType      string `json:"deviceType"`
	Browser         string `json:"browser"`
	OperatingSystem string `json:"operatingSystem"`
	Sessions        int    `json:"count"`
}

type DocumentRollup struct {
	DocumentID    string         `json:"documentId"`
	Name          string         `json:"name"`
	PageCount     int            `json:"pageCount"`
	Sessions      int            `json:"sessions"`
	Views         int            `json:"views"`
	TotalDuration float64        `json:"totalDuration"`
	Daily         []DailyBucket  `json:"daily"`
	Devices       []DeviceBucket `json:"devices"`
	GeneratedAt   time.Time      `json:"generatedAt"`
}

type SessionSummary struct {
	Token              string          `json:"sessionToken"`
	DocumentID         string          `json:"documentId"`
	LinkToken          string          `json:"linkToken"`
	StartedAt          time.Time       `json:"startedAt"`
	EndedAt            *time.Time      `json:"endedAt"`
	LastActivityAt     time.Time       `json:"lastActivityAt"`
	Status             string          `json:"status"`
	TotalPages         int             `json:"totalPages"`
	UniquePages        int             `json:"uniquePages"`
	TotalDuration      float64         `json:"duration"`
	PageViews          int             `json:"pageViews"`
	AverageDuration    float64         `json:"avgDuration"`
	AverageScrollDepth float64         `json:"avgScrollDepth"`
	PageDurations      map[int]float64 `json:"pageDurations"`
	DeviceType         string          `json:"deviceType"`
	Browser            string          `json:"browser"`
	OperatingSystem    string          `json:"operatingSystem"`
	IPAddress          string          `json:"ipAddress"`
	Email              *string         `json:"email"`
	IsAdmin            bool            `json:"isAdmin"`
}

type PageView struct {
	Page            int       `json:"page"`
	Duration        float64   `json:"duration"`
	ScrollDepth     float64   `json:"scrollDepth"`
	ZoomLevel       float64   `json:"zoomLevel"`
	TimeToFirstView float64   `json:"timeToFirstView"`
	IsComplete      bool      `json:"isComplete"`
	FirstSeenAt     time.Time `json:"firstSeenAt"`
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`
}

type SessionDetail struct {
	Session SessionSummary `json:"session"`
	Pages   []PageView     `json:"pages"`
}

// NewAggregator creates a new Aggregator.
func NewAggregator(store store.Store, opts Options) *Aggregator {
	return &Aggregator{core: newCore(store, opts)}
}

// Aggregator keeps session summaries consistent with their page events and
// projects sessions into reports.
type Aggregator struct {
	core
}

// Recompute rewrites the summary of one session from its page events. Status is untouched.
func (a *Aggregator) Recompute(ctx context.Context, token string) (*model.ViewingSession, error) {
	var session *model.ViewingSession
	err := a.tx(ctx, "recompute_session", func(ctx context.Context, tx store.Store) error {
		var err error
		session, _, err = a.lockSession(ctx, tx, token)
		if err != nil {
			return err
		}

		return recomputeSession(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// DocumentRollup summarizes the public sessions of a document, optionally
// restricted to a window. Open sessions contribute their current aggregate.
func (a *Aggregator) DocumentRollup(ctx context.Context, caller Caller, docID string, window Window) (*DocumentRollup, error) {
	if err := caller.requireAdmin("document rollup"); err != nil {
		return nil, err
	}

	key := cache.RollupKey(docID, window.From, window.To)
	var cached DocumentRollup
	hit, err := a.opts.Cache.Get(ctx, key, &cached)
	if err != nil {
		logrus.Warnf("rollup cache read for %s failed: %v", docID, err)
	}
	if hit {
		return &cached, nil
	}

	var rollup *DocumentRollup
	err = a.read(ctx, "document_rollup", func(ctx context.Context) error {
		doc, err := a.reportDocument(ctx, docID)
		if err != nil {
			return err
		}

		sessions, events, err := a.sessionsWithEvents(ctx, store.SessionFilter{
			DocumentID: docID,
			From:       window.From,
			To:         window.To,
		})
		if err != nil {
			return err
		}

		rollup = a.rollup(doc, sessions, events)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := a.opts.Cache.Set(ctx, key, rollup, a.opts.RollupTTL); err != nil {
		logrus.Warnf("rollup cache write for %s failed: %v", docID, err)
	}

	return rollup, nil
}

func (a *Aggregator) rollup(doc *model.Document, sessions []*model.ViewingSession, events map[string][]*model.PageEvent) *DocumentRollup {
	rollup := &DocumentRollup{
		DocumentID:  doc.ID,
		Name:        doc.Name,
		PageCount:   doc.PageCount,
		GeneratedAt: a.now().In(a.opts.Location),
		Daily:       []DailyBucket{},
		Devices:     []DeviceBucket{},
	}

	type day struct {
		bucket   DailyBucket
		duration float64
	}
	days := make(map[string]*day)
	devices := make(map[DeviceBucket]int)

	for _, session := range sessions {
		pages := events[session.Token]

		rollup.Sessions++
		rollup.Views += len(pages)
		rollup.TotalDuration += session.TotalDuration

		date := session.StartedAt.In(a.opts.Location).Format(time.DateOnly)
		d, ok := days[date]
		if !ok {
			d = &day{bucket: DailyBucket{Date: date}}
			days[date] = d
		}
		d.bucket.Sessions++
		d.bucket.Views += len(pages)
		for _, page := range pages {
			d.duration += page.Duration
		}

		devices[DeviceBucket{
			DeviceType:      orUnknown(session.DeviceType),
			Browser:         orUnknown(session.Browser),
			OperatingSystem: orUnknown(session.OperatingSystem),
		}]++
	}

	for _, d := range days {
		if d.bucket.Views > 0 {
			d.bucket.AverageDuration = d.duration / float64(d.bucket.Views)
		}
		rollup.Daily = append(rollup.Daily, d.bucket)
	}
	sort.Slice(rollup.Daily, func(i, j int) bool {
		return rollup.Daily[i].Date > rollup.Daily[j].Date
	})
	if len(rollup.Daily) > maxDailyBuckets {
		rollup.Daily = rollup.Daily[:maxDailyBuckets]
	}

	for device, count := range devices {
		device.Sessions = count
		rollup.Devices = append(rollup.Devices, device)
	}
	sort.Slice(rollup.Devices, func(i, j int) bool {
		x, y := rollup.Devices[i], rollup.Devices[j]
		if x.Sessions != y.Sessions {
			return x.Sessions > y.Sessions
		}
		if x.DeviceType != y.DeviceType {
			return x.DeviceType < y.DeviceType
		}
		if x.Browser != y.Browser {
			return x.Browser < y.Browser
		}
		return x.OperatingSystem < y.OperatingSystem
	})

	return rollup
}

// ListSessions lists the public sessions of a document, newest first.
func (a *Aggregator) ListSessions(ctx context.Context, caller Caller, docID string, window Window, limit int) ([]*SessionSummary, error) {
	if err := caller.requireAdmin("list sessions"); err != nil {
		return nil, err
	}

	var summaries []*SessionSummary
	err := a.read(ctx, "list_sessions", func(ctx context.Context) error {
		if _, err := a.reportDocument(ctx, docID); err != nil {
			return err
		}

		sessions, events, err := a.sessionsWithEvents(ctx, store.SessionFilter{
			DocumentID: docID,
			From:       window.From,
			To:         window.To,
			Limit:      limit,
		})
		if err != nil {
			return err
		}

		summaries = make([]*SessionSummary, 0, len(sessions))
		for _, session := range sessions {
			summaries = append(summaries, a.summarize(session, events[session.Token]))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return summaries, nil
}

// SessionDetail returns one session with its pages ordered by page number.
func (a *Aggregator) SessionDetail(ctx context.Context, caller Caller, token string) (*SessionDetail, error) {
	if err := caller.requireAdmin("session detail"); err != nil {
		return nil, err
	}

	var detail *SessionDetail
	err := a.read(ctx, "session_detail", func(ctx context.Context) error {
		session, err := a.store.GetSession(ctx, token)
		if err != nil {
			return storeError(err, "session %s", token)
		}

		events, err := a.store.ListPageEvents(ctx, token)
		if err != nil {
			return storeError(err, "page events of %s", token)
		}

		detail = &SessionDetail{
			Session: *a.summarize(session, events),
			Pages:   make([]PageView, 0, len(events)),
		}
		for _, event := range events {
			detail.Pages = append(detail.Pages, PageView{
				Page:            event.PageNumber,
				Duration:        event.Duration,
				ScrollDepth:     event.ScrollDepth,
				ZoomLevel:       event.ZoomLevel,
				TimeToFirstView: event.TimeToFirstView,
				IsComplete:      event.IsComplete,
				FirstSeenAt:     event.FirstSeenAt.In(a.opts.Location),
				LastUpdatedAt:   event.LastUpdatedAt.In(a.opts.Location),
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return detail, nil
}

func (a *Aggregator) summarize(session *model.ViewingSession, events []*model.PageEvent) *SessionSummary {
	summary := &SessionSummary{
		Token:           session.Token,
		DocumentID:      session.DocumentID,
		LinkToken:       session.LinkToken,
		StartedAt:       session.StartedAt.In(a.opts.Location),
		LastActivityAt:  session.LastActivityAt.In(a.opts.Location),
		Status:          string(session.Status),
		TotalPages:      session.TotalPages,
		UniquePages:     session.UniquePages,
		TotalDuration:   session.TotalDuration,
		PageViews:       len(events),
		PageDurations:   make(map[int]float64, len(events)),
		DeviceType:      orUnknown(session.DeviceType),
		Browser:         orUnknown(session.Browser),
		OperatingSystem: orUnknown(session.OperatingSystem),
		IPAddress:       session.IPAddress,
		Email:           session.Email,
		IsAdmin:         session.IsAdmin,
	}

	var duration, scroll float64
	var lastUpdate time.Time
	for _, event := range events {
		summary.PageDurations[event.PageNumber] = event.Duration
		duration += event.Duration
		scroll += event.ScrollDepth
		if event.LastUpdatedAt.After(lastUpdate) {
			lastUpdate = event.LastUpdatedAt
		}
	}
	if len(events) > 0 {
		summary.AverageDuration = duration / float64(len(events))
		summary.AverageScrollDepth = scroll / float64(len(events))
	}

	// open sessions end at their latest page update
	switch {
	case session.EndedAt != nil:
		ended := session.EndedAt.In(a.opts.Location)
		summary.EndedAt = &ended
	case !lastUpdate.IsZero():
		ended := lastUpdate.In(a.opts.Location)
		summary.EndedAt = &ended
	}

	return summary
}

// reportDocument loads a document for reporting. Sessions outlive a soft delete,
// so soft-deleted documents are still reported.
func (a *Aggregator) reportDocument(ctx context.Context, docID string) (*model.Document, error) {
	doc, err := a.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, storeError(err, "document %s", docID)
	}

	return doc, nil
}

func (a *Aggregator) sessionsWithEvents(ctx context.Context, filter store.SessionFilter) ([]*model.ViewingSession, map[string][]*model.PageEvent, error) {
	sessions, err := a.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "sessions of %s", filter.DocumentID)
	}

	events := make(map[string][]*model.PageEvent, len(sessions))
	for start := 0; start < len(sessions); start += eventChunkSize {
		end := min(start+eventChunkSize, len(sessions))

		tokens := make([]string, 0, end-start)
		for _, session := range sessions[start:end] {
			tokens = append(tokens, session.Token)
		}

		chunk, err := a.store.ListPageEvents(ctx, tokens...)
		if err != nil {
			return nil, nil, storeError(err, "page events of %s", filter.DocumentID)
		}
		for _, event := range chunk {
			events[event.SessionToken] = append(events[event.SessionToken], event)
		}
	}

	return sessions, events, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknownClient
	}

	return s
}
