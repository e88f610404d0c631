package service

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageEvents(t *testing.T, s store.Store, token string) map[int]*model.PageEvent {
	t.Helper()

	events, err := s.ListPageEvents(context.TODO(), token)
	require.NoError(t, err)

	pages := make(map[int]*model.PageEvent, len(events))
	for _, event := range events {
		pages[event.PageNumber] = event
	}
	return pages
}

// assertSummary checks the cached session summary against its page events.
func assertSummary(t *testing.T, s store.Store, token string) *model.ViewingSession {
	t.Helper()

	session, err := s.GetSession(context.TODO(), token)
	require.NoError(t, err)

	var total float64
	events := pageEvents(t, s, token)
	for _, event := range events {
		total += event.Duration
	}
	assert.InDelta(t, total, session.TotalDuration, 1e-9)
	assert.Equal(t, len(events), session.UniquePages)

	return session
}

func TestPageEventFolder_Scenario(t *testing.T) {
	services, s := setup(t, Options{})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	token := openSession(t, services, docID, link)

	_, err := services.Folder.Fold(ctx, FoldRequest{SessionToken: token, Page: 1, Fields: fields(5, 0)})
	require.NoError(t, err)
	_, err = services.Folder.Fold(ctx, FoldRequest{SessionToken: token, Page: 1, Fields: fields(9, 0.4)})
	require.NoError(t, err)
	_, err = services.Folder.Fold(ctx, FoldRequest{SessionToken: token, Page: 2, Fields: fields(3, 0.9)})
	require.NoError(t, err)

	session, _, err := services.Sessions.Complete(ctx, CompleteRequest{SessionToken: token, Page: 2, Fields: fields(3, 0.9)})
	require.NoError(t, err)

	assert.Equal(t, model.SessionCompleted, session.Status)
	assert.InDelta(t, 12.0, session.TotalDuration, 1e-9)
	assert.Equal(t, 2, session.UniquePages)
	assert.NotNil(t, session.EndedAt)

	stored := assertSummary(t, s, token)
	assert.Equal(t, model.SessionCompleted, stored.Status)
	assert.InDelta(t, 12.0, stored.TotalDuration, 1e-9)

	pages := pageEvents(t, s, token)
	assert.InDelta(t, 0.4, pages[1].ScrollDepth, 1e-9)
	assert.InDelta(t, 0.9, pages[2].ScrollDepth, 1e-9)
	assert.InDelta(t, 9.0, pages[1].Duration, 1e-9)
}

func TestPageEventFolder_Idempotent(t *testing.T) {
	services, s := setup(t, Options{})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	token := openSession(t, services, docID, link)

	req := FoldRequest{SessionToken: token, Page: 2, Fields: PageFields{
		Duration:        4.5,
		ScrollDepth:     0.6,
		ZoomLevel:       1.25,
		TimeToFirstView: 0.8,
	}}

	first, err := services.Folder.Fold(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, FoldInserted, first.Outcome)
	once := pageEvents(t, s, token)[2]

	second, err := services.Folder.Fold(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, FoldUpdated, second.Outcome)
	twice := pageEvents(t, s, token)[2]

	assert.Equal(t, once.Duration, twice.Duration)
	assert.Equal(t, once.ScrollDepth, twice.ScrollDepth)
	assert.Equal(t, once.ZoomLevel, twice.ZoomLevel)
	assert.Equal(t, once.TimeToFirstView, twice.TimeToFirstView)
	assert.Equal(t, once.IsComplete, twice.IsComplete)
	assert.Len(t, pageEvents(t, s, token), 1)

	session := assertSummary(t, s, token)
	assert.InDelta(t, 4.5, session.TotalDuration, 1e-9)
}

func TestPageEventFolder_HighWaterMarks(t *testing.T) {
	services, s := setup(t, Options{})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	token := openSession(t, services, docID, link)

	sequence := []PageFields{
		{Duration: 1, ScrollDepth: 0.2, ZoomLevel: 1.0, TimeToFirstView: 0.5},
		{Duration: 4, ScrollDepth: 0.8, ZoomLevel: 2.0, TimeToFirstView: 0.1},
		{Duration: 6, ScrollDepth: 0.3, ZoomLevel: 1.5, IsComplete: true},
		{Duration: 7, ScrollDepth: 0.1, ZoomLevel: 1.0},
	}
	for _, f := range sequence {
		_, err := services.Folder.Fold(ctx, FoldRequest{SessionToken: token, Page: 1, Fields: f})
		require.NoError(t, err)
	}

	event := pageEvents(t, s, token)[1]
	assert.InDelta(t, 7.0, event.Duration, 1e-9)
	assert.InDelta(t, 0.8, event.ScrollDepth, 1e-9)
	assert.InDelta(t, 2.0, event.ZoomLevel, 1e-9)
	assert.InDelta(t, 0.5, event.TimeToFirstView, 1e-9)
	assert.True(t, event.IsComplete)

	assertSummary(t, s, token)
}

func TestPageEventFolder_UpdateOnlySynthesizes(t *testing.T) {
	services, s := setup(t, Options{})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	token := openSession(t, services, docID, link)

	f := fields(2.5, 0.3)
	f.UpdateOnly = true
	result, err := services.Folder.Fold(ctx, FoldRequest{SessionToken: token, Page: 3, Fields: f})
	require.NoError(t, err)

	assert.Equal(t, FoldSynthesized, result.Outcome)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, AnomalyLateUpdate, result.Anomalies[0].Kind)
	assert.ErrorIs(t, result.Anomalies[0], ErrAnomaly)

	events := pageEvents(t, s, token)
	require.Contains(t, events, 3)
	assert.InDelta(t, 2.5, events[3].Duration, 1e-9)

	// once recorded, update-only events merge normally
	f.Duration = 3.5
	result, err = services.Folder.Fold(ctx, FoldRequest{SessionToken: token, Page: 3, Fields: f})
	require.NoError(t, err)
	assert.Equal(t, FoldUpdated, result.Outcome)
	assert.Empty(t, result.Anomalies)

	session := assertSummary(t, s, token)
	assert.InDelta(t, 3.5, session.TotalDuration, 1e-9)
}

func TestPageEventFolder_Anomalies(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		docID    string
		fields   PageFields
		kinds    []AnomalyKind
		duration float64
		scroll   float64
		zoom     float64
	}{
		{
			name:     "clean event",
			page:     1,
			fields:   PageFields{Duration: 2, ScrollDepth: 0.5, ZoomLevel: 1.5},
			duration: 2, scroll: 0.5, zoom: 1.5,
		},
		{
			name:     "page beyond the declared total",
			page:     7,
			fields:   PageFields{Duration: 2},
			kinds:    []AnomalyKind{AnomalyPageOutOfRange},
			duration: 2, zoom: 1,
		},
		{
			name:     "page zero",
			page:     0,
			fields:   PageFields{Duration: 1},
			kinds:    []AnomalyKind{AnomalyPageOutOfRange},
			duration: 1, zoom: 1,
		},
		{
			name:     "negative duration is clamped",
			page:     2,
			fields:   PageFields{Duration: -4, ScrollDepth: -0.5},
			kinds:    []AnomalyKind{AnomalyNegativeValue, AnomalyNegativeValue},
			duration: 0, scroll: 0, zoom: 1,
		},
		{
			name:     "negative zoom falls back to the default",
			page:     2,
			fields:   PageFields{Duration: 1, ZoomLevel: -2},
			kinds:    []AnomalyKind{AnomalyNegativeValue},
			duration: 1, zoom: 1,
		},
		{
			name:     "non finite values",
			page:     3,
			fields:   PageFields{Duration: math.NaN(), ScrollDepth: math.Inf(1)},
			kinds:    []AnomalyKind{AnomalyNonFiniteValue, AnomalyNonFiniteValue},
			duration: 0, scroll: 0, zoom: 1,
		},
		{
			name:     "event names another document",
			page:     1,
			docID:    "other-document",
			fields:   PageFields{Duration: 1},
			kinds:    []AnomalyKind{AnomalyDocumentMismatch},
			duration: 1, zoom: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			services, s := setup(t, Options{})
			ctx := context.TODO()

			docID, link := registerDocument(t, services, "deck.pdf", 3)
			token := openSession(t, services, docID, link)

			result, err := services.Folder.Fold(ctx, FoldRequest{
				SessionToken: token,
				DocumentID:   tt.docID,
				Page:         tt.page,
				Fields:       tt.fields,
			})
			require.NoError(t, err)

			kinds := make([]AnomalyKind, 0, len(result.Anomalies))
			for _, a := range result.Anomalies {
				kinds = append(kinds, a.Kind)
			}
			assert.ElementsMatch(t, tt.kinds, kinds)

			event := pageEvents(t, s, token)[tt.page]
			require.NotNil(t, event)
			assert.Equal(t, docID, event.DocumentID)
			assert.InDelta(t, tt.duration, event.Duration, 1e-9)
			assert.InDelta(t, tt.scroll, event.ScrollDepth, 1e-9)
			assert.InDelta(t, tt.zoom, event.ZoomLevel, 1e-9)

			assertSummary(t, s, token)
		})
	}
}

func TestPageEventFolder_ConcurrentSameSession(t *testing.T) {
	services, s := setup(t, Options{})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	token := openSession(t, services, docID, link)

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 1; i <= 10; i++ {
		for page := 1; page <= 3; page++ {
			wg.Add(1)
			go func(i, page int) {
				defer wg.Done()
				_, err := services.Folder.Fold(ctx, FoldRequest{
					SessionToken: token,
					Page:         page,
					Fields:       PageFields{Duration: float64(i), ScrollDepth: float64(i) / 10, ZoomLevel: 1},
				})
				errs <- err
			}(i, page)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	events := pageEvents(t, s, token)
	require.Len(t, events, 3)
	for _, event := range events {
		// no lost update of the high-water mark
		assert.InDelta(t, 1.0, event.ScrollDepth, 1e-9)
	}
	assertSummary(t, s, token)
}

func TestPageEventFolder_Errors(t *testing.T) {
	services, _ := setup(t, Options{})
	ctx := context.TODO()

	_, err := services.Folder.Fold(ctx, FoldRequest{Page: 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = services.Folder.Fold(ctx, FoldRequest{SessionToken: "unknown", Page: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	token := openSession(t, services, docID, link)

	require.NoError(t, services.Documents.SoftDelete(ctx, admin, docID))

	_, err = services.Folder.Fold(ctx, FoldRequest{SessionToken: token, Page: 1, Fields: fields(1, 0)})
	assert.ErrorIs(t, err, ErrGone)

	// a canceled caller never commits a partial fold
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = services.Folder.Fold(canceled, FoldRequest{SessionToken: token, Page: 1, Fields: fields(1, 0)})
	assert.Error(t, err)
}
