package service

import (
	"context"
	"testing"
	"time"

	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_Open(t *testing.T) {
	clock := newTestClock()
	services, _ := setup(t, Options{Clock: clock.Now, RequireViewerEmail: true})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 4)

	session, err := services.Sessions.Open(ctx, PublicCaller(), OpenRequest{
		DocumentID:   docID,
		LinkToken:    link,
		SessionToken: "client-correlation-id",
		Client:       model.ClientMeta{DeviceType: "Desktop", Browser: "Firefox", OperatingSystem: "Linux"},
		Email:        "  viewer@example.com ",
	})
	require.NoError(t, err)

	assert.Equal(t, "client-correlation-id", session.Token)
	assert.Equal(t, model.SessionActive, session.Status)
	assert.Equal(t, 4, session.TotalPages)
	assert.Zero(t, session.TotalDuration)
	assert.Zero(t, session.UniquePages)
	assert.Nil(t, session.EndedAt)
	assert.Equal(t, clock.Now(), session.StartedAt)
	require.NotNil(t, session.Email)
	assert.Equal(t, "viewer@example.com", *session.Email)

	// the same correlation id for the same visit is idempotent
	again, err := services.Sessions.Open(ctx, PublicCaller(), OpenRequest{
		DocumentID:   docID,
		LinkToken:    link,
		SessionToken: "client-correlation-id",
		Email:        "viewer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, session.Token, again.Token)
	assert.True(t, session.StartedAt.Equal(again.StartedAt))

	otherDoc, otherLink := registerDocument(t, services, "other.pdf", 2)
	_, err = services.Sessions.Open(ctx, PublicCaller(), OpenRequest{
		DocumentID:   otherDoc,
		LinkToken:    otherLink,
		SessionToken: "client-correlation-id",
		Email:        "viewer@example.com",
	})
	assert.ErrorIs(t, err, ErrIntegrity)

	generated := openSession(t, services, docID, link)
	assert.NotEmpty(t, generated)
	assert.NotEqual(t, session.Token, generated)
}

func TestSessionManager_OpenErrors(t *testing.T) {
	services, _ := setup(t, Options{RequireViewerEmail: true})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 4)
	otherDoc, otherLink := registerDocument(t, services, "other.pdf", 2)
	deletedDoc, deletedLink := registerDocument(t, services, "deleted.pdf", 2)
	require.NoError(t, services.Documents.SoftDelete(ctx, admin, deletedDoc))

	tests := []struct {
		name    string
		caller  Caller
		req     OpenRequest
		wantErr error
	}{
		{
			name:    "email required for public views",
			caller:  PublicCaller(),
			req:     OpenRequest{DocumentID: docID, LinkToken: link},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "admin preview needs the capability",
			caller:  PublicCaller(),
			req:     OpenRequest{DocumentID: docID, Admin: true},
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "link of another document",
			caller:  PublicCaller(),
			req:     OpenRequest{DocumentID: docID, LinkToken: otherLink, Email: "a@b.c"},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "unknown document",
			caller:  PublicCaller(),
			req:     OpenRequest{DocumentID: "missing", LinkToken: link, Email: "a@b.c"},
			wantErr: ErrNotFound,
		},
		{
			name:    "unknown link",
			caller:  PublicCaller(),
			req:     OpenRequest{DocumentID: otherDoc, LinkToken: "missing", Email: "a@b.c"},
			wantErr: ErrNotFound,
		},
		{
			name:    "deleted document",
			caller:  PublicCaller(),
			req:     OpenRequest{DocumentID: deletedDoc, LinkToken: deletedLink, Email: "a@b.c"},
			wantErr: ErrGone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := services.Sessions.Open(ctx, tt.caller, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// admins preview without email or link
	session, err := services.Sessions.Open(ctx, admin, OpenRequest{DocumentID: docID, Admin: true})
	require.NoError(t, err)
	assert.True(t, session.IsAdmin)
	assert.Nil(t, session.Email)
}

func TestSessionManager_RecordActivity(t *testing.T) {
	clock := newTestClock()
	services, s := setup(t, Options{Clock: clock.Now})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 4)
	token := openSession(t, services, docID, link)

	clock.Advance(time.Minute)
	session, err := services.Sessions.RecordActivity(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), session.LastActivityAt)
	assert.Equal(t, model.SessionActive, session.Status)

	stored, err := s.GetSession(ctx, token)
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(stored.LastActivityAt))

	_, err = services.Sessions.RecordActivity(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionManager_CompleteIsIdempotent(t *testing.T) {
	clock := newTestClock()
	events := &recordingQueue{}
	services, s := setup(t, Options{Clock: clock.Now, Queue: events})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	token := openSession(t, services, docID, link)

	_, err := services.Folder.Fold(ctx, FoldRequest{SessionToken: token, Page: 1, Fields: fields(5, 0.5)})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	final := fields(8, 1)
	final.IsComplete = true
	session, result, err := services.Sessions.Complete(ctx, CompleteRequest{SessionToken: token, Page: 2, Fields: final})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, model.SessionCompleted, session.Status)
	require.NotNil(t, session.EndedAt)
	assert.Equal(t, clock.Now(), *session.EndedAt)
	assert.InDelta(t, 13.0, session.TotalDuration, 1e-9)

	before := assertSummary(t, s, token)

	// a second completion with different data changes nothing
	clock.Advance(time.Minute)
	again, result, err := services.Sessions.Complete(ctx, CompleteRequest{SessionToken: token, Page: 3, Fields: fields(100, 1)})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, model.SessionCompleted, again.Status)

	after := assertSummary(t, s, token)
	assert.Equal(t, before.TotalDuration, after.TotalDuration)
	assert.Equal(t, before.UniquePages, after.UniquePages)
	assert.True(t, before.EndedAt.Equal(*after.EndedAt))
	assert.Len(t, pageEvents(t, s, token), 2)

	assert.Equal(t, []queue.SessionEventType{queue.SessionOpened, queue.SessionCompleted}, events.Types())

	_, _, err = services.Sessions.Complete(ctx, CompleteRequest{SessionToken: "unknown", Page: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionManager_Abandon(t *testing.T) {
	clock := newTestClock()
	events := &recordingQueue{}
	services, s := setup(t, Options{Clock: clock.Now, Queue: events})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	idle := openSession(t, services, docID, link)
	_, err := services.Folder.Fold(ctx, FoldRequest{SessionToken: idle, Page: 1, Fields: fields(4, 0.2)})
	require.NoError(t, err)
	lastActivity := clock.Now()

	busy := openSession(t, services, docID, link)
	done := openSession(t, services, docID, link)
	_, _, err = services.Sessions.Complete(ctx, CompleteRequest{SessionToken: done, Page: 1, Fields: fields(1, 0)})
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, err = services.Sessions.RecordActivity(ctx, busy)
	require.NoError(t, err)

	count, err := services.Sessions.Abandon(ctx, clock.Now().Add(-10*time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	session := assertSummary(t, s, idle)
	assert.Equal(t, model.SessionAbandoned, session.Status)
	require.NotNil(t, session.EndedAt)
	assert.True(t, lastActivity.Equal(*session.EndedAt))

	stored, err := s.GetSession(ctx, busy)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, stored.Status)

	// a later sweep only picks up the remaining active session
	count, err = services.Sessions.Abandon(ctx, clock.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err = s.GetSession(ctx, busy)
	require.NoError(t, err)
	assert.Equal(t, model.SessionAbandoned, stored.Status)

	stored, err = s.GetSession(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, stored.Status)

	session = assertSummary(t, s, idle)
	assert.True(t, lastActivity.Equal(*session.EndedAt))

	// a late completion still folds its event but keeps the abandoned status
	_, result, err := services.Sessions.Complete(ctx, CompleteRequest{SessionToken: idle, Page: 2, Fields: fields(6, 0.5)})
	require.NoError(t, err)
	require.NotNil(t, result)
	session = assertSummary(t, s, idle)
	assert.Equal(t, model.SessionAbandoned, session.Status)
	assert.InDelta(t, 10.0, session.TotalDuration, 1e-9)

	assert.Contains(t, events.Types(), queue.SessionAbandoned)
}

func TestSessionManager_DocumentLifecycle(t *testing.T) {
	services, _ := setup(t, Options{})
	ctx := context.TODO()

	docID, link := registerDocument(t, services, "deck.pdf", 3)
	token := openSession(t, services, docID, link)

	require.NoError(t, services.Documents.SoftDelete(ctx, admin, docID))

	_, err := services.Sessions.RecordActivity(ctx, token)
	assert.ErrorIs(t, err, ErrGone)

	_, _, err = services.Sessions.Complete(ctx, CompleteRequest{SessionToken: token, Page: 1})
	assert.ErrorIs(t, err, ErrGone)

	// erasing cascades, the session no longer exists
	require.NoError(t, services.Documents.Erase(ctx, admin, docID))

	_, err = services.Sessions.RecordActivity(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionManager_AbandonDeletedDocument(t *testing.T) {
	clock := newTestClock()
	services, s := setup(t, Options{Clock: clock.Now})
	ctx := context.TODO()

	deletedID, deletedLink := registerDocument(t, services, "old.pdf", 2)
	stale := []string{
		openSession(t, services, deletedID, deletedLink),
		openSession(t, services, deletedID, deletedLink),
	}
	require.NoError(t, services.Documents.SoftDelete(ctx, admin, deletedID))

	clock.Advance(time.Minute)
	liveID, liveLink := registerDocument(t, services, "live.pdf", 2)
	live := openSession(t, services, liveID, liveLink)

	clock.Advance(time.Hour)
	before := clock.Now().Add(-10 * time.Minute)

	// the oldest idle sessions belong to the deleted document and fill the batch
	count, err := services.Sessions.Abandon(ctx, before, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = services.Sessions.Abandon(ctx, before, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	for _, token := range append(stale, live) {
		stored, err := s.GetSession(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, model.SessionAbandoned, stored.Status, token)
	}
}
