package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/emrgen/docview/internal/queue"
	"github.com/emrgen/docview/internal/store"
	"github.com/emrgen/docview/internal/tester"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	tester.Setup()
	code := m.Run()
	tester.RemoveDBFile()

	os.Exit(code)
}

var admin = AdminCaller("tester")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type recordingQueue struct {
	mu     sync.Mutex
	events []*queue.SessionEvent
}

func (q *recordingQueue) Publish(_ context.Context, event *queue.SessionEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, event)
	return nil
}

func (q *recordingQueue) Close() {}

func (q *recordingQueue) Types() []queue.SessionEventType {
	q.mu.Lock()
	defer q.mu.Unlock()

	types := make([]queue.SessionEventType, 0, len(q.events))
	for _, e := range q.events {
		types = append(types, e.Type)
	}
	return types
}

// setup starts every test on a fresh database.
func setup(t *testing.T, opts Options) (*Services, store.Store) {
	t.Helper()

	tester.RemoveDBFile()
	tester.Setup()

	s := store.NewGormStore(tester.TestDB())
	return New(s, opts), s
}

func registerDocument(t *testing.T, services *Services, name string, pages int) (string, string) {
	t.Helper()

	doc, link, err := services.Documents.Register(context.TODO(), admin, RegisterRequest{Name: name, PageCount: pages})
	require.NoError(t, err)

	return doc.ID, link.PublicToken
}

func openSession(t *testing.T, services *Services, docID, linkToken string) string {
	t.Helper()

	session, err := services.Sessions.Open(context.TODO(), PublicCaller(), OpenRequest{
		DocumentID: docID,
		LinkToken:  linkToken,
		Email:      "viewer@example.com",
	})
	require.NoError(t, err)

	return session.Token
}

func fields(duration, scroll float64) PageFields {
	f := DefaultPageFields()
	f.Duration = duration
	f.ScrollDepth = scroll
	return f
}
