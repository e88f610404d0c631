package docview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/emrgen/docview/internal/classify"
	"github.com/emrgen/docview/internal/module"
	"github.com/emrgen/docview/internal/server"
	"github.com/emrgen/docview/internal/service"
	"github.com/emrgen/docview/internal/store"
	"github.com/emrgen/docview/internal/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	tester.Setup()
	code := m.Run()
	tester.RemoveDBFile()

	os.Exit(code)
}

func newServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	services := service.New(store.NewGormStore(tester.TestDB()), service.Options{RequireViewerEmail: true})
	issuer := module.NewCapabilityIssuer("client-secret", time.Hour)
	token, _, err := issuer.Issue("client-test")
	require.NoError(t, err)

	handler := server.NewHandler(services, classify.NewUserAgentClassifier(), time.UTC)
	ts := httptest.NewServer(server.NewRouter(handler, issuer))
	t.Cleanup(ts.Close)

	return ts, token
}

func TestClient(t *testing.T) {
	ts, token := newServer(t)
	ctx := context.TODO()
	admin := NewClient(ts.URL, token)
	viewer := NewClient(ts.URL, "")

	doc, err := admin.RegisterDocument(ctx, RegisterRequest{Name: "client deck", PageCount: 2})
	require.NoError(t, err)

	view, err := viewer.Resolve(ctx, doc.PublicToken)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, view.DocumentID)

	session, err := viewer.OpenSession(ctx, doc.PublicToken, "client-session", "viewer@example.com")
	require.NoError(t, err)

	page, duration := 1, 9.5
	res, err := viewer.SendEvent(ctx, Event{SessionToken: session.Token, Page: &page, Duration: &duration})
	require.NoError(t, err)
	assert.Equal(t, "inserted", res.Outcome)

	detail, err := admin.SessionDetail(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, 9.5, detail.Session.TotalDuration)

	sessions, err := admin.ListSessions(ctx, doc.ID, "", "", 5)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	rollup, err := admin.Rollup(ctx, doc.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, rollup.Sessions)

	require.NoError(t, admin.DeleteDocument(ctx, doc.ID, false))
	_, err = viewer.Resolve(ctx, doc.PublicToken)
	assert.True(t, IsNotFound(err))
}

func TestClient_Errors(t *testing.T) {
	ts, _ := newServer(t)
	viewer := NewClient(ts.URL, "")

	_, err := viewer.RegisterDocument(context.TODO(), RegisterRequest{Name: "nope"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Code)
}
