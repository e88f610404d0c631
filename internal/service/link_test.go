package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/store"
	"github.com/emrgen/docview/internal/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeLinks(t *testing.T, docID string) []*model.LinkMapping {
	t.Helper()

	var links []*model.LinkMapping
	err := tester.TestDB().Where("document_id = ? AND active = ?", docID, true).Find(&links).Error
	require.NoError(t, err)

	return links
}

func TestLinkResolver_IssueRotates(t *testing.T) {
	services, _ := setup(t, Options{})
	ctx := context.TODO()

	docID, first := registerDocument(t, services, "deck.pdf", 3)

	second, err := services.Links.Issue(ctx, admin, docID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second.PublicToken)
	assert.True(t, second.Active)

	links := activeLinks(t, docID)
	require.Len(t, links, 1)
	assert.Equal(t, second.PublicToken, links[0].PublicToken)

	// the old token no longer resolves
	_, _, err = services.Links.Resolve(ctx, first)
	assert.ErrorIs(t, err, ErrNotFound)

	doc, link, err := services.Links.Resolve(ctx, second.PublicToken)
	require.NoError(t, err)
	assert.Equal(t, docID, doc.ID)
	assert.Equal(t, int64(1), link.ViewCount)
	assert.NotNil(t, link.LastUsedAt)

	// admin access ignores rotation
	doc, err = services.Links.ResolveAdmin(ctx, admin, docID)
	require.NoError(t, err)
	assert.Equal(t, docID, doc.ID)
}

func TestLinkResolver_ResolveCountsViews(t *testing.T) {
	services, s := setup(t, Options{})
	ctx := context.TODO()

	_, token := registerDocument(t, services, "deck.pdf", 3)

	for i := 0; i < 3; i++ {
		_, _, err := services.Links.Resolve(ctx, token)
		require.NoError(t, err)
	}

	doc, link, err := services.Links.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "deck.pdf", doc.Name)
	assert.Equal(t, int64(3), link.ViewCount)

	link, err = s.GetLinkMapping(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), link.ViewCount)
	assert.NotNil(t, link.LastUsedAt)
}

func TestLinkResolver_Errors(t *testing.T) {
	services, _ := setup(t, Options{})
	ctx := context.TODO()

	docID, token := registerDocument(t, services, "deck.pdf", 3)

	_, _, err := services.Links.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = services.Links.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = services.Links.Issue(ctx, PublicCaller(), docID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = services.Links.ResolveAdmin(ctx, PublicCaller(), docID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = services.Links.Issue(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, services.Documents.SoftDelete(ctx, admin, docID))

	// soft delete deactivates every link
	_, _, err = services.Links.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = services.Links.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = services.Links.ResolveAdmin(ctx, admin, docID)
	assert.ErrorIs(t, err, ErrGone)

	_, err = services.Links.Issue(ctx, admin, docID)
	assert.ErrorIs(t, err, ErrGone)
}

func TestLinkResolver_CollisionRetry(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		wantErr error
	}{
		{
			name:   "retried once with a fresh token",
			tokens: []string{"taken", "fresh"},
		},
		{
			name:    "second collision surfaces",
			tokens:  []string{"taken", "taken"},
			wantErr: ErrIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			calls := 0
			source := []string{"taken"}
			services, _ := setup(t, Options{TokenSource: func() (string, error) {
				mu.Lock()
				defer mu.Unlock()

				token := source[0]
				if len(source) > 1 {
					source = source[1:]
				}
				calls++
				return token, nil
			}})
			ctx := context.TODO()

			docID, token := registerDocument(t, services, "deck.pdf", 3)
			assert.Equal(t, "taken", token)

			source = tt.tokens
			link, err := services.Links.Issue(ctx, admin, docID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				// the failed rotation rolled back, the old link stays active
				links := activeLinks(t, docID)
				require.Len(t, links, 1)
				assert.Equal(t, "taken", links[0].PublicToken)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "fresh", link.PublicToken)
			assert.Equal(t, 3, calls)
			assert.Len(t, activeLinks(t, docID), 1)
		})
	}
}

func TestLinkResolver_ConcurrentIssue(t *testing.T) {
	services, _ := setup(t, Options{})
	ctx := context.TODO()

	docID, _ := registerDocument(t, services, "deck.pdf", 3)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := services.Links.Issue(ctx, admin, docID)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			link, err := services.Links.Current(ctx, admin, docID)
			if err == nil && !link.Active {
				err = fmt.Errorf("current link %s is inactive", link.PublicToken)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, activeLinks(t, docID), 1)
}

func TestLinkResolver_Current(t *testing.T) {
	services, s := setup(t, Options{})
	ctx := context.TODO()

	docID, token := registerDocument(t, services, "deck.pdf", 3)

	link, err := services.Links.Current(ctx, admin, docID)
	require.NoError(t, err)
	assert.Equal(t, token, link.PublicToken)

	// a document without an active link gets one on demand
	err = s.Transaction(ctx, func(tx store.Store) error {
		_, err := tx.DeactivateLinkMappings(ctx, docID)
		return err
	})
	require.NoError(t, err)

	link, err = services.Links.Current(ctx, admin, docID)
	require.NoError(t, err)
	assert.NotEqual(t, token, link.PublicToken)
	assert.Len(t, activeLinks(t, docID), 1)
}
