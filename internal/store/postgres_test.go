//go:build integration

package store

import (
	"testing"

	"github.com/emrgen/docview/internal/model"
	"github.com/emrgen/docview/internal/tester"
	"github.com/stretchr/testify/require"
)

// TestGormStore_Postgres runs the store contract on a dockerized postgres.
func TestGormStore_Postgres(t *testing.T) {
	db, purge, err := tester.SetupPostgres()
	require.NoError(t, err)
	defer purge()

	runStoreSuite(t, func(t *testing.T) Store {
		require.NoError(t, db.Migrator().DropTable(&model.PageEvent{}, &model.ViewingSession{}, &model.LinkMapping{}, &model.Document{}))
		require.NoError(t, model.Migrate(db))

		return NewGormStore(db)
	})
}
