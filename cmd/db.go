package cmd

import (
	"github.com/emrgen/docview/internal/config"
	"github.com/emrgen/docview/internal/store"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "database commands",
}

func init() {
	dbCmd.AddCommand(migrateCmd())
}

// migrateCmd creates or updates the documents, link_mappings,
// viewing_sessions and page_events tables.
func migrateCmd() *cobra.Command {
	var driver string
	var dsn string

	command := &cobra.Command{
		Use:     "migrate",
		Short:   "migrate the database",
		Example: "docview db migrate --driver postgres --dsn postgres://...",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			if driver != "" {
				cfg.DBDriver = driver
			}
			if dsn != "" {
				cfg.DBDsn = dsn
			}

			db, err := config.OpenDb(cfg.DBDriver, cfg.DBDsn)
			if err != nil {
				logrus.Fatalf("error opening %s database: %v", cfg.DBDriver, err)
			}

			if err := store.NewGormStore(db).Migrate(); err != nil {
				logrus.Fatalf("error migrating %s database: %v", cfg.DBDriver, err)
			}

			color.Green("migrated %s database", cfg.DBDriver)
		},
	}

	command.Flags().StringVar(&driver, "driver", "", "sqlite or postgres, defaults to DB_DRIVER")
	command.Flags().StringVar(&dsn, "dsn", "", "connection string, defaults to DB_DSN")

	return command
}
