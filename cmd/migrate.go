package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sitescan/internal/storage"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			db, err := storage.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
				return err
			}
			opts.log.Info("database migrated", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
