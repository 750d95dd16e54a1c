package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sitescan/internal/config"
	"sitescan/internal/logger"
)

// options is shared by every subcommand after the root pre-run.
type options struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "sitescan",
		Short: "Construction image scanner backed by vision LLMs",
		Long: `Sitescan classifies construction photos as tools, materials or buildings,
extracts structured details with a vision model, enriches them with web
search results and stores the records.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			path := opts.configPath
			if path == "" {
				path = os.Getenv("SITESCAN_CONFIG")
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			log, err := logger.Init(cfg.Log.Format, cfg.Log.Level)
			if err != nil {
				return err
			}
			opts.cfg, opts.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config.yaml (default ./config.yaml or $SITESCAN_CONFIG)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newScanCmd(opts))

	return cmd
}
