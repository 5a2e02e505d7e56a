package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m-navaneeth8770/queuectl/internal/bootstrap"
)

// newInitDBCmd applies the schema migrations and exits. Useful when
// DB_RUN_MIGRATIONS_ON_START is disabled.
func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			logger := bootstrap.InitLogger(cfg.Observability, cfg.IsDev)

			db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
				DBConfig: cfg.Postgres,
				Logger:   logger,
			})
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					logger.ErrorContext(ctx, "close database failed", "error", cerr)
				}
			}()

			if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
				return err
			}
			fmt.Println("Database initialised.")
			return nil
		},
	}
}
