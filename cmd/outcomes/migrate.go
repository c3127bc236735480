package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"setup-outcome-lab/internal/config"
	"setup-outcome-lab/internal/storage/migrations"
	pgstore "setup-outcome-lab/internal/storage/postgres"
	sqlitestore "setup-outcome-lab/internal/storage/sqlite"
)

func newMigrateCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded schema migrations to the configured databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}

			applied := 0
			if cfg.Postgres.DSN != "" {
				pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
				if err != nil {
					return fmt.Errorf("connect to postgres: %w", err)
				}
				versions, err := migrations.RunPostgresMigrations(ctx, pool)
				pool.Close()
				if err != nil {
					return err
				}
				logger.Info().Strs("versions", versions).Msg("postgres migrations applied")
				applied++
			}

			if cfg.ClickHouse.DSN != "" {
				conn, versions, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
				if err != nil {
					return err
				}
				_ = conn.Close()
				logger.Info().Strs("versions", versions).Msg("clickhouse migrations applied")
				applied++
			}

			if cfg.Storage.Backend == config.BackendSQLite {
				st, err := sqlitestore.NewOutcomeStore(cfg.SQLite.Path)
				if err != nil {
					return err
				}
				_ = st.Close()
				logger.Info().Str("path", cfg.SQLite.Path).Msg("sqlite schema migrated")
				applied++
			}

			if applied == 0 {
				logger.Warn().Msg("no database configured, nothing to migrate")
			}
			return nil
		},
	}
}
