package cli

import (
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"mathquest-service/internal/config"
	"mathquest-service/internal/infra/postgres"
)

// NewSeedCmd inserts the demo user and demo lessons.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with the demo user and lessons",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if err := runMigrationsWithConfig(ctx, cfg); err != nil {
				return err
			}

			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Seed(ctx, pool, cfg.Demo.UserID); err != nil {
				return err
			}
			log.Printf("seeded demo user %d and demo lessons", cfg.Demo.UserID)
			return nil
		},
	}
}
