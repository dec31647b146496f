package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vipul43/saas-bridge/internal/config"
	"github.com/vipul43/saas-bridge/internal/database"
	"github.com/vipul43/saas-bridge/internal/mongostore"
)

func migrateCmd(loadConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations (postgres) or create indexes (mongo)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx := cmd.Context()

			if cfg.StorageBackend == config.StorageMongo {
				db, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
				if err != nil {
					return err
				}
				defer func() { _ = db.Client().Disconnect(context.Background()) }()

				if err := mongostore.EnsureIndexes(ctx, db); err != nil {
					return err
				}
				log.Info().Str("database", cfg.MongoDatabase).Msg("MongoDB indexes ensured")
				return nil
			}

			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			log.Info().Msg("Running database migrations...")
			if err := database.RunMigrations(db); err != nil {
				return err
			}
			log.Info().Msg("Migrations completed successfully")
			return nil
		},
	}
}
