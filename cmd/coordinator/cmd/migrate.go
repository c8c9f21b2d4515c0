package cmd

import (
	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ideavolution/coordinator/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if err := database.Connect(cfg.DatabaseURL, gormlogger.Warn); err != nil {
				return err
			}
			defer database.Close()
			return database.AutoMigrate(database.GetDB())
		},
	}
}
