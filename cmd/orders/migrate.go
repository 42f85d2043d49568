package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bookvault/internal/orders/adapters"
	"bookvault/pkg/config"
	"bookvault/pkg/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the orders, order_items and books tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := loadConfig()
			defer log.Sync()

			dbConn, err := connectDB(cfg)
			if err != nil {
				return err
			}
			if err := adapters.Migrate(dbConn); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			log.Info("database migrated", zap.String("database", cfg.DBName))
			return nil
		},
	}
}

func connectDB(cfg *config.Config) (*gorm.DB, error) {
	dbConn, err := db.NewConnection(db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Timeout:  cfg.DBTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return dbConn, nil
}
