// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marketdesk/wb-backoffice/internal/config"
	"github.com/marketdesk/wb-backoffice/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.WBToken{},
		&models.ProductCache{},
		&models.SyncRun{},
		&models.SubjectCharacteristicsCache{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Token indexes
		"CREATE INDEX IF NOT EXISTS idx_wb_tokens_active ON wb_tokens(is_active)",
		"CREATE INDEX IF NOT EXISTS idx_wb_tokens_last_synced ON wb_tokens(last_synced_at DESC)",

		// Product cache indexes: freshness checks scan (token_id, last_updated),
		// reads scan (token_id, is_active)
		"CREATE INDEX IF NOT EXISTS idx_product_cache_token_updated ON product_caches(token_id, last_updated DESC)",
		"CREATE INDEX IF NOT EXISTS idx_product_cache_token_active ON product_caches(token_id, is_active)",

		// Sync run indexes
		"CREATE INDEX IF NOT EXISTS idx_sync_runs_token_started ON sync_runs(token_id, started_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_sync_runs_token_status ON sync_runs(token_id, status)",

		// Subject characteristics cache: staleness sweeps scan last_updated
		"CREATE INDEX IF NOT EXISTS idx_subject_charcs_updated ON subject_characteristics_caches(last_updated)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}
