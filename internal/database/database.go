package database

import (
	"fmt"
	"log/slog"

	"apartner/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("Database connection established")
	return db, nil
}

// Models lists every table owned by the service, in migration order
func Models() []interface{} {
	// Marketplace models the signing flow reads and writes
	coreModels := []interface{}{
		&models.User{},
		&models.Apartment{},
		&models.Room{},
		&models.Contract{},
		&models.SuggestedContract{},
		&models.Message{},
		&models.Bill{},
	}

	// Signing bookkeeping
	signingModels := []interface{}{
		&models.SigningStep{},
		&models.OutboxMessage{},
	}

	return append(coreModels, signingModels...)
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB) error {
	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}

	slog.Info("Database migrations completed")
	return nil
}
