package db

import (
	"fmt"

	"github.com/campus-card/cardledger/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the ledger schema.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.CardType{},
		&models.Card{},
		&models.CardTx{},
		&models.HolderEntry{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
