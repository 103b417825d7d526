package models

import "time"

// CardType is static reference data describing a kind of card.
type CardType struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:varchar(64);not null"` // Display name.
	Description string `gorm:"type:text"`                 // Optional description.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
