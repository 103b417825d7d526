package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting stores a runtime ledger setting as a JSON value.
type Setting struct {
	Key       string         `gorm:"type:varchar(255);primaryKey"` // Setting key.
	Value     datatypes.JSON `gorm:"type:text;not null"`           // JSON-encoded value stored as text.
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime"`      // Last update timestamp.
}
