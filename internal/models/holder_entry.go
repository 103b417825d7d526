package models

import "time"

// HolderEntry caches the display name of a card holder owned by the
// organisational subsystem.
type HolderEntry struct {
	HolderType string `gorm:"type:varchar(16);primaryKey"` // STUDENT/TEACHER/STAFF/VISITOR.
	HolderID   string `gorm:"type:varchar(64);primaryKey"` // External holder identifier.

	Name string `gorm:"type:varchar(128);not null"` // Display name.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last sync timestamp.
}
