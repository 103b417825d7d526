package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Card is a stored-value campus card.
type Card struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardNo string `gorm:"type:varchar(64);not null;uniqueIndex"` // Unique, immutable card number.
	TypeID uint64 `gorm:"not null;index"`                       // Card type reference.

	HolderType string `gorm:"type:varchar(16);not null;index:idx_cards_holder,priority:1"` // STUDENT/TEACHER/STAFF/VISITOR.
	HolderID   string `gorm:"type:varchar(64);not null;index:idx_cards_holder,priority:2"` // External holder identifier.

	Status  string          `gorm:"type:varchar(16);not null;index"` // ACTIVE/LOST/FROZEN/CANCELLED.
	Balance decimal.Decimal `gorm:"type:decimal(20,2);not null"`     // Current balance, mutated only with a ledger entry.

	CreatedAt time.Time  `gorm:"not null"`                 // Issuance timestamp.
	ExpireAt  *time.Time `gorm:"index"`                    // Expiration, VISITOR cards only.
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
