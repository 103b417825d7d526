package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardTx is an append-only ledger entry of a card.
type CardTx struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardNo string `gorm:"type:varchar(64);not null;index;index:idx_card_txs_card_time,priority:1"` // Owning card number.
	Kind   string `gorm:"type:varchar(16);not null;index"`                                         // RECHARGE/CONSUME/REFUND.

	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null"` // Signed amount; CONSUME is negative.
	BalanceAfter decimal.Decimal `gorm:"type:decimal(20,2);not null"` // Card balance right after this entry.

	Merchant   string    `gorm:"type:varchar(64);not null;default:''"`                          // Merchant or source tag.
	OccurredAt time.Time `gorm:"not null;index;index:idx_card_txs_card_time,priority:2"` // Occurrence timestamp.
	Note       string    `gorm:"type:text"`                                                     // Optional free text.
}

// TableName pins the ledger table name.
func (CardTx) TableName() string { return "card_txs" }
