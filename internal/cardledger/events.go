package cardledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a committed ledger change.
type EventType string

const (
	EventIssued        EventType = "card.issued"
	EventRecharged     EventType = "card.recharged"
	EventConsumed      EventType = "card.consumed"
	EventStatusChanged EventType = "card.status_changed"
	EventCancelled     EventType = "card.cancelled"
	EventReplaced      EventType = "card.replaced"
)

// Event describes a committed change to one card.
type Event struct {
	Type          EventType       `json:"type"`
	CardNo        string          `json:"card_no"`
	RelatedCardNo string          `json:"related_card_no,omitempty"`
	HolderType    string          `json:"holder_type,omitempty"`
	HolderID      string          `json:"holder_id,omitempty"`
	Status        Status          `json:"status,omitempty"`
	PrevStatus    Status          `json:"prev_status,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
