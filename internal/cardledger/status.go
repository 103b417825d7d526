package cardledger

import "strings"

// Status is the lifecycle state of a card.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusLost      Status = "LOST"
	StatusFrozen    Status = "FROZEN"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus normalises s; ok is false for unknown values.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusActive, StatusLost, StatusFrozen, StatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no transition may leave the status.
func (s Status) Terminal() bool { return s == StatusCancelled }

// HolderType is the category of person a card is issued to.
type HolderType string

const (
	HolderStudent HolderType = "STUDENT"
	HolderTeacher HolderType = "TEACHER"
	HolderStaff   HolderType = "STAFF"
	HolderVisitor HolderType = "VISITOR"
)

// ParseHolderType normalises s; ok is false for unknown values.
func ParseHolderType(s string) (HolderType, bool) {
	ht := HolderType(strings.ToUpper(strings.TrimSpace(s)))
	switch ht {
	case HolderStudent, HolderTeacher, HolderStaff, HolderVisitor:
		return ht, true
	}
	return "", false
}

// TxKind is the kind of a ledger entry.
type TxKind string

const (
	TxRecharge TxKind = "RECHARGE"
	TxConsume  TxKind = "CONSUME"
	TxRefund   TxKind = "REFUND"
)

// ParseTxKind normalises s; ok is false for unknown values.
func ParseTxKind(s string) (TxKind, bool) {
	k := TxKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case TxRecharge, TxConsume, TxRefund:
		return k, true
	}
	return "", false
}

// ChangeType selects how replaceCard picks the new card type.
type ChangeType string

const (
	// ChangeSupplement reissues a card of the same type.
	ChangeSupplement ChangeType = "SUPPLEMENT"
	// ChangeTypeChange reissues the card under a different card type.
	ChangeTypeChange ChangeType = "TYPE_CHANGE"
)

// ParseChangeType normalises s; ok is false for unknown values.
func ParseChangeType(s string) (ChangeType, bool) {
	ct := ChangeType(strings.ToUpper(strings.TrimSpace(s)))
	switch ct {
	case ChangeSupplement, ChangeTypeChange:
		return ct, true
	}
	return "", false
}

// Merchant tags written by the ledger itself.
const (
	MerchantSystemIssue = "SYSTEM_ISSUE"
	MerchantCardCenter  = "CARD_CENTER"
	MerchantCarryover   = "CARRYOVER"
	MerchantUnknown     = "UNKNOWN"
)
