package settings

// DB config keys and defaults for ledger settings.
const (
	// BatchIssueMaxItemsKey caps the number of cards in one batch issuance.
	BatchIssueMaxItemsKey = "BATCH_ISSUE_MAX_ITEMS"
	// VisitorCardValidDaysKey sets the default validity of VISITOR cards issued without an expiry.
	VisitorCardValidDaysKey = "VISITOR_CARD_VALID_DAYS"
	// ReplacementDefaultFeeKey is the fee charged by replacements that do not name one.
	ReplacementDefaultFeeKey = "REPLACEMENT_DEFAULT_FEE"

	// DefaultBatchIssueMaxItems is the fallback batch cap.
	DefaultBatchIssueMaxItems = 500
	// DefaultVisitorCardValidDays disables the default visitor expiry.
	DefaultVisitorCardValidDays = 0
	// DefaultReplacementFee is the fallback replacement fee.
	DefaultReplacementFee = "0"
)

// Known lists the keys accepted by the settings API.
var Known = []string{
	BatchIssueMaxItemsKey,
	VisitorCardValidDaysKey,
	ReplacementDefaultFeeKey,
}

// IsKnown reports whether key is a recognised setting.
func IsKnown(key string) bool {
	for _, k := range Known {
		if k == key {
			return true
		}
	}
	return false
}
