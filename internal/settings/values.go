package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Setting errors returned by Put and Validate.
var (
	ErrUnknownKey   = errors.New("settings: unknown key")
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Validate checks that raw is an acceptable value for key.
func Validate(key string, raw json.RawMessage) error {
	if !json.Valid(raw) {
		return fmt.Errorf("%w: not valid json", ErrInvalidValue)
	}
	switch key {
	case BatchIssueMaxItemsKey:
		if n, ok := parseInt(raw); !ok || n < 1 {
			return fmt.Errorf("%w: %s must be a positive integer", ErrInvalidValue, key)
		}
	case VisitorCardValidDaysKey:
		if n, ok := parseInt(raw); !ok || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidValue, key)
		}
	case ReplacementDefaultFeeKey:
		var d decimal.Decimal
		if errUnmarshal := json.Unmarshal(raw, &d); errUnmarshal != nil || d.IsNegative() || !d.Equal(d.Round(2)) {
			return fmt.Errorf("%w: %s must be a non-negative amount in cents", ErrInvalidValue, key)
		}
	}
	return nil
}

// Int returns the integer value of key, or def when unset or malformed.
func Int(key string, def int) int {
	raw, ok := DBConfigValue(key)
	if !ok {
		return def
	}
	if n, okParse := parseInt(raw); okParse {
		return n
	}
	return def
}

// Decimal returns the decimal value of key, or def when unset or malformed.
func Decimal(key string, def decimal.Decimal) decimal.Decimal {
	raw, ok := DBConfigValue(key)
	if !ok {
		return def
	}
	var d decimal.Decimal
	if errUnmarshal := json.Unmarshal(raw, &d); errUnmarshal != nil {
		return def
	}
	return d
}

// parseInt accepts a JSON number, an integral float or a numeric string.
func parseInt(raw json.RawMessage) (int, bool) {
	var n int
	if errUnmarshal := json.Unmarshal(raw, &n); errUnmarshal == nil {
		return n, true
	}
	var f float64
	if errUnmarshal := json.Unmarshal(raw, &f); errUnmarshal == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if errUnmarshal := json.Unmarshal(raw, &s); errUnmarshal == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(s))
		if errParse == nil {
			return parsed, true
		}
	}
	return 0, false
}
