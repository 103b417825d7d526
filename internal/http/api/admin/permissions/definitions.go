package permissions

import (
	"strings"

	"github.com/campus-card/cardledger/internal/security"
)

// Definition describes one admin route and the role it requires.
type Definition struct {
	Key      string // "METHOD /path" as registered in gin.
	Method   string
	Path     string
	Module   string // Grouping used by operator tooling.
	Mutating bool   // Requires an operator or admin role.
	Admin    bool   // Requires the admin role.
}

// Key builds the permission key for a method and a gin full path.
func Key(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(path)
}

func define(method, path, module string, mutating, admin bool) Definition {
	return Definition{
		Key:      Key(method, path),
		Method:   method,
		Path:     path,
		Module:   module,
		Mutating: mutating,
		Admin:    admin,
	}
}

var definitions = []Definition{
	define("GET", "/v0/admin/cards", "cards", false, false),
	define("POST", "/v0/admin/cards", "cards", true, false),
	define("POST", "/v0/admin/card-batches", "cards", true, false),
	define("GET", "/v0/admin/cards/:cardNo", "cards", false, false),
	define("GET", "/v0/admin/cards/:cardNo/transactions", "cards", false, false),
	define("GET", "/v0/admin/cards/:cardNo/reconcile", "cards", false, false),
	define("POST", "/v0/admin/cards/:cardNo/recharge", "cards", true, false),
	define("POST", "/v0/admin/cards/:cardNo/consume", "cards", true, false),
	define("POST", "/v0/admin/cards/:cardNo/report-loss", "cards", true, false),
	define("POST", "/v0/admin/cards/:cardNo/unloss", "cards", true, false),
	define("POST", "/v0/admin/cards/:cardNo/freeze", "cards", true, false),
	define("POST", "/v0/admin/cards/:cardNo/unfreeze", "cards", true, false),
	define("POST", "/v0/admin/cards/:cardNo/cancel", "cards", true, false),
	define("POST", "/v0/admin/cards/:cardNo/replace", "cards", true, false),

	define("GET", "/v0/admin/card-types", "card_types", false, false),
	define("POST", "/v0/admin/card-types", "card_types", true, true),
	define("PUT", "/v0/admin/card-types/:id", "card_types", true, true),
	define("DELETE", "/v0/admin/card-types/:id", "card_types", true, true),

	define("GET", "/v0/admin/transactions/report", "reports", false, false),

	define("PUT", "/v0/admin/holders/:type/:id", "holders", true, true),
	define("DELETE", "/v0/admin/holders/:type/:id", "holders", true, true),

	define("GET", "/v0/admin/settings", "settings", false, true),
	define("PUT", "/v0/admin/settings/:key", "settings", true, true),
}

// Definitions returns every admin route definition.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap indexes the definitions by key.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}

// Allowed reports whether role may call the route described by def.
func Allowed(def Definition, role string) bool {
	switch role {
	case security.RoleAdmin:
		return true
	case security.RoleOperator:
		return !def.Admin
	case security.RoleViewer:
		return !def.Mutating && !def.Admin
	default:
		return false
	}
}
