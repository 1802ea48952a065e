package sqlstore

import (
	"database/sql/driver"
	"strings"

	"modernc.org/sqlite"
)

// unicodeLowerFunc lower-cases every script, unlike SQLite's built-in
// LOWER which only folds ASCII.
const unicodeLowerFunc = "ledger_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(unicodeLowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// lower wraps a column expression in the dialect's Unicode-aware
// lower-case function.
func (d dialect) lower(expr string) string {
	if d == dialectPostgres {
		return "LOWER(" + expr + ")"
	}
	return unicodeLowerFunc + "(" + expr + ")"
}
