package util

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"modernc.org/sqlite"
)

var registerOnce sync.Once

// RegisterSQLFunctions installs the SQL functions metadata.db triggers call:
// title_sort(title) and uuid4(). Safe to call more than once.
func RegisterSQLFunctions() {
	registerOnce.Do(func() {
		sqlite.MustRegisterFunction("title_sort", &sqlite.FunctionImpl{
			NArgs:         1,
			Deterministic: true,
			Scalar: func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case nil:
					return nil, nil
				case string:
					return TitleSort(v, ""), nil
				case []byte:
					return TitleSort(string(v), ""), nil
				default:
					return nil, fmt.Errorf("invalid type: %T", args[0])
				}
			},
		})
		sqlite.MustRegisterFunction("uuid4", &sqlite.FunctionImpl{
			NArgs: 0,
			Scalar: func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				return UUID4(), nil
			},
		})
	})
}
