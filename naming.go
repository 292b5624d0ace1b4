// naming.go
//
// Model-to-table-name resolution.
//
// Context
// -------
// TableFor lets callers hand a model value instead of a table-name
// string: a struct type named UserProfile maps to "user_profiles"
// (snake_case, then pluralized).  Types that implement TableNamer
// override the convention outright.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package recordset

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// TableNamer lets a model pick its own table name.
type TableNamer interface {
	TableName() string
}

// TableFor resolves model to a table name and returns a handle for it.
// model may be a string, a TableNamer, or any struct value or pointer.
func (db *DB) TableFor(model any, opts ...TableOption) (*Table, error) {
	name, err := tableNameFor(model)
	if err != nil {
		return nil, err
	}
	return db.Table(name, opts...)
}

func tableNameFor(model any) (string, error) {
	switch m := model.(type) {
	case string:
		return m, nil
	case TableNamer:
		return m.TableName(), nil
	}

	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t.Name() == "" {
		return "", fmt.Errorf("recordset: cannot derive a table name from %T", model)
	}
	return inflection.Plural(toSnakeCase(t.Name())), nil
}

// toSnakeCase converts CamelCase to snake_case, keeping acronym runs
// together: "HTTPLog" → "http_log".
func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
