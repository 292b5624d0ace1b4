// schema.go
//
// Per-table column metadata: introspection, caching, and value checks.
//
// Context
// -------
// Before a value is accepted for a column, it is checked against the
// table's schema: nullability, a coarse semantic type (integer, float,
// string, boolean), and max length for character columns.  The schema
// for a (connection, table) pair is introspected once and memoized;
// population is wrapped in a singleflight group so concurrent first
// access costs one query, not one per caller.
//
// Introspection strategy is keyed by driver:
//
//	mysql    – SHOW COLUMNS FROM <table>
//	postgres – information_schema.columns + primary-key constraint join
//	sqlite   – PRAGMA table_info(<table>)
//
// A driver outside that set yields an empty schema, which turns value
// validation into a documented no-op for the table, not a failure.
//
// Notes
// -----
// • Table names are validated identifiers before they reach the
//   introspection SQL; PRAGMA and SHOW cannot take bound parameters.
// • Oxford commas, two spaces after periods.
package recordset

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/recordset/internal/ident"
	"github.com/yanizio/recordset/internal/metrics"
)

// SemanticType is the coarse validation category a dialect type is
// normalized into.
type SemanticType string

const (
	SemanticInteger SemanticType = "integer"
	SemanticFloat   SemanticType = "float"
	SemanticString  SemanticType = "string"
	SemanticBoolean SemanticType = "boolean"
	SemanticOther   SemanticType = "other" // no constraint modeled
)

// ColumnInfo is the normalized description of one column.
type ColumnInfo struct {
	Name        string
	RawType     string // as reported by the dialect, e.g. "varchar(80)"
	DialectType string // lowered base type, e.g. "varchar"
	Semantic    SemanticType
	Nullable    bool
	MaxLength   int // 0 when the dialect declares none
	PrimaryKey  bool
}

type schemaCache struct {
	db  *DB
	mu  sync.RWMutex
	m   map[string]map[string]ColumnInfo
	sfg singleflight.Group
}

func newSchemaCache(db *DB) *schemaCache {
	return &schemaCache{db: db, m: make(map[string]map[string]ColumnInfo)}
}

func schemaKey(conn, table string) string { return conn + "\x00" + table }

// TableSchema returns the column map for (conn, table), introspecting on
// first access.  The returned map is shared; callers must not mutate it.
func (db *DB) TableSchema(ctx context.Context, conn, table string) (map[string]ColumnInfo, error) {
	if _, err := ident.Name(table); err != nil {
		return nil, err
	}
	return db.sch.get(ctx, conn, table)
}

func (s *schemaCache) get(ctx context.Context, conn, table string) (map[string]ColumnInfo, error) {
	key := schemaKey(conn, table)

	s.mu.RLock()
	if schema, ok := s.m[key]; ok {
		s.mu.RUnlock()
		return schema, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.sfg.Do(key, func() (any, error) {
		// Double-check after the singleflight barrier.
		s.mu.RLock()
		if schema, ok := s.m[key]; ok {
			s.mu.RUnlock()
			return schema, nil
		}
		s.mu.RUnlock()

		schema, err := s.introspect(ctx, conn, table)
		if err != nil {
			metrics.SchemaLoadErrorsTotal.Inc()
			return nil, err
		}
		s.mu.Lock()
		s.m[key] = schema
		s.mu.Unlock()
		metrics.SchemaLoadTotal.Inc()
		zap.S().Debugw("table schema cached", "conn", conn, "table", table, "columns", len(schema))
		return schema, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]ColumnInfo), nil
}

// clear drops everything, or the named tables across all connections.
func (s *schemaCache) clear(tables ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(tables) == 0 {
		s.m = make(map[string]map[string]ColumnInfo)
		return
	}
	for key := range s.m {
		_, table, _ := strings.Cut(key, "\x00")
		for _, t := range tables {
			if table == t {
				delete(s.m, key)
			}
		}
	}
}

//
// Dialect introspection
//

func (s *schemaCache) introspect(ctx context.Context, conn, table string) (map[string]ColumnInfo, error) {
	entry, err := s.db.reg.Get(conn)
	if err != nil {
		return nil, err
	}

	switch entry.Driver {
	case "mysql":
		return s.introspectMySQL(ctx, conn, table)
	case "postgres":
		return s.introspectPostgres(ctx, conn, table)
	case "sqlite":
		return s.introspectSQLite(ctx, conn, table)
	default:
		// Unknown dialect: empty schema, validation no-ops.
		return map[string]ColumnInfo{}, nil
	}
}

func (s *schemaCache) introspectMySQL(ctx context.Context, conn, table string) (map[string]ColumnInfo, error) {
	rows, err := s.db.exec.query(ctx, conn, "SHOW COLUMNS FROM "+table, nil)
	if err != nil {
		return nil, err
	}
	schema := make(map[string]ColumnInfo, len(rows))
	for _, row := range rows {
		name := asString(row["Field"])
		raw := asString(row["Type"])
		base, length := splitDialectType(raw)
		ci := ColumnInfo{
			Name:        name,
			RawType:     raw,
			DialectType: base,
			Semantic:    semanticFor(base, length),
			Nullable:    strings.EqualFold(asString(row["Null"]), "YES"),
			PrimaryKey:  strings.EqualFold(asString(row["Key"]), "PRI"),
		}
		if ci.Semantic == SemanticString {
			ci.MaxLength = length
		}
		schema[name] = ci
	}
	return schema, nil
}

func (s *schemaCache) introspectPostgres(ctx context.Context, conn, table string) (map[string]ColumnInfo, error) {
	const q = `
        SELECT c.column_name,
               c.data_type,
               c.is_nullable,
               COALESCE(c.character_maximum_length, 0) AS max_length,
               EXISTS (
                   SELECT 1
                   FROM   information_schema.table_constraints tc
                   JOIN   information_schema.key_column_usage kcu
                          ON  kcu.constraint_name = tc.constraint_name
                          AND kcu.table_name      = tc.table_name
                   WHERE  tc.table_name      = c.table_name
                     AND  tc.constraint_type = 'PRIMARY KEY'
                     AND  kcu.column_name    = c.column_name
               ) AS is_pk
        FROM   information_schema.columns c
        WHERE  c.table_name = ?`
	rows, err := s.db.exec.query(ctx, conn, q, []any{table})
	if err != nil {
		return nil, err
	}
	schema := make(map[string]ColumnInfo, len(rows))
	for _, row := range rows {
		name := asString(row["column_name"])
		raw := asString(row["data_type"])
		base, _ := splitDialectType(raw)
		ci := ColumnInfo{
			Name:        name,
			RawType:     raw,
			DialectType: base,
			Semantic:    semanticFor(base, 0),
			Nullable:    strings.EqualFold(asString(row["is_nullable"]), "YES"),
			PrimaryKey:  asBool(row["is_pk"]),
		}
		if ci.Semantic == SemanticString {
			ci.MaxLength = int(asInt(row["max_length"]))
		}
		schema[name] = ci
	}
	return schema, nil
}

func (s *schemaCache) introspectSQLite(ctx context.Context, conn, table string) (map[string]ColumnInfo, error) {
	rows, err := s.db.exec.query(ctx, conn, "PRAGMA table_info("+table+")", nil)
	if err != nil {
		return nil, err
	}
	schema := make(map[string]ColumnInfo, len(rows))
	for _, row := range rows {
		name := asString(row["name"])
		raw := asString(row["type"])
		base, length := splitDialectType(raw)
		ci := ColumnInfo{
			Name:        name,
			RawType:     raw,
			DialectType: base,
			Semantic:    semanticFor(base, length),
			Nullable:    !asBool(row["notnull"]),
			PrimaryKey:  asInt(row["pk"]) > 0,
		}
		if ci.Semantic == SemanticString {
			ci.MaxLength = length
		}
		// SQLite reports the rowid alias as NOT NULL even though inserts
		// may omit it; the id column is never written by this library
		// anyway.
		schema[name] = ci
	}
	return schema, nil
}

// splitDialectType lowers "VARCHAR(80) unsigned" into ("varchar", 80).
func splitDialectType(raw string) (base string, length int) {
	base = strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(base, '('); i >= 0 {
		inner := base[i+1:]
		if j := strings.IndexAny(inner, "),"); j >= 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(inner[:j])); err == nil {
				length = n
			}
		}
		base = strings.TrimSpace(base[:i])
	}
	if i := strings.IndexByte(base, ' '); i >= 0 {
		base = base[:i]
	}
	return base, length
}

// semanticFor buckets a lowered dialect type.  displayWidth matters only
// for mysql's tinyint(1) boolean convention.
func semanticFor(base string, displayWidth int) SemanticType {
	switch base {
	case "tinyint":
		if displayWidth == 1 {
			return SemanticBoolean
		}
		return SemanticInteger
	case "bit":
		if displayWidth <= 1 {
			return SemanticBoolean
		}
		return SemanticOther
	case "int", "integer", "bigint", "smallint", "mediumint",
		"int2", "int4", "int8", "serial", "bigserial", "smallserial":
		return SemanticInteger
	case "bool", "boolean":
		return SemanticBoolean
	case "float", "double", "real", "decimal", "numeric", "double precision":
		return SemanticFloat
	case "char", "varchar", "character", "character varying", "varying",
		"text", "tinytext", "mediumtext", "longtext", "enum", "set", "uuid":
		return SemanticString
	default:
		return SemanticOther
	}
}

//
// Value validation
//

// ValidateValue checks value against the cached schema for this table.
// Internal-reserved columns and tables with an empty schema are always
// valid.  Errors match ErrTypeMismatch, ErrNullNotAllowed, or
// ErrMaxLengthExceeded.
func (t *Table) ValidateValue(ctx context.Context, column string, value any) error {
	if strings.HasPrefix(column, internalPrefix) {
		return nil
	}
	schema, err := t.db.TableSchema(ctx, t.conn, t.name)
	if err != nil {
		return err
	}
	return validateColumnValue(schema, column, value)
}

// IsValidValue is the non-failing form of ValidateValue: validation
// misses report false, and infrastructure errors (introspection) report
// false as well.
func (t *Table) IsValidValue(ctx context.Context, column string, value any) bool {
	return t.ValidateValue(ctx, column, value) == nil
}

func validateColumnValue(schema map[string]ColumnInfo, column string, value any) error {
	if len(schema) == 0 {
		return nil
	}
	ci, ok := schema[column]
	if !ok {
		// Column unknown to the schema: nothing to check against.
		return nil
	}

	if value == nil {
		if ci.Nullable {
			return nil
		}
		return &NullError{Column: column}
	}

	switch ci.Semantic {
	case SemanticInteger:
		if !isIntegerLike(value) {
			return &TypeError{Column: column, Want: "integer", Got: value}
		}
	case SemanticFloat:
		if !isFloatLike(value) {
			return &TypeError{Column: column, Want: "float", Got: value}
		}
	case SemanticBoolean:
		if !isBooleanLike(value) {
			return &TypeError{Column: column, Want: "boolean", Got: value}
		}
	case SemanticString:
		s, ok := stringifyValue(value)
		if !ok {
			return &TypeError{Column: column, Want: "string", Got: value}
		}
		if ci.MaxLength > 0 && len(s) > ci.MaxLength {
			return &LengthError{Column: column, Max: ci.MaxLength, Actual: len(s)}
		}
	default:
		// SemanticOther: no constraint modeled.
	}
	return nil
}

func isIntegerLike(v any) bool {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return true
	case float64:
		return x == float64(int64(x))
	case float32:
		return float64(x) == float64(int64(x))
	case string:
		return isDigitString(x)
	case []byte:
		return isDigitString(string(x))
	}
	return false
}

func isDigitString(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isFloatLike(v any) bool {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(x, 64)
		return err == nil
	case []byte:
		_, err := strconv.ParseFloat(string(x), 64)
		return err == nil
	}
	return false
}

func isBooleanLike(v any) bool {
	switch x := v.(type) {
	case bool:
		return true
	case int:
		return x == 0 || x == 1
	case int64:
		return x == 0 || x == 1
	case string:
		return x == "0" || x == "1"
	case []byte:
		s := string(x)
		return s == "0" || s == "1"
	}
	return false
}

// stringifyValue renders scalar values the way they would be stored in a
// character column.  Only scalars qualify.
func stringifyValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case bool:
		if x {
			return "1", true
		}
		return "0", true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	}
	return "", false
}

//
// Loose driver-value converters for introspection rows
//

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case []byte:
		n, _ := strconv.ParseInt(string(x), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case string:
		return x == "1" || strings.EqualFold(x, "true") || strings.EqualFold(x, "t") || strings.EqualFold(x, "yes")
	case []byte:
		return asBool(string(x))
	}
	return false
}
