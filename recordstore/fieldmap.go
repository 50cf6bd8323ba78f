package recordstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldMap translates logical field names to the record store's column names.
// The original data entry UI renamed columns more than once, which left reads
// scattered across fallback chains; instead, each table declares one explicit
// map here and it is validated at startup. A missing entry is a deploy-time
// error, not a silent nil at read time.
type FieldMap map[string]string

// Validate checks that every required logical field has a non-empty column
// name and that no two logical fields point at the same column.
func (m FieldMap) Validate(table string, required []string) error {
	byColumn := make(map[string]string, len(m))
	for logical, column := range m {
		if strings.TrimSpace(column) == "" {
			return fmt.Errorf("field map for %s: logical field %q has empty column name", table, logical)
		}
		if prev, dup := byColumn[column]; dup {
			return fmt.Errorf("field map for %s: column %q mapped by both %q and %q", table, column, prev, logical)
		}
		byColumn[column] = logical
	}

	var missing []string
	for _, logical := range required {
		if _, ok := m[logical]; !ok {
			missing = append(missing, logical)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("field map for %s: missing logical fields: %s", table, strings.Join(missing, ", "))
	}
	return nil
}

// Column resolves a logical field name. Panics on unknown fields: every
// lookup must be backed by a validated map, so an unknown field is a
// programming error caught in tests, not a runtime condition.
func (m FieldMap) Column(logical string) string {
	column, ok := m[logical]
	if !ok {
		panic(fmt.Sprintf("unmapped logical field %q", logical))
	}
	return column
}

// Typed accessors for record fields. The store returns JSON, so numbers come
// back as float64 and everything else as string/bool/[]any.

func (r *Record) String(column string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	if v, ok := r.Fields[column].(string); ok {
		return v
	}
	return ""
}

func (r *Record) Bool(column string) bool {
	if r == nil || r.Fields == nil {
		return false
	}
	if v, ok := r.Fields[column].(bool); ok {
		return v
	}
	return false
}

// Decimal reads a numeric field exactly. Numbers arrive as JSON float64;
// converting through the decimal package keeps the stored precision for
// comparisons (display rounding must never feed a stock check).
func (r *Record) Decimal(column string) decimal.Decimal {
	if r == nil || r.Fields == nil {
		return decimal.Zero
	}
	switch v := r.Fields[column].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

func (r *Record) Time(column string) time.Time {
	if r == nil || r.Fields == nil {
		return time.Time{}
	}
	v, ok := r.Fields[column].(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (r *Record) StringSlice(column string) []string {
	if r == nil || r.Fields == nil {
		return nil
	}
	raw, ok := r.Fields[column].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Record) Has(column string) bool {
	if r == nil || r.Fields == nil {
		return false
	}
	v, ok := r.Fields[column]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}
