// Package record holds helpers for working with dataset rows: identity
// context, URL candidates and column-name matching.
package record

import (
	"sort"
	"strings"
)

// Row is a single dataset record keyed by column name.
type Row = map[string]any

// DefaultContextColumns are the identity fields used to scope searches and
// prompts when no explicit list is configured.
var DefaultContextColumns = []string{
	"BUSINESS_NAME",
	"ALTERNATE_NAME",
	"PARENT_NAME",
	"CHAIN_NAME",
	"LOCATION_CITY",
	"LOCATION_STATE_CODE",
	"LOCATION_COUNTRY",
}

// CompanyNameColumns lists identity columns in order of preference when
// naming the business behind a record.
var CompanyNameColumns = []string{
	"BUSINESS_NAME",
	"ALTERNATE_NAME",
	"CHAIN_NAME",
	"PARENT_NAME",
}

var missingText = map[string]struct{}{
	"na":   {},
	"n/a":  {},
	"none": {},
	"null": {},
	"nan":  {},
}

// IsMissingText reports whether s is blank or a placeholder such as "n/a".
func IsMissingText(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return true
	}
	_, ok := missingText[t]
	return ok
}

// BuildContext returns the subset of row restricted to columns, dropping nil
// values and placeholder text. A nil columns slice selects
// DefaultContextColumns.
func BuildContext(row Row, columns []string) map[string]any {
	if len(row) == 0 {
		return map[string]any{}
	}
	if columns == nil {
		columns = DefaultContextColumns
	}
	ctx := make(map[string]any, len(columns))
	for _, col := range columns {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok && IsMissingText(s) {
			continue
		}
		ctx[col] = v
	}
	return ctx
}

// CompanyName returns the preferred business name present in ctx.
func CompanyName(ctx map[string]any) string {
	for _, col := range CompanyNameColumns {
		if s, ok := ctx[col].(string); ok && !IsMissingText(s) {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Columns returns the row's keys in sorted order.
func Columns(row Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Humanize renders a column name for natural-language queries
// ("LOCATION_CITY" -> "location city").
func Humanize(column string) string {
	return strings.TrimSpace(strings.ToLower(strings.ReplaceAll(column, "_", " ")))
}
