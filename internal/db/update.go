package db

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// UpdateByKey builds a parameterized single-row UPDATE. Columns are written
// in sorted order so statements are stable for a given payload.
func UpdateByKey(table, keyColumn string, keyValue any, values map[string]any) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, eris.New("db: update: no columns")
	}

	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", Quote(c), i+1)
		args = append(args, values[c])
	}
	args = append(args, keyValue)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		TableIdent(table).Sanitize(),
		strings.Join(sets, ", "),
		Quote(keyColumn),
		len(cols)+1,
	)
	return sql, args, nil
}
