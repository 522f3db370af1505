package gatherer

import (
	"fmt"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// BackfillPrompt writes reusable instructions for running the same
// successful searches against other records missing the same columns. The
// business name is replaced by a {company} placeholder.
func BackfillPrompt(searches []model.SuccessfulSearch, missingColumns []string, company string) string {
	if len(searches) == 0 {
		return ""
	}

	target := "the missing data"
	if len(missingColumns) > 0 {
		target = strings.Join(missingColumns, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "To backfill %s for other records, run these searches with each record's business name in place of {company}:\n", target)
	for i, s := range searches {
		q := s.Query
		if company != "" {
			q = strings.ReplaceAll(q, company, "{company}")
		}
		fmt.Fprintf(&b, "%d. [%s] %s (%d results", i+1, s.Topic, q, s.ResultCount)
		if s.Description != "" {
			fmt.Fprintf(&b, "; %s", s.Description)
		}
		b.WriteString(")\n")
	}
	b.WriteString("Keep only values stated by the cited pages and record the source URL for each.")
	return b.String()
}
