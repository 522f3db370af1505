package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/record"
)

var (
	inspectLimit int
	inspectJSON  bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the dataset's columns, row count and first rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeInspect); err != nil {
			return err
		}

		ds, err := openDataset(ctx)
		if err != nil {
			return err
		}
		defer ds.Close() //nolint:errcheck

		cols, err := ds.Columns(ctx)
		if err != nil {
			return eris.Wrap(err, "inspect columns")
		}
		total, err := ds.Count(ctx)
		if err != nil {
			return eris.Wrap(err, "inspect count")
		}
		rows, err := ds.Page(ctx, 0, inspectLimit)
		if err != nil {
			return eris.Wrap(err, "inspect preview")
		}

		if inspectJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"table_name":  ds.Table,
				"primary_key": ds.PrimaryKey,
				"columns":     cols,
				"total":       total,
				"rows":        rows,
			})
		}
		formatPreview(cmd.OutOrStdout(), ds.Table, cols, total, rows)
		return nil
	},
}

// formatPreview writes a summary line and the preview rows as a table.
func formatPreview(out io.Writer, table string, cols []string, total int, rows []record.Row) {
	_, _ = fmt.Fprintf(out, "%s: %d columns, %d rows\n\n", table, len(cols), total)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, c := range cols {
		if i > 0 {
			_, _ = fmt.Fprint(w, "\t")
		}
		_, _ = fmt.Fprint(w, c)
	}
	_, _ = fmt.Fprintln(w)

	for _, r := range rows {
		for i, c := range cols {
			if i > 0 {
				_, _ = fmt.Fprint(w, "\t")
			}
			v := model.FormatValue(r[c])
			if len(v) > 30 {
				v = v[:27] + "..."
			}
			_, _ = fmt.Fprint(w, v)
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 5, "number of preview rows")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(inspectCmd)
}
