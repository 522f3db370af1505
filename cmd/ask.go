package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

var (
	askRecord   string
	askQuestion string
	askTicket   string
	askFields   map[string]string
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer one question about one record",
	Example: `  enrich-cli ask --record BRZ-001 --question "What is the company's website?"
  enrich-cli ask --record BRZ-001 --question "Where is it located?" --field LOCATION_CITY=Siena`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeAsk); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		t := askTicketFrom(askTicket, askQuestion, askRecord, askFields)
		run, err := env.Pipeline.Run(ctx, t)
		if err != nil {
			return eris.Wrap(err, "ask")
		}

		zap.L().Info("ticket complete",
			zap.String("ticket_id", t.ID),
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Result.Status)),
		)
		return writeJSON(cmd.OutOrStdout(), run.Result)
	},
}

// askTicketFrom builds a ticket from flag values, generating an id when none
// is given.
func askTicketFrom(id, question, recordID string, fields map[string]string) model.Ticket {
	if id == "" {
		id = "ASK-" + strings.ToUpper(uuid.NewString()[:8])
	}
	t := model.Ticket{
		ID:       id,
		Question: strings.TrimSpace(question),
		RecordID: strings.TrimSpace(recordID),
	}
	if len(fields) > 0 {
		t.Fields = make(map[string]any, len(fields))
		for k, v := range fields {
			t.Fields[k] = v
		}
	}
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	askCmd.Flags().StringVar(&askRecord, "record", "", "primary key of the record (required)")
	askCmd.Flags().StringVar(&askQuestion, "question", "", "question to answer (required)")
	askCmd.Flags().StringVar(&askTicket, "ticket", "", "ticket id (default generated)")
	askCmd.Flags().StringToStringVar(&askFields, "field", nil, "known COLUMN=value facts to write back")
	_ = askCmd.MarkFlagRequired("record")
	_ = askCmd.MarkFlagRequired("question")
	rootCmd.AddCommand(askCmd)
}
