package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Inspect stored ticket runs",
	Long:  "Commands for listing, viewing, and summarizing ticket runs kept in the configured store.",
}

func openTicketStore(cmd *cobra.Command) (store.Store, error) {
	if cfg.Store.Driver == "" {
		return nil, eris.New("store.driver is not configured")
	}
	return openStore(cmd.Context())
}

// -- tickets list --

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ticket runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openTicketStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		recordID, _ := cmd.Flags().GetString("record")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListTickets(cmd.Context(), store.TicketFilter{
			Status:   model.TicketStatus(status),
			RecordID: recordID,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "tickets list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No tickets found.")
			return nil
		}

		formatTicketList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- tickets show --

var ticketsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a ticket run with its search evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openTicketStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetTicket(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "tickets show")
		}
		findings, err := st.ListFindings(ctx, run.Ticket.ID)
		if err != nil {
			return eris.Wrap(err, "tickets show findings")
		}

		return writeJSON(cmd.OutOrStdout(), struct {
			*model.TicketRun
			Findings []model.Finding `json:"findings,omitempty"`
		}{run, findings})
	},
}

// -- tickets stats --

var ticketsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate ticket statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openTicketStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListTickets(cmd.Context(), store.TicketFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "tickets stats")
		}

		formatTicketStats(cmd.OutOrStdout(), computeTicketStats(runs))
		return nil
	},
}

func init() {
	ticketsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, failed)")
	ticketsListCmd.Flags().String("record", "", "filter by record id")
	ticketsListCmd.Flags().Int("limit", 50, "max number of tickets to display")

	ticketsCmd.AddCommand(ticketsListCmd)
	ticketsCmd.AddCommand(ticketsShowCmd)
	ticketsCmd.AddCommand(ticketsStatsCmd)
	rootCmd.AddCommand(ticketsCmd)
}

// ticketStats holds aggregate statistics over ticket runs.
type ticketStats struct {
	Total      int
	Complete   int
	Failed     int
	Other      int
	Answers    map[model.AnswerStatus]int
	Updated    int
	Escalated  int
	AvgDurSecs float64
}

func computeTicketStats(runs []model.TicketRun) ticketStats {
	s := ticketStats{Total: len(runs), Answers: make(map[model.AnswerStatus]int)}

	var totalDur time.Duration
	var durCount int
	for _, r := range runs {
		switch r.Status {
		case model.TicketComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.TicketFailed:
			s.Failed++
		default:
			s.Other++
		}

		if r.Result == nil {
			continue
		}
		s.Answers[r.Result.Status]++
		if u := r.Result.Update; u != nil {
			if u.Status == model.SummaryUpdated {
				s.Updated++
			}
			if u.Escalated != nil {
				s.Escalated++
			}
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatTicketList writes a tabular list of ticket runs to w.
func formatTicketList(out io.Writer, runs []model.TicketRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTICKET\tRECORD\tSTATUS\tANSWER\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t------\t------\t-------\t--------")

	for _, r := range runs {
		answer := ""
		if r.Result != nil {
			answer = string(r.Result.Status)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Ticket.ID,
			r.Ticket.RecordID,
			r.Status,
			answer,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		)
	}
	_ = w.Flush()
}

// formatTicketStats writes aggregate stats to w.
func formatTicketStats(out io.Writer, s ticketStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total tickets:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Other:\t%d\n", s.Other)
	for _, status := range []model.AnswerStatus{
		model.StatusAnswered,
		model.StatusMissingValues,
		model.StatusUnknownQuestion,
		model.StatusRecordNotFound,
	} {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", status, s.Answers[status])
	}
	_, _ = fmt.Fprintf(w, "Records updated:\t%d\n", s.Updated)
	_, _ = fmt.Fprintf(w, "Escalated:\t%d\n", s.Escalated)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
