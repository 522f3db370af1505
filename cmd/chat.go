package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

// ticketRunner is the part of the pipeline interactive surfaces use.
type ticketRunner interface {
	Run(ctx context.Context, t model.Ticket) (*model.TicketRun, error)
}

var chatExitCommands = map[string]bool{"/exit": true, "exit": true, "quit": true, ":q": true}

var chatRecord string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about a record interactively",
	Long: `Starts a terminal session bound to one record. Each line is processed as a
ticket. Use '/record <id>' to switch records and '/exit' to leave.`,
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

		return newChatSession(env.Pipeline, cmd.InOrStdin(), cmd.OutOrStdout()).Start(ctx, chatRecord)
	},
}

// chatSession numbers the questions of one terminal session as
// <session>-Q001, <session>-Q002 and so on.
type chatSession struct {
	runner ticketRunner
	in     *bufio.Scanner
	out    io.Writer
	id     string
}

func newChatSession(r ticketRunner, in io.Reader, out io.Writer) *chatSession {
	return &chatSession{
		runner: r,
		in:     bufio.NewScanner(in),
		out:    out,
		id:     "session-" + uuid.NewString()[:8],
	}
}

// Start runs the session until an exit command or end of input. An empty
// recordID is prompted for.
func (s *chatSession) Start(ctx context.Context, recordID string) error {
	rec := strings.TrimSpace(recordID)
	for rec == "" {
		line, ok := s.prompt("Enter record id: ")
		if !ok {
			return s.in.Err()
		}
		if rec = strings.TrimSpace(line); rec == "" {
			fmt.Fprintln(s.out, "Value cannot be empty.")
		}
	}

	fmt.Fprintln(s.out, "Type questions to query the dataset. Use '/record <id>' to switch context, and '/exit' to leave.")

	counter := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, ok := s.prompt(fmt.Sprintf("[%s]> ", rec))
		if !ok {
			fmt.Fprintln(s.out, "\nSession ended.")
			return s.in.Err()
		}

		question := strings.TrimSpace(line)
		switch {
		case question == "":
			continue
		case chatExitCommands[strings.ToLower(question)]:
			fmt.Fprintln(s.out, "Session ended.")
			return nil
		case strings.HasPrefix(question, "/record"):
			rec = s.switchRecord(question, rec)
			continue
		}

		ticketID := fmt.Sprintf("%s-Q%03d", s.id, counter)
		run, err := s.runner.Run(ctx, model.Ticket{ID: ticketID, Question: question, RecordID: rec})
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			continue
		}
		renderChatResult(s.out, ticketID, run.Result)
		counter++
	}
}

func (s *chatSession) prompt(p string) (string, bool) {
	fmt.Fprint(s.out, p)
	if !s.in.Scan() {
		return "", false
	}
	return s.in.Text(), true
}

func (s *chatSession) switchRecord(command, current string) string {
	parts := strings.Fields(command)
	if len(parts) == 2 {
		fmt.Fprintf(s.out, "Active record set to %s.\n", parts[1])
		return parts[1]
	}
	fmt.Fprintln(s.out, "Usage: /record <record_id>")
	return current
}

func renderChatResult(w io.Writer, ticketID string, r *model.TicketResult) {
	if r == nil {
		fmt.Fprintf(w, "[%s] status: unknown\n\n", ticketID)
		return
	}
	fmt.Fprintf(w, "[%s] status: %s\n", ticketID, r.Status)

	if len(r.Answers) > 0 {
		fmt.Fprintln(w, "Answers:")
		keys := make([]string, 0, len(r.Answers))
		for k := range r.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  - %s: %s\n", k, model.FormatValue(r.Answers[k]))
		}
	}

	if len(r.MissingColumns) > 0 {
		fmt.Fprintln(w, "Missing columns:")
		for _, c := range r.MissingColumns {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}

	if len(r.ScraperTasks) > 0 {
		fmt.Fprintln(w, "Scraper tasks:")
		for _, t := range r.ScraperTasks {
			fmt.Fprintf(w, "  - %s: %s\n", t.Topic, t.Query)
		}
	}
	if r.ScraperFindings > 0 {
		fmt.Fprintf(w, "Scraper findings: %d\n", r.ScraperFindings)
	}

	if u := r.Update; u != nil {
		fmt.Fprintln(w, "Update summary:")
		fmt.Fprintf(w, "  - status: %s\n", u.Status)
		if len(u.AppliedColumns) > 0 {
			fmt.Fprintf(w, "  - applied fields: %s\n", strings.Join(u.AppliedColumns, ", "))
		}
		if u.Escalated != nil {
			fmt.Fprintln(w, "  - escalated: yes")
		}
	}

	if p := r.SchemaProposal; p != nil && len(p.Columns) > 0 {
		fmt.Fprintln(w, "Schema proposal:")
		for _, c := range p.Columns {
			fmt.Fprintf(w, "  - %s: %s\n", c.Name, c.DataType)
		}
	}
	fmt.Fprintln(w)
}

func init() {
	chatCmd.Flags().StringVar(&chatRecord, "record", "", "initial record id")
	rootCmd.AddCommand(chatCmd)
}
