package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/scenario"
)

var (
	runProfile string
	runDir     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every scenario of a profile",
	Long: `Loads <scenarios_dir>/<profile>.yaml, processes each scenario as a ticket
in order and prints the results as a JSON array.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runDir != "" {
			cfg.Paths.ScenariosDir = runDir
		}
		if err := cfg.Validate(config.ModeRun); err != nil {
			return err
		}

		tickets, err := scenario.Loader{Dir: cfg.Paths.ScenariosDir}.Load(runProfile)
		if err != nil {
			return eris.Wrap(err, "load scenarios")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results := env.Pipeline.ProcessAll(ctx, tickets)
		logRunSummary(runProfile, results)

		return writeJSON(cmd.OutOrStdout(), results)
	},
}

func logRunSummary(profile string, results []*model.TicketResult) {
	counts := make(map[model.AnswerStatus]int)
	var applied int
	for _, r := range results {
		counts[r.Status]++
		if r.Update != nil && r.Update.Status == model.SummaryUpdated {
			applied++
		}
	}
	fields := []zap.Field{
		zap.String("profile", profile),
		zap.Int("tickets", len(results)),
		zap.Int("updated", applied),
	}
	for status, n := range counts {
		fields = append(fields, zap.Int(string(status), n))
	}
	zap.L().Info("scenario run complete", fields...)
}

func init() {
	runCmd.Flags().StringVar(&runProfile, "profile", "", "scenario profile name (required)")
	runCmd.Flags().StringVar(&runDir, "scenarios-dir", "", "scenario directory (default from config)")
	_ = runCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(runCmd)
}
