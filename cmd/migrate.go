package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage proposed schema migrations and the ticket store schema",
}

var migrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposed migrations awaiting review",
	Long: `Lists the migration files written by schema proposals. With the minio
backend the bucket is created if missing and its location printed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.ModeMigrate); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if cfg.Migrations.Backend == "minio" {
			m, err := newMinIO()
			if err != nil {
				return err
			}
			if err := m.EnsureBucket(cmd.Context()); err != nil {
				return eris.Wrap(err, "migrate list")
			}
			fmt.Fprintf(out, "Migrations are stored in s3://%s/%s\n", cfg.MinIO.Bucket, cfg.MinIO.Prefix)
			return nil
		}

		files, err := migration.Pending(cfg.Paths.MigrationsDir)
		if err != nil {
			return eris.Wrap(err, "migrate list")
		}
		if len(files) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No pending migrations.")
			return nil
		}
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		return nil
	},
}

var migrateStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Create or update the ticket store tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openTicketStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("ticket store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateListCmd)
	migrateCmd.AddCommand(migrateStoreCmd)
	rootCmd.AddCommand(migrateCmd)
}
