package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"curry2cakes/pkg/audit"
	"curry2cakes/pkg/db"
	gos3 "curry2cakes/pkg/s3"
	"curry2cakes/services/invitectl"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "invitectl",
		Short:         "Operator utility for the curry2cakes invite service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newAuditCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newStatsCommand() *cobra.Command {
	var (
		apiBaseURL string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print invite statistics from a running API",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := invitectl.Stats(commandContext(cmd), invitectl.StatsConfig{
				APIBaseURL: apiBaseURL,
				Format:     output,
				Stdout:     os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&apiBaseURL, "api", envOr("INVITES_API_URL", "http://localhost:3001"), "Base URL of the invites API")
	cmd.Flags().StringVarP(&output, "output", "o", invitectl.FormatTable, "Output format: table, json or yaml")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply audit database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			pool, err := db.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer pool.Close()

			version, err := db.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", version)
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("DB_DSN"), "Postgres connection string")
	return cmd
}

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail export operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newAuditExportCommand())
	cmd.AddCommand(newAuditDecryptCommand())
	return cmd
}

func newAuditExportCommand() *cobra.Command {
	var (
		dsn       string
		since     time.Duration
		limit     int
		recipient string
		output    string
		bucket    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit events as an age-encrypted zstd JSON lines file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			pool, err := db.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer pool.Close()

			cfg := invitectl.ExportConfig{
				Source: func(ctx context.Context, since time.Time, limit int) ([]audit.Event, error) {
					return audit.List(ctx, pool, since, limit)
				},
				Since:     time.Now().Add(-since),
				Limit:     limit,
				Recipient: recipient,
				Output:    output,
				Bucket:    bucket,
				Stdout:    cmd.OutOrStdout(),
			}
			if bucket != "" {
				client, err := gos3.NewClient(ctx, gos3.ConfigFromEnv())
				if err != nil {
					return fmt.Errorf("s3 client: %w", err)
				}
				cfg.S3 = client
			}

			_, err = invitectl.Export(ctx, cfg)
			return err
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("DB_DSN"), "Postgres connection string")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Export events newer than this")
	cmd.Flags().IntVar(&limit, "limit", 10000, "Maximum number of events")
	cmd.Flags().StringVar(&recipient, "recipient", os.Getenv("AGE_RECIPIENT"), "age X25519 recipient (age1...)")
	cmd.Flags().StringVar(&output, "output", "", "Destination file")
	cmd.Flags().StringVar(&bucket, "bucket", os.Getenv("AUDIT_BUCKET"), "S3 bucket to upload the export to")
	return cmd
}

func newAuditDecryptCommand() *cobra.Command {
	var (
		file         string
		identityFile string
	)

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt and decompress an audit export to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := os.ReadFile(identityFile)
			if err != nil {
				return fmt.Errorf("read identity: %w", err)
			}
			in, err := os.Open(file)
			if err != nil {
				return err
			}
			defer in.Close()
			return invitectl.Decrypt(in, string(identity), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to the .jsonl.zst.age export")
	cmd.Flags().StringVar(&identityFile, "identity-file", "", "File containing the AGE-SECRET-KEY identity")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("identity-file")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
