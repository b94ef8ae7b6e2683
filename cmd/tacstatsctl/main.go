package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tacbyte/tacstats/internal/cli"
	"github.com/tacbyte/tacstats/internal/credentials"
	"github.com/tacbyte/tacstats/internal/platform/cache"
)

var (
	redisAddr string
	instance  string
	hashCost  int
	retention time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "tacstatsctl",
	Short:         "Operator commands for the tacstats gatekeeper",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Read a secret from stdin and print its bcrypt hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exit(cli.HashCommand(cli.HashOptions{Cost: hashCost, Stdin: cmd.InOrStdin(), Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}))
	},
}

var bumpCmd = &cobra.Command{
	Use:   "bump",
	Short: "Invalidate cached instance secrets on every running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cache.New(cmd.Context(), redisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		publish := func(ctx context.Context, instance string) error {
			return credentials.PublishInvalidation(ctx, client, instance)
		}
		return exit(cli.BumpCommand(cmd.Context(), publish, cli.BumpOptions{Instance: instance, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}))
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger background jobs",
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Enqueue an idempotency retention cleanup",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobsCLI := cli.NewJobsCLI(redisAddr)
		defer func() { _ = jobsCLI.Close() }()
		info, err := jobsCLI.TriggerCleanup(cmd.Context(), retention)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s\n", info.ID, info.Queue)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue statistics as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobsCLI := cli.NewJobsCLI(redisAddr)
		defer func() { _ = jobsCLI.Close() }()
		stats, err := jobsCLI.InspectQueue()
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
	},
}

type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func exit(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "Redis address")
	hashCmd.Flags().IntVar(&hashCost, "cost", 0, "bcrypt cost (default 10)")
	bumpCmd.Flags().StringVar(&instance, "instance", os.Getenv("INSTANCE_ID"), "Instance whose secrets changed")
	cleanupCmd.Flags().DurationVar(&retention, "retention", 0, "Retention window (default: worker setting)")
	jobsCmd.AddCommand(cleanupCmd, statsCmd)
	rootCmd.AddCommand(hashCmd, bumpCmd, jobsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := err.(exitCode); ok {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
