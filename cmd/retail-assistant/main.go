// Command retail-assistant answers questions about a retail store database in plain language.
// It seeds a similarity index with worked examples, then turns each question into SQL, runs it
// and answers from the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "retail-assistant",
	Short: "Retail Store Assistant",
	Long: `Answers questions about a retail store database in plain language.

The question is matched against worked examples, turned into SQL by a language model,
run against the database, and answered from the result.`,
	SilenceUsage: true,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store the few-shot examples in the similarity index",
	Long: `Store the few-shot examples of the corpus in the similarity index.

Seeding is skipped when the corpus didn't change since the last run.

Example:
  retail-assistant seed --config ./config.yaml
  retail-assistant seed --force`,
	RunE: runSeed,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question form over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path")

	seedCmd.Flags().Bool("force", false, "seed even if the corpus didn't change")
	askCmd.Flags().Bool("show-sql", false, "print the generated SQL and its result")
	serveCmd.Flags().String("address", "", "server listen address, overrides server.address")
	tracesCmd.Flags().IntP("limit", "n", 10, "number of records to show")
	tracesCmd.Flags().String("source", traceSourceLocal, "trace log to read: local or redis")

	rootCmd.AddCommand(seedCmd, askCmd, serveCmd, tracesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.logLevel(),
	}))

	return newApp(ctx, cfg, logger)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	return a.seed(cmd.Context(), force)
}

func runAsk(cmd *cobra.Command, args []string) error {
	showSQL, err := cmd.Flags().GetBool("show-sql")
	if err != nil {
		return err
	}

	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.ask(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showSQL {
		fmt.Fprintf(out, "SQLQuery: %s\nSQLResult: %s\n", result.GeneratedSQL, result.SQLExecutionResult)
	}
	fmt.Fprintln(out, result.FinalAnswer)

	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	addr, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}
	if addr == "" {
		addr = a.cfg.Server.Address
	}

	if err := serve(ctx, addr, a.ask, a.logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
