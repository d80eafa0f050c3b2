package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/MegaGrindStone/go-sql-rag/storage"
	"github.com/spf13/cobra"
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Show the most recent trace records",
	Long: `Show the most recent trace records kept by the local trace log or the Redis list.

Example:
  retail-assistant traces --limit 20
  retail-assistant traces --source redis`,
	RunE: runTraces,
}

const (
	traceSourceLocal = "local"
	traceSourceRedis = "redis"

	maxTraceColumn = 60
)

func runTraces(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	records, err := readTraces(cmd.Context(), cfg, source, limit)
	if err != nil {
		return err
	}

	return writeTraces(cmd.OutOrStdout(), records)
}

// readTraces returns at most limit records, newest first, from the given source.
func readTraces(ctx context.Context, cfg config, source string, limit int) ([]sqlrag.TraceRecord, error) {
	if limit <= 0 {
		return []sqlrag.TraceRecord{}, nil
	}

	switch source {
	case traceSourceLocal:
		state, err := storage.NewBolt(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		defer state.Close()

		return state.Traces(limit)
	case traceSourceRedis:
		if cfg.Tracing.RedisAddr == "" {
			return nil, errors.New("tracing.redis_addr not specified")
		}
		r, err := storage.NewRedis(ctx, cfg.Tracing.RedisAddr, "", cfg.Tracing.RedisDB, "", 0)
		if err != nil {
			return nil, err
		}
		defer r.Close()

		return r.Traces(ctx, limit)
	}

	return nil, fmt.Errorf("unknown trace source %q", source)
}

func writeTraces(w io.Writer, records []sqlrag.TraceRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No trace records.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tDURATION\tTOKENS\tQUESTION\tRESULT")
	for _, record := range records {
		question, _ := record.Inputs["question"].(string)

		result := "ok"
		if record.Error != "" {
			result = "error: " + record.Error
		}

		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			record.StartTime.Local().Format(time.DateTime),
			record.EndTime.Sub(record.StartTime).Round(time.Millisecond),
			record.PromptTokens,
			shorten(question),
			shorten(result),
		)
	}

	return tw.Flush()
}

func shorten(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxTraceColumn {
		return string(r[:maxTraceColumn-3]) + "..."
	}
	return s
}
