// keyword-tester shows what the question analyzer extracts from a question
// and the query it would run.
//
// Usage:
//
//	go run ./scripts/keyword-tester -q "포토 공정 비계획 다운타임 2시간 이상"
//	go run ./scripts/keyword-tester --execute-query -q "FAC_M16 공장 다운타임"
//	go run ./scripts/keyword-tester            # interactive
//
// Database connection (only with --execute-query): same environment as the
// server (DB_DRIVER, PG*, DB_DSN).
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/extractor"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
)

var (
	question     string
	executeQuery bool
	limit        int
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "keyword-tester",
	Short: "Inspect question analysis and the generated downtime query",
	Long: `keyword-tester runs the question analyzer on a question and prints the
extracted fields, whether the question is specific, and the SQL with its
binds. With --execute-query the query also runs against the configured store
and the formatted answer is printed.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&question, "question", "q", "", "question to analyze (interactive mode when omitted)")
	rootCmd.Flags().BoolVar(&executeQuery, "execute-query", false, "run the query against the configured store")
	rootCmd.Flags().IntVar(&limit, "limit", 10, "maximum rows to fetch with --execute-query")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type tester struct {
	ex      *extractor.Extractor
	builder *querybuilder.Builder
	store   database.Store
	out     io.Writer
}

func run(cmd *cobra.Command, _ []string) error {
	logger, err := logging.NewLogger("local", logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load("keyword-tester")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := []extractor.Option{extractor.WithEpsilon(cfg.Extractor.Epsilon)}
	if cfg.Extractor.VocabularyPath != "" {
		vocab, err := extractor.LoadVocabulary(cfg.Extractor.VocabularyPath)
		if err != nil {
			return err
		}
		opts = append(opts, extractor.WithVocabulary(vocab))
	}

	t := &tester{ex: extractor.New(opts...), out: cmd.OutOrStdout()}

	if executeQuery {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		store, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", cfg.Database.Driver, err)
		}
		defer store.Close()
		t.store = store
		t.builder = querybuilder.NewBuilder(store, querybuilder.ConfigFrom(cfg.Query), logger)
		t.builder.DetectLookups(ctx)
	} else {
		dialect, err := database.DialectFor(cfg.Database.Driver)
		if err != nil {
			return err
		}
		t.builder = querybuilder.NewBuilder(offlineStore{dialect: dialect}, querybuilder.ConfigFrom(cfg.Query), logger)
	}

	if question != "" {
		return t.analyze(cmd.Context(), question)
	}
	return t.interactive(cmd.Context(), cmd.InOrStdin())
}

func (t *tester) interactive(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(t.out, "질문을 입력하세요 (종료: quit)")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(t.out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(t.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		}
		if err := t.analyze(ctx, line); err != nil {
			fmt.Fprintf(t.out, "error: %v\n", err)
		}
	}
}

func (t *tester) analyze(ctx context.Context, q string) error {
	analysis := t.ex.Analyze(q)
	filter := analysis.Filter

	fmt.Fprintf(t.out, "질문: %s\n", q)
	fmt.Fprintln(t.out, "추출 필드:")
	fields := filter.Fields()
	if len(fields) == 0 {
		fmt.Fprintln(t.out, "  (없음)")
	}
	for _, f := range fields {
		fmt.Fprintf(t.out, "  %-20s %s\n", f.Key, f.Value)
	}
	fmt.Fprintf(t.out, "구체적 질문: %v\n", analysis.IsSpecific)
	if !analysis.IsSpecific {
		return nil
	}

	plan, err := t.builder.BuildQuery(filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "\nSQL:\n%s\n", plan.SQL)
	fmt.Fprintln(t.out, "Binds:")
	for i, arg := range plan.Args {
		fmt.Fprintf(t.out, "  $%d = %v\n", i+1, arg)
	}

	if t.store == nil {
		return nil
	}
	stats, err := t.builder.GetStatistics(ctx, filter)
	if err != nil {
		return err
	}
	rows, err := t.builder.ExecuteQuery(ctx, plan, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "\n%s\n", services.FormatAnswer(filter, rows, stats))
	return nil
}

// offlineStore lets the builder render SQL for a dialect without a connection.
type offlineStore struct {
	dialect database.Dialect
}

var _ database.Store = offlineStore{}

var errOffline = errors.New("no store connection; rerun with --execute-query")

func (s offlineStore) Dialect() database.Dialect                       { return s.dialect }
func (offlineStore) Ping(context.Context) error                        { return errOffline }
func (offlineStore) TableExists(context.Context, string) (bool, error) { return false, errOffline }
func (offlineStore) Close()                                            {}

func (offlineStore) Query(context.Context, string, []any, int) ([]models.Row, error) {
	return nil, errOffline
}
