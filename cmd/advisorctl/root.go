package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/garyellow/itmo-advisor-go/internal/config"
	"github.com/garyellow/itmo-advisor-go/internal/ctxutil"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/metrics"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/rag"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
)

// env is the state shared by all subcommands, filled in PersistentPreRunE.
type env struct {
	cfg     *config.Config
	log     *logger.Logger
	catalog *program.Catalog
	format  string

	// loadConfig is swapped in tests.
	loadConfig func() (*config.Config, error)
}

func newRootCmd() *cobra.Command {
	e := &env{
		loadConfig: func() (*config.Config, error) { return config.LoadForMode(config.CLIMode) },
	}
	return newRootCmdWithEnv(e)
}

func newRootCmdWithEnv(e *env) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "advisorctl",
		Short: "Operate the ITMO master-program advisor",
		Long: `advisorctl scrapes the ITMO admissions pages into the data directory,
publishes and fetches corpus snapshots, and runs search and
recommendation against the local corpus without the server.

Configuration comes from ITMO_* environment variables and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if e.format != formatText && e.format != formatJSON {
				return fmt.Errorf("--format must be %q or %q, got %q", formatText, formatJSON, e.format)
			}
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			e.cfg = cfg
			e.log = logger.NewWithWriter(cfg.LogLevel, cmd.ErrOrStderr())
			e.catalog = program.Select(cfg.Programs)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&e.format, "format", formatText, "Output format: text or json")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override ITMO_LOG_LEVEL")

	cmd.AddCommand(
		newIngestCmd(e),
		newSearchCmd(e),
		newChunksCmd(e),
		newRecommendCmd(e),
		newStatsCmd(e),
		newProgramsCmd(e),
		newSnapshotCmd(e),
		newVerifyCmd(e),
		newVersionCmd(),
	)
	return cmd
}

// signalContext is cancelled on SIGINT/SIGTERM and tagged as a CLI request.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return ctxutil.WithChannel(ctx, ctxutil.ChannelCLI), cancel
}

// loadRecords reads the local corpus. Programs that fail to load are logged.
func (e *env) loadRecords() (map[string]program.Record, error) {
	records, err := program.LoadDir(e.cfg.ProgramsDir(), e.catalog)
	if err != nil {
		e.log.WithError(err).Warn("Some program files failed to load")
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no program data in %s; run `advisorctl ingest` first", e.cfg.ProgramsDir())
	}
	return records, nil
}

// buildRetriever indexes the local corpus.
func (e *env) buildRetriever(ctx context.Context, m *metrics.Metrics) (*rag.Retriever, error) {
	records, err := e.loadRecords()
	if err != nil {
		return nil, err
	}
	r := rag.NewRetriever(rag.Config{
		Backend:  rag.BackendKind(e.cfg.IndexBackend),
		MinScore: &e.cfg.SearchMinScore,
		Catalog:  e.catalog,
	}, e.log, m)
	if err := r.Index(ctx, records); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	return r, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
