package main

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garyellow/itmo-advisor-go/internal/buildinfo"
	"github.com/garyellow/itmo-advisor-go/internal/rag"
	"github.com/garyellow/itmo-advisor-go/internal/storage"
)

type statsReport struct {
	Index   rag.Stats     `json:"index"`
	History storage.Stats `json:"history"`
}

func newStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index and conversation statistics",
		Long: `Build the index from the local corpus and report its size per program,
together with user and message counts from the history database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			r, err := e.buildRetriever(ctx, nil)
			if err != nil {
				return err
			}
			db, err := storage.New(ctx, e.cfg.SQLitePath(), e.cfg.HistoryRetention)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			history, err := db.Stats(ctx)
			if err != nil {
				return err
			}
			report := statsReport{Index: r.Stats(), History: history}

			if e.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "Index status\t%s\n", report.Index.Status)
			_, _ = fmt.Fprintf(w, "Backend\t%s\n", report.Index.Backend)
			_, _ = fmt.Fprintf(w, "Chunks\t%d\n", report.Index.ChunkCount)
			_, _ = fmt.Fprintf(w, "Vocabulary\t%d\n", report.Index.VocabularySize)
			for _, name := range slices.Sorted(maps.Keys(report.Index.ProgramChunks)) {
				_, _ = fmt.Fprintf(w, "  %s\t%d\n", name, report.Index.ProgramChunks[name])
			}
			_, _ = fmt.Fprintf(w, "Users\t%d\n", report.History.TotalUsers)
			_, _ = fmt.Fprintf(w, "Messages\t%d\n", report.History.TotalMessages)
			_, _ = fmt.Fprintf(w, "Active this week\t%d\n", report.History.ActiveUsersWeek)
			return w.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "advisorctl %s\n", buildinfo.String())
		},
	}
}
