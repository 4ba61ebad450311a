package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// previewRunes bounds the snippet column of the text output.
const previewRunes = 80

func newSearchCmd(e *env) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the local corpus",
		Long: `Build the index from DATA_DIR/programs and print the best matching
snippets. Falls back to substring matching when nothing scores.

Examples:
  advisorctl search "стоимость обучения"
  advisorctl search --k 10 "общежитие"
  advisorctl search --format json "карьера"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if k < 1 {
				return fmt.Errorf("--k must be at least 1, got %d", k)
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			r, err := e.buildRetriever(ctx, nil)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			results := r.SearchWithFallback(ctx, query, k)

			if e.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			if len(results) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No results for %q\n", query)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "SCORE\tPROGRAM\tSECTION\tSNIPPET")
			for _, res := range results {
				_, _ = fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", res.Score, res.Meta.ProgramID, res.Meta.Section, preview(res.Text))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&k, "k", 5, "Maximum results to return")
	return cmd
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes-1]) + "…"
}
