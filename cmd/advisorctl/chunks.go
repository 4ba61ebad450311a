package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newChunksCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks <program>",
		Short: "List the indexed chunks of one program",
		Long: `Build the index from DATA_DIR/programs and print every chunk of one
program in index order. The program is given by id or display name.

Examples:
  advisorctl chunks ai
  advisorctl chunks "Управление ИИ-продуктами"
  advisorctl chunks --format json ai_product`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			name := strings.Join(args, " ")
			if p, ok := e.catalog.Get(name); ok {
				name = p.Name
			}

			r, err := e.buildRetriever(ctx, nil)
			if err != nil {
				return err
			}
			results := r.ProgramContext(ctx, name)
			if len(results) == 0 {
				return fmt.Errorf("no chunks for program %q", name)
			}

			if e.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tKIND\tSECTION\tSNIPPET")
			for i, res := range results {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, res.Meta.Kind, res.Meta.Section, preview(res.Text))
			}
			return w.Flush()
		},
	}
	return cmd
}
