package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garyellow/itmo-advisor-go/internal/program"
)

type programRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Loaded    bool   `json:"loaded"`
	Cost      string `json:"cost,omitempty"`
	Period    string `json:"period,omitempty"`
	FAQ       int    `json:"faq"`
	ScrapedAt string `json:"scraped_at,omitempty"`
}

func newProgramsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List configured programs and their local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := program.LoadDir(e.cfg.ProgramsDir(), e.catalog)
			if err != nil {
				e.log.WithError(err).Warn("Some program files failed to load")
			}
			rows := programRows(e.catalog, records)

			if e.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tDATA\tCOST (RUB)\tFAQ\tSCRAPED")
			for _, r := range rows {
				data := "missing"
				if r.Loaded {
					data = "ok"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, data, r.Cost, r.FAQ, r.ScrapedAt)
			}
			return w.Flush()
		},
	}
}

func programRows(catalog *program.Catalog, records map[string]program.Record) []programRow {
	chunker := program.NewChunker(catalog)
	rows := make([]programRow, 0, len(catalog.IDs()))
	for _, p := range catalog.All() {
		row := programRow{ID: p.ID, Name: p.Name, URL: p.URL}
		if rec, ok := records[p.ID]; ok {
			row.Loaded = true
			row.Name = chunker.DisplayName(p.ID, rec)
			row.Cost = chunker.FormatCost(rec)
			row.Period = rec.Display(program.SectionPeriod)
			row.FAQ = len(rec.FAQ())
			row.ScrapedAt = rec.String(program.SectionScrapedAt)
		}
		rows = append(rows, row)
	}
	return rows
}
