package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/recommend"
)

// check is one verification outcome.
type check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

var errVerifyFailed = errors.New("verification failed")

func newVerifyCmd(e *env) *cobra.Command {
	var tablesFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the local corpus and keyword tables for consistency",
		Long: `Verify that every configured program has a data file with the sections
search and recommendation depend on, and that the keyword tables are valid.
Exits non-zero when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := tablesFile
			if path == "" {
				path = e.cfg.TablesFile
			}
			records, loadErr := program.LoadDir(e.cfg.ProgramsDir(), e.catalog)

			tables, tablesCheck := verifyTables(path)
			checks := []check{tablesCheck}
			if loadErr != nil {
				checks = append(checks, check{Name: "Program files readable", Message: loadErr.Error()})
			}
			scorer := recommend.NewScorer(tables, e.cfg.SubjectThreshold)
			checks = append(checks, verifyPrograms(e.catalog, scorer, records)...)

			failed := 0
			for _, c := range checks {
				if !c.Passed {
					failed++
				}
			}

			if e.format == formatJSON {
				if err := writeJSON(cmd.OutOrStdout(), checks); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, c := range checks {
					status := "❌"
					if c.Passed {
						status = "✅"
					}
					_, _ = fmt.Fprintf(out, "%s %s: %s\n", status, c.Name, c.Message)
				}
				_, _ = fmt.Fprintf(out, "\nSummary: %d passed, %d failed\n", len(checks)-failed, failed)
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d check(s)", errVerifyFailed, failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tablesFile, "tables", "", "YAML keyword tables override (default ITMO_TABLES_FILE)")
	return cmd
}

// verifyTables falls back to the built-in tables when the file is invalid.
func verifyTables(path string) (*recommend.Tables, check) {
	c := check{Name: "Keyword tables valid", Passed: true, Message: "built-in tables"}
	if path == "" {
		t := recommend.DefaultTables()
		if err := t.Validate(); err != nil {
			c.Passed, c.Message = false, err.Error()
		}
		return t, c
	}
	t, err := recommend.LoadTables(path)
	if err != nil {
		c.Passed, c.Message = false, err.Error()
		return recommend.DefaultTables(), c
	}
	c.Message = path
	return t, c
}

// verifyPrograms checks each catalog program. A missing curriculum or FAQ
// only weakens answers, so those pass with a note.
func verifyPrograms(catalog *program.Catalog, scorer *recommend.Scorer, records map[string]program.Record) []check {
	chunker := program.NewChunker(catalog)
	var checks []check
	for _, p := range catalog.All() {
		rec, ok := records[p.ID]
		if !ok {
			checks = append(checks, check{
				Name:    p.ID + ": data file",
				Message: "missing; run `advisorctl ingest`",
			})
			continue
		}

		title := check{Name: p.ID + ": title", Passed: rec.Truthy(program.SectionTitle)}
		title.Message = rec.String(program.SectionTitle)
		if !title.Passed {
			title.Message = "no " + program.SectionTitle + " section"
		}

		n := len(chunker.Chunk(p.ID, rec))
		chunks := check{Name: p.ID + ": chunks", Passed: n > 0, Message: fmt.Sprintf("%d indexable chunk(s)", n)}

		faq := check{Name: p.ID + ": FAQ", Passed: true, Message: fmt.Sprintf("%d pair(s)", len(rec.FAQ()))}

		subjects := len(scorer.ExtractSubjects(rec.CurriculumText()))
		plan := check{Name: p.ID + ": curriculum", Passed: true, Message: fmt.Sprintf("%d subject(s) extracted", subjects)}
		if rec.CurriculumText() == "" {
			plan.Message = "no curriculum text; electives will not be recommended"
		}

		checks = append(checks, title, chunks, faq, plan)
	}
	return checks
}
