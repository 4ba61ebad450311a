package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyellow/itmo-advisor-go/internal/recommend"
)

func newRecommendCmd(e *env) *cobra.Command {
	var tablesFile string

	cmd := &cobra.Command{
		Use:   "recommend <background>",
		Short: "Score programs and electives for a background",
		Long: `Analyze a free-text self-description and print program suitability
and recommended electives for every program in the local corpus.

Examples:
  advisorctl recommend "Я программист на Python, 3 года опыта в ML"
  advisorctl recommend --tables tables.yaml --format json "продакт-менеджер"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			background := strings.TrimSpace(strings.Join(args, " "))
			if background == "" {
				return errors.New("background must not be empty")
			}

			tables := recommend.DefaultTables()
			path := tablesFile
			if path == "" {
				path = e.cfg.TablesFile
			}
			if path != "" {
				var err error
				if tables, err = recommend.LoadTables(path); err != nil {
					return err
				}
			}
			engine, err := recommend.NewEngine(tables, e.catalog, e.cfg.SubjectThreshold, nil)
			if err != nil {
				return err
			}
			records, err := e.loadRecords()
			if err != nil {
				return err
			}

			results := engine.Recommend(background, records)
			if e.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), engine.FormatMarkdown(results))
			return err
		},
	}

	cmd.Flags().StringVar(&tablesFile, "tables", "", "YAML keyword tables override (default ITMO_TABLES_FILE)")
	return cmd
}
