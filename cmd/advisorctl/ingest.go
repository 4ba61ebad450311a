package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/garyellow/itmo-advisor-go/internal/config"
	"github.com/garyellow/itmo-advisor-go/internal/r2client"
	"github.com/garyellow/itmo-advisor-go/internal/scraper"
	"github.com/garyellow/itmo-advisor-go/internal/scraper/itmo"
	"github.com/garyellow/itmo-advisor-go/internal/snapshot"
)

type ingestOptions struct {
	upload      bool
	concurrency int
}

type ingestReport struct {
	Dir      string            `json:"dir"`
	Saved    []string          `json:"saved"`
	Failed   map[string]string `json:"failed,omitempty"`
	Uploaded int               `json:"uploaded,omitempty"`
	ETag     string            `json:"etag,omitempty"`
}

func newIngestCmd(e *env) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scrape program pages into the data directory",
		Long: `Scrape every configured program page from the admissions site, download
its curriculum PDF and write DATA_DIR/programs/{id}.json.

With --upload the run holds the R2 ingestion lock and publishes the
programs directory as a snapshot bundle for the servers to pick up.

Examples:
  advisorctl ingest
  advisorctl ingest --upload
  advisorctl ingest --concurrency 1 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runIngest(ctx, cmd, e, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.upload, "upload", false, "Publish the result to R2 (requires ITMO_R2_ENABLED)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", itmo.DefaultConcurrency, "Programs fetched in parallel")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, e *env, opts ingestOptions) error {
	if opts.concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1, got %d", opts.concurrency)
	}
	if opts.upload && !e.cfg.R2Enabled {
		return fmt.Errorf("--upload requires %s=true", config.EnvR2Enabled)
	}

	client := scraper.NewClient(scraper.Config{
		Timeout:      e.cfg.ScraperTimeout,
		MaxRetries:   e.cfg.ScraperMaxRetries,
		RetryInitial: config.ScraperRetryInitial,
		MinInterval:  config.ScraperRateLimit,
	})
	s := itmo.New(client, e.catalog, itmo.Options{
		BaseURL:     e.cfg.ScraperBaseURL,
		Concurrency: opts.concurrency,
		Logger:      e.log,
	})

	report := ingestReport{Dir: e.cfg.ProgramsDir()}
	scrape := func(ctx context.Context) error {
		res, err := s.ScrapeAll(ctx, report.Dir)
		report.Saved = res.Saved
		if len(res.Failed) > 0 {
			report.Failed = make(map[string]string, len(res.Failed))
			for id, ferr := range res.Failed {
				report.Failed[id] = ferr.Error()
			}
		}
		return err
	}

	if !opts.upload {
		if err := scrape(ctx); err != nil {
			return err
		}
		return printIngestReport(cmd, e, report)
	}

	r2, err := newR2Client(ctx, e.cfg)
	if err != nil {
		return err
	}
	snapshots := snapshot.New(r2, snapshot.Config{Key: e.cfg.R2SnapshotKey}, e.log)
	lock := r2client.NewDistributedLock(r2, e.cfg.R2LockKey, config.IngestLockTTL)

	err = snapshot.WithLock(ctx, lock, config.IngestLockRenewInterval, func(ctx context.Context) error {
		if err := scrape(ctx); err != nil {
			return err
		}
		etag, n, err := snapshots.Upload(ctx, report.Dir)
		if err != nil {
			return err
		}
		report.ETag, report.Uploaded = etag, n
		return nil
	})
	if errors.Is(err, snapshot.ErrLocked) {
		return errors.New("another ingestion run holds the lock; try again later")
	}
	if err != nil {
		return err
	}
	return printIngestReport(cmd, e, report)
}

func printIngestReport(cmd *cobra.Command, e *env, r ingestReport) error {
	if e.format == formatJSON {
		return writeJSON(cmd.OutOrStdout(), r)
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Saved %d program(s) to %s\n", len(r.Saved), r.Dir)
	for _, id := range r.Saved {
		_, _ = fmt.Fprintf(out, "  ✓ %s\n", id)
	}
	failed := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		failed = append(failed, id)
	}
	slices.Sort(failed)
	for _, id := range failed {
		_, _ = fmt.Fprintf(out, "  ✗ %s: %s\n", id, r.Failed[id])
	}
	if r.ETag != "" {
		_, _ = fmt.Fprintf(out, "Uploaded snapshot with %d file(s), etag %s\n", r.Uploaded, r.ETag)
	}
	return nil
}

func newR2Client(ctx context.Context, cfg *config.Config) (*r2client.Client, error) {
	client, err := r2client.New(ctx, r2client.Config{
		Endpoint:    r2client.AccountEndpoint(cfg.R2AccountID),
		AccessKeyID: cfg.R2AccessKeyID,
		SecretKey:   cfg.R2SecretAccessKey,
		BucketName:  cfg.R2BucketName,
	})
	if err != nil {
		return nil, fmt.Errorf("r2 client: %w", err)
	}
	return client, nil
}
