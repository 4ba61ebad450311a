package itmo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/itmo-advisor-go/internal/curriculum"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/metrics"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/scraper"
)

// DefaultConcurrency is the number of program pages fetched in parallel.
const DefaultConcurrency = 2

// Scraper downloads program pages and their curriculum PDFs.
type Scraper struct {
	client      *scraper.Client
	catalog     *program.Catalog
	baseURL     string
	concurrency int
	logger      *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Options configures a Scraper.
type Options struct {
	BaseURL     string // page prefix; the program id is appended. Defaults to program.BaseURL.
	Concurrency int
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
}

// New creates a Scraper.
func New(client *scraper.Client, catalog *program.Catalog, opts Options) *Scraper {
	if catalog == nil {
		catalog = program.DefaultCatalog()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = program.BaseURL
	}
	if !strings.HasSuffix(opts.BaseURL, "/") {
		opts.BaseURL += "/"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("info")
	}
	return &Scraper{
		client:      client,
		catalog:     catalog,
		baseURL:     opts.BaseURL,
		concurrency: opts.Concurrency,
		logger:      opts.Logger.WithModule("scraper"),
		metrics:     opts.Metrics,
		now:         time.Now,
	}
}

// Scrape fetches one program and returns its record. A missing or unreadable
// curriculum PDF is logged and leaves the documents section out.
func (s *Scraper) Scrape(ctx context.Context, info program.Info) (program.Record, error) {
	start := time.Now()
	pageURL := s.baseURL + info.ID
	log := s.logger.WithField("program", info.ID)

	doc, err := s.client.GetDocument(ctx, pageURL)
	if err != nil {
		s.metrics.RecordScrape(info.ID, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("fetch %s: %w", info.ID, err)
	}
	page, err := Parse(doc, info)
	if err != nil {
		s.metrics.RecordScrape(info.ID, "parse_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("parse %s: %w", info.ID, err)
	}
	rec := page.Record

	if page.PlanURL != "" {
		planURL := resolveURL(pageURL, page.PlanURL)
		text, err := s.curriculum(ctx, planURL)
		switch {
		case err != nil:
			log.WithError(err).WithField("url", planURL).Warn("Curriculum unavailable")
		default:
			rec[program.SectionDocuments] = map[string]any{
				program.DocumentCurriculum:    text,
				program.DocumentCurriculumURL: planURL,
			}
		}
	}
	rec[program.SectionScrapedAt] = s.now().UTC().Format(time.RFC3339)

	s.metrics.RecordScrape(info.ID, "success", time.Since(start).Seconds())
	log.WithField("sections", len(rec)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Program scraped")
	return rec, nil
}

func (s *Scraper) curriculum(ctx context.Context, planURL string) (string, error) {
	data, err := s.client.GetBytes(ctx, planURL)
	if err != nil {
		return "", err
	}
	return curriculum.ExtractText(data)
}

// Result reports the outcome of ScrapeAll.
type Result struct {
	Saved  []string // program ids written to disk, in catalog order
	Failed map[string]error
}

// ScrapeAll scrapes every catalog program and saves each record to dir.
// Failures of single programs are collected; the error is non-nil only when
// nothing was saved or the context ended.
func (s *Scraper) ScrapeAll(ctx context.Context, dir string) (Result, error) {
	programs := s.catalog.All()
	saved := make([]bool, len(programs))
	errs := make([]error, len(programs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, info := range programs {
		g.Go(func() error {
			rec, err := s.Scrape(gctx, info)
			if err == nil {
				err = program.SaveFile(dir, info.ID, rec)
			}
			if err != nil {
				errs[i] = err
				s.logger.WithError(err).WithField("program", info.ID).Error("Program ingestion failed")
				return nil
			}
			saved[i] = true
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Failed: make(map[string]error)}
	for i, info := range programs {
		if saved[i] {
			res.Saved = append(res.Saved, info.ID)
		} else if errs[i] != nil {
			res.Failed[info.ID] = errs[i]
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(res.Saved) == 0 && len(res.Failed) > 0 {
		return res, fmt.Errorf("no program scraped: %w", errors.Join(errs...))
	}
	return res, nil
}

// resolveURL makes ref absolute against base. ref is returned unchanged when
// either fails to parse.
func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
