package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sensorrelay/sensorrelay/agent/internal/config"
)

// ScrapeResult is the output of one scrape of one source. Values holds the
// summed value for every configured field that was present; rate fields hold
// raw counter totals, and the compute engine derives rates from the delta.
type ScrapeResult struct {
	SourceID  string
	ScrapedAt time.Time

	Values map[string]float64

	// Missing lists configured fields with no matching series.
	Missing []string

	// Err is non-nil if the scrape itself failed (connectivity, auth, parse).
	Err error
}

// Scraper polls one source's metrics endpoint.
type Scraper struct {
	src    config.Source
	client *http.Client
}

// New returns a Scraper for src. It builds the HTTP client once and reuses it
// across scrape calls.
func New(src config.Source) (*Scraper, error) {
	client, err := buildHTTPClient(src)
	if err != nil {
		return nil, fmt.Errorf("scraper %q: build http client: %w", src.ID, err)
	}
	return &Scraper{src: src, client: client}, nil
}

// Source returns the configuration this scraper was built from.
func (s *Scraper) Source() config.Source { return s.src }

// Scrape fetches the endpoint and extracts every configured field.
// Fetch failures are reported in the result's Err, not as a returned error,
// so one unreachable source never aborts a scrape cycle.
func (s *Scraper) Scrape(ctx context.Context) (*ScrapeResult, error) {
	res := &ScrapeResult{
		SourceID:  s.src.ID,
		ScrapedAt: time.Now().UTC(),
		Values:    make(map[string]float64, len(s.src.Fields)),
	}

	mfs, err := fetchMetrics(ctx, s.client, s.src.Endpoint)
	if err != nil {
		res.Err = fmt.Errorf("scrape %q: %w", s.src.ID, err)
		slog.Warn("scraper: fetch failed", "source", s.src.ID, "err", err)
		return res, nil
	}

	for _, f := range s.src.Fields {
		v, ok := sumFamily(mfs[f.Metric], f.Labels)
		if !ok {
			res.Missing = append(res.Missing, f.Name)
			continue
		}
		res.Values[f.Name] = v
	}
	if len(res.Missing) > 0 {
		slog.Debug("scraper: fields without series", "source", s.src.ID, "fields", res.Missing)
	}
	return res, nil
}
