// Package board implements the We Work Remotely connector. The board has
// no public API, so listings are scraped from the search results page.
package board

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/jobsonar/jobsonar/internal/connector"
	"github.com/jobsonar/jobsonar/internal/discovery"
)

const (
	// SourceID matches the registry descriptor for this connector.
	SourceID = "weworkremotely"

	defaultBaseURL = "https://weworkremotely.com"
	defaultTimeout = 20 * time.Second
	defaultAgent   = "jobsonar/1.0 (+https://github.com/jobsonar/jobsonar)"
)

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Connector scrapes listing rows from the board's search page.
type Connector struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Connector.
func New(cfg Config) *Connector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = cfg.UserAgent
	c.SetRequestTimeout(cfg.Timeout)
	return &Connector{cfg: cfg, base: c}
}

// Fetch scrapes the search results page for the query keywords. Zero
// matched rows on an otherwise valid page is reported as an empty-kind
// error so selector drift is visible instead of silent.
func (c *Connector) Fetch(ctx context.Context, query discovery.Query, limit int) ([]discovery.RawPosting, error) {
	searchURL := fmt.Sprintf("%s/remote-jobs/search?%s", c.cfg.BaseURL,
		url.Values{"term": []string{query.Keywords}}.Encode())

	var (
		postings  []discovery.RawPosting
		statusErr error
	)
	collector := c.base.Clone()
	collector.UserAgent = c.cfg.UserAgent
	collector.SetRequestTimeout(c.cfg.Timeout)

	collector.OnHTML("section.jobs li", func(e *colly.HTMLElement) {
		if limit > 0 && len(postings) >= limit {
			return
		}
		raw, ok := parseListing(e.DOM, c.cfg.BaseURL)
		if !ok {
			return
		}
		postings = append(postings, raw)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			statusErr = connector.ClassifyStatus(SourceID, r.StatusCode)
			return
		}
		statusErr = discovery.NewSourceError(SourceID, discovery.SourceErrNetwork, err)
	})

	if err := c.visit(ctx, collector, searchURL, func() error { return statusErr }); err != nil {
		return nil, err
	}
	if statusErr != nil {
		return nil, statusErr
	}
	if len(postings) == 0 {
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrEmpty,
			fmt.Errorf("no listing rows matched on %s", searchURL))
	}
	return postings, nil
}

// visit runs the collector and waits for it or the caller's context.
// status is only consulted once the visit goroutine has finished, so the
// OnError callback's classification is safe to read; when it classified
// the response (403/429 as blocked) that error wins over colly's own
// non-2xx visit error, which would otherwise mask it as network kind.
func (c *Connector) visit(ctx context.Context, collector *colly.Collector, pageURL string, status func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()
	select {
	case <-ctx.Done():
		return discovery.NewSourceError(SourceID, discovery.SourceErrNetwork,
			fmt.Errorf("fetch canceled: %w", ctx.Err()))
	case err := <-done:
		if err != nil {
			if serr := status(); serr != nil {
				return serr
			}
			return discovery.NewSourceError(SourceID, discovery.SourceErrNetwork,
				fmt.Errorf("visit failed: %w", err))
		}
		return nil
	}
}

// parseListing extracts one posting from a listing row. Rows without a
// title and company (section headers, view-all links) are skipped.
func parseListing(sel *goquery.Selection, baseURL string) (discovery.RawPosting, bool) {
	title := strings.TrimSpace(sel.Find("span.title").First().Text())
	company := strings.TrimSpace(sel.Find("span.company").First().Text())
	if title == "" || company == "" {
		return discovery.RawPosting{}, false
	}
	region := strings.TrimSpace(sel.Find("span.region").First().Text())
	if region == "" {
		region = "Remote"
	}
	href, _ := sel.Find("a").First().Attr("href")
	link := href
	if strings.HasPrefix(href, "/") {
		link = baseURL + href
	}
	return discovery.RawPosting{
		SourceID:   SourceID,
		ExternalID: href,
		Title:      title,
		Company:    company,
		Location:   region,
		URL:        link,
	}, true
}
