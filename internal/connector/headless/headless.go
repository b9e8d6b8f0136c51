// Package headless implements the Wellfound connector. Wellfound renders
// its search results with JavaScript, so listings are fetched through a
// headless browser and parsed from the rendered DOM.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jobsonar/jobsonar/internal/connector"
	"github.com/jobsonar/jobsonar/internal/discovery"
)

const (
	// SourceID matches the registry descriptor for this connector.
	SourceID = "wellfound"

	defaultBaseURL    = "https://wellfound.com/jobs"
	defaultNavTimeout = 45 * time.Second
	defaultMaxTabs    = 2
)

// RobotsPolicy answers whether a URL may be fetched under robots.txt
// rules. The browser transport does not consult robots.txt itself.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Config controls the behavior of the headless connector.
type Config struct {
	BaseURL    string
	UserAgent  string
	MaxTabs    int
	NavTimeout time.Duration
	Robots     RobotsPolicy
}

// Connector fetches postings from Wellfound via chromedp and headless
// Chrome. Concurrent fetches are bounded by MaxTabs.
type Connector struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless connector backed by chromedp.
func New(cfg Config) (*Connector, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0")
	}
	if cfg.MaxTabs == 0 {
		cfg.MaxTabs = defaultMaxTabs
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Connector{
		cfg:         cfg,
		limiter:     make(chan struct{}, cfg.MaxTabs),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, shutting down the browser.
func (c *Connector) Close() {
	c.allocCancel()
}

// Fetch renders the search results page and parses the job cards out of
// the final DOM.
func (c *Connector) Fetch(ctx context.Context, query discovery.Query, limit int) ([]discovery.RawPosting, error) {
	target := searchURL(c.cfg.BaseURL, query)
	if c.cfg.Robots != nil && !c.cfg.Robots.Allowed(ctx, target) {
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrBlocked,
			fmt.Errorf("robots.txt disallows %s", target))
	}

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.NavTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, err := c.render(taskCtx, target)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, discovery.NewSourceError(SourceID, discovery.SourceErrNetwork,
				fmt.Errorf("fetch canceled: %w", ctx.Err()))
		}
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrNetwork, err)
	}
	if status := meta.status(); status > 0 {
		if err := connector.ClassifyStatus(SourceID, status); err != nil {
			return nil, err
		}
	}

	postings, err := parsePage(html, c.cfg.BaseURL, limit)
	if err != nil {
		return nil, err
	}
	if len(postings) == 0 {
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrEmpty,
			fmt.Errorf("no job cards matched for query %q", query.Keywords))
	}
	return postings, nil
}

func (c *Connector) render(ctx context.Context, pageURL string) (string, error) {
	var html string
	actions := []chromedp.Action{
		c.networkSetupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// The result list fills in as the page scrolls.
		chromedp.Evaluate(`window.scrollBy(0, 600)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(`window.scrollBy(0, 600)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (c *Connector) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (c *Connector) acquire(ctx context.Context) error {
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return discovery.NewSourceError(SourceID, discovery.SourceErrNetwork,
			fmt.Errorf("tab slot wait canceled: %w", ctx.Err()))
	}
}

func (c *Connector) release() {
	select {
	case <-c.limiter:
	default:
	}
}

// searchURL builds the role/location search URL. Wellfound encodes the
// role as a hyphenated slug rather than a query string.
func searchURL(baseURL string, query discovery.Query) string {
	params := make([]string, 0, 2)
	if query.Keywords != "" {
		slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(query.Keywords)), " ", "-")
		params = append(params, "role="+slug)
	}
	if query.Location != "" {
		params = append(params, "location="+strings.ReplaceAll(query.Location, " ", "%20"))
	}
	if len(params) == 0 {
		return baseURL
	}
	return baseURL + "?" + strings.Join(params, "&")
}

// parsePage extracts job cards from the rendered search page. The card
// markup shifts between deployments, so each field tries a list of
// selectors in order.
func parsePage(html, baseURL string, limit int) ([]discovery.RawPosting, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrParse,
			fmt.Errorf("parse rendered page: %w", err))
	}

	cards := doc.Find(`div[data-test="JobSearchResult"]`)
	if cards.Length() == 0 {
		cards = doc.Find("div.job-listing")
	}

	var postings []discovery.RawPosting
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if limit > 0 && len(postings) >= limit {
			return false
		}
		raw, ok := parseCard(card, baseURL)
		if !ok {
			return true
		}
		postings = append(postings, raw)
		return true
	})
	return postings, nil
}

func parseCard(card *goquery.Selection, baseURL string) (discovery.RawPosting, bool) {
	title := firstText(card, `[class*="JobTitle"]`, "h2", `[class*="title"]`)
	if title == "" {
		return discovery.RawPosting{}, false
	}
	company := firstText(card, `[class*="CompanyName"]`, `[class*="company"]`)
	if company == "" {
		company = "Startup"
	}
	location := firstText(card, `[class*="Location"]`, `[class*="location"]`)

	href, _ := card.Find(`a[href*="/jobs/"]`).First().Attr("href")
	link := href
	if strings.HasPrefix(href, "/") {
		link = strings.TrimSuffix(baseURL, "/jobs") + href
	}

	description := firstText(card, `[class*="description"]`, "p")
	if description == "" {
		description = title + " at " + company
	}

	return discovery.RawPosting{
		SourceID:    SourceID,
		ExternalID:  href,
		Title:       title,
		Company:     company,
		Location:    location,
		Description: description,
		URL:         link,
		SalaryText:  firstText(card, `[class*="salary"]`, `[class*="compensation"]`),
	}, true
}

func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

type responseMeta struct {
	mu   sync.RWMutex
	code int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.code == 0 {
		return http.StatusOK
	}
	return m.code
}
