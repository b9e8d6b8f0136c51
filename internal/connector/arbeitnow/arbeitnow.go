// Package arbeitnow implements the Arbeitnow job board connector, a free
// JSON API focused on EU/German listings. The API has no search parameter,
// so keyword filtering happens client-side.
package arbeitnow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jobsonar/jobsonar/internal/connector"
	"github.com/jobsonar/jobsonar/internal/discovery"
)

const (
	// SourceID matches the registry descriptor for this connector.
	SourceID = "arbeitnow"

	defaultBaseURL = "https://www.arbeitnow.com/api/job-board-api"
	httpTimeout    = 30 * time.Second
)

// Connector fetches postings from the Arbeitnow API.
type Connector struct {
	baseURL string
	client  *http.Client
}

// Option customizes a Connector.
type Option func(*Connector)

// WithBaseURL overrides the API endpoint, primarily for tests.
func WithBaseURL(u string) Option {
	return func(c *Connector) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// New constructs a Connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	Data []apiJob `json:"data"`
}

type apiJob struct {
	Slug        string `json:"slug"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
	Location    string `json:"location"`
	Remote      bool   `json:"remote"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
}

// Fetch queries the board API and filters results against the query
// keywords before normalizing.
func (c *Connector) Fetch(ctx context.Context, query discovery.Query, limit int) ([]discovery.RawPosting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?page=1", nil)
	if err != nil {
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrNetwork, err)
	}
	if err := connector.ClassifyStatus(SourceID, resp.StatusCode); err != nil {
		return nil, err
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, discovery.NewSourceError(SourceID, discovery.SourceErrParse,
			fmt.Errorf("decode response: %w", err))
	}

	keywords := strings.ToLower(strings.TrimSpace(query.Keywords))
	var postings []discovery.RawPosting
	for _, job := range parsed.Data {
		if keywords != "" && !matchesKeywords(job, keywords) {
			continue
		}
		raw := discovery.RawPosting{
			SourceID:    SourceID,
			ExternalID:  job.Slug,
			Title:       job.Title,
			Company:     job.CompanyName,
			Location:    job.Location,
			Description: job.Description,
			URL:         job.URL,
		}
		if job.CreatedAt > 0 {
			ts := time.Unix(job.CreatedAt, 0).UTC()
			raw.PostedAt = &ts
		}
		postings = append(postings, raw)
		if limit > 0 && len(postings) >= limit {
			break
		}
	}
	return postings, nil
}

func matchesKeywords(job apiJob, keywords string) bool {
	text := strings.ToLower(job.Title + " " + job.CompanyName + " " + job.Description)
	for _, term := range strings.Fields(keywords) {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
