// Package remotive implements the Remotive.io job board connector.
// Remotive exposes a free JSON API for remote listings.
package remotive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jobsonar/jobsonar/internal/connector"
	"github.com/jobsonar/jobsonar/internal/discovery"
)

const (
	// SourceID matches the registry descriptor for this connector.
	SourceID = "remotive"

	defaultBaseURL = "https://remotive.io/api/remote-jobs"
	httpTimeout    = 30 * time.Second
)

// Connector fetches postings from the Remotive API.
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
	Jobs []apiJob `json:"jobs"`
}

type apiJob struct {
	ID          json.Number `json:"id"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	CompanyName string      `json:"company_name"`
	Location    string      `json:"candidate_required_location"`
	Salary      string      `json:"salary"`
	Description string      `json:"description"`
	PublishedAt string      `json:"publication_date"`
}

// Fetch queries the API and normalizes results into raw postings. All
// Remotive listings are remote roles.
func (c *Connector) Fetch(ctx context.Context, query discovery.Query, limit int) ([]discovery.RawPosting, error) {
	params := url.Values{}
	if query.Keywords != "" {
		params.Set("search", query.Keywords)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	reqURL := c.baseURL
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
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

	postings := make([]discovery.RawPosting, 0, len(parsed.Jobs))
	for i, job := range parsed.Jobs {
		if limit > 0 && i >= limit {
			break
		}
		location := job.Location
		if location == "" {
			location = "Worldwide"
		}
		raw := discovery.RawPosting{
			SourceID:    SourceID,
			ExternalID:  job.ID.String(),
			Title:       job.Title,
			Company:     job.CompanyName,
			Location:    location,
			Description: job.Description,
			URL:         job.URL,
			SalaryText:  job.Salary,
		}
		if ts, parseErr := time.Parse("2006-01-02T15:04:05", job.PublishedAt); parseErr == nil {
			utc := ts.UTC()
			raw.PostedAt = &utc
		}
		postings = append(postings, raw)
	}
	return postings, nil
}
