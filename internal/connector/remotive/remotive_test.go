package remotive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

const fixtureBody = `{
  "jobs": [
    {
      "id": 19001,
      "url": "https://remotive.io/remote-jobs/software-dev/backend-engineer-19001",
      "title": "Backend Engineer",
      "company_name": "Acme",
      "candidate_required_location": "Europe",
      "salary": "$90,000 - $120,000",
      "description": "Build services in Go.",
      "publication_date": "2026-08-10T09:30:00"
    },
    {
      "id": 19002,
      "url": "https://remotive.io/remote-jobs/software-dev/platform-engineer-19002",
      "title": "Platform Engineer",
      "company_name": "Globex",
      "candidate_required_location": "",
      "salary": "",
      "description": "Kubernetes platform work.",
      "publication_date": "not-a-date"
    }
  ]
}`

func TestFetchMapsFields(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixtureBody))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	postings, err := c.Fetch(context.Background(), discovery.Query{Keywords: "backend engineer"}, 10)
	require.NoError(t, err)
	require.Len(t, postings, 2)
	require.Equal(t, "limit=10&search=backend+engineer", gotQuery)

	first := postings[0]
	require.Equal(t, SourceID, first.SourceID)
	require.Equal(t, "19001", first.ExternalID)
	require.Equal(t, "Backend Engineer", first.Title)
	require.Equal(t, "Acme", first.Company)
	require.Equal(t, "Europe", first.Location)
	require.Equal(t, "$90,000 - $120,000", first.SalaryText)
	require.NotNil(t, first.PostedAt)
	require.Equal(t, time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC), *first.PostedAt)

	second := postings[1]
	require.Equal(t, "Worldwide", second.Location)
	require.Nil(t, second.PostedAt)
}

func TestFetchHonorsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixtureBody))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	postings, err := c.Fetch(context.Background(), discovery.Query{Keywords: "engineer"}, 1)
	require.NoError(t, err)
	require.Len(t, postings, 1)
	require.Equal(t, "Backend Engineer", postings[0].Title)
}

func TestFetchErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		kind discovery.SourceErrorKind
	}{
		{"forbidden is blocked", http.StatusForbidden, "", discovery.SourceErrBlocked},
		{"rate limited is blocked", http.StatusTooManyRequests, "", discovery.SourceErrBlocked},
		{"server error is network", http.StatusInternalServerError, "", discovery.SourceErrNetwork},
		{"malformed body is parse", http.StatusOK, "{not json", discovery.SourceErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(WithBaseURL(srv.URL))
			_, err := c.Fetch(context.Background(), discovery.Query{Keywords: "go"}, 5)
			require.Error(t, err)
			require.Equal(t, tt.kind, discovery.ErrorKind(err))
		})
	}
}

func TestFetchConnectionRefusedIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(WithBaseURL(srv.URL))
	_, err := c.Fetch(context.Background(), discovery.Query{Keywords: "go"}, 5)
	require.Error(t, err)
	require.Equal(t, discovery.SourceErrNetwork, discovery.ErrorKind(err))
}
