package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return New(fixedClock{now: testNow})
}

func posting(overrides func(*discovery.Posting)) discovery.Posting {
	p := discovery.Posting{
		Title:       "Senior Backend Engineer",
		Company:     "Acme",
		Location:    "Berlin, Germany",
		Region:      "EU",
		RemoteType:  discovery.RemoteTypeRemote,
		Description: "Build services in Go with Postgres and Kubernetes.",
	}
	if overrides != nil {
		overrides(&p)
	}
	return p
}

func TestScoreBoundsAcrossInputs(t *testing.T) {
	t.Parallel()
	engine := newEngine()
	profiles := []discovery.Profile{
		{},
		{Skills: []string{"go", "postgres", "kubernetes"}, ExperienceYears: 7},
		{Skills: []string{"cobol"}, Roles: []string{"mainframe operator"}},
	}
	prefsList := []discovery.Preferences{
		{},
		{RemotePreference: "remote", IncludedCompanies: []string{"acme"}},
		{ExcludedCompanies: []string{"acme"}, ExcludeKeywords: []string{"go"}},
	}
	for _, profile := range profiles {
		for _, prefs := range prefsList {
			result := engine.Score(posting(nil), profile, prefs)
			require.GreaterOrEqual(t, result.Score, 0)
			require.LessOrEqual(t, result.Score, 100)
			for factor, sub := range result.Breakdown {
				require.GreaterOrEqual(t, sub, 0.0, factor)
				require.LessOrEqual(t, sub, 1.0, factor)
			}
		}
	}
}

func TestScoreSkillOverlap(t *testing.T) {
	t.Parallel()
	engine := newEngine()

	result := engine.Score(posting(nil), discovery.Profile{
		Skills: []string{"Go", "Postgres", "Rust", "Terraform"},
	}, discovery.Preferences{})
	require.Equal(t, []string{"go", "postgres"}, result.MatchedSkills)
	require.InDelta(t, 0.5, result.Breakdown["skills"], 0.001)

	// No skills listed scores neutral, not zero.
	neutral := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{})
	require.InDelta(t, 0.5, neutral.Breakdown["skills"], 0.001)
}

func TestScoreRoleMatching(t *testing.T) {
	t.Parallel()
	engine := newEngine()

	exact := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		TargetRoles: []string{"Backend Engineer"},
	})
	require.InDelta(t, 1.0, exact.Breakdown["role"], 0.001)

	shared := engine.Score(posting(nil), discovery.Profile{Roles: []string{"Platform Engineer"}}, discovery.Preferences{})
	require.InDelta(t, 0.75, shared.Breakdown["role"], 0.001)

	family := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		TargetRoles: []string{"swe"},
	})
	require.InDelta(t, 0.6, family.Breakdown["role"], 0.001)

	miss := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		TargetRoles: []string{"accountant"},
	})
	require.InDelta(t, 0.3, miss.Breakdown["role"], 0.001)
}

func TestScoreLocationRemotePreference(t *testing.T) {
	t.Parallel()
	engine := newEngine()

	remote := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		RemotePreference: "remote",
	})
	require.InDelta(t, 1.0, remote.Breakdown["location"], 0.001)

	onsiteWant := engine.Score(posting(func(p *discovery.Posting) {
		p.RemoteType = discovery.RemoteTypeOnsite
	}), discovery.Profile{}, discovery.Preferences{RemotePreference: "remote"})
	require.InDelta(t, 0.3, onsiteWant.Breakdown["location"], 0.001)

	byCity := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		TargetLocations: []string{"Berlin"},
	})
	require.InDelta(t, 1.0, byCity.Breakdown["location"], 0.001)

	byRegion := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		PreferredRegions: []string{"EU"},
		TargetLocations:  []string{"Lisbon"},
	})
	require.InDelta(t, 0.9, byRegion.Breakdown["location"], 0.001)
}

func TestScoreSeniorityFromYears(t *testing.T) {
	t.Parallel()
	engine := newEngine()

	inRange := engine.Score(posting(nil), discovery.Profile{ExperienceYears: 7}, discovery.Preferences{})
	require.InDelta(t, 0.9, inRange.Breakdown["seniority"], 0.001)

	near := engine.Score(posting(nil), discovery.Profile{ExperienceYears: 3}, discovery.Preferences{})
	require.InDelta(t, 0.7, near.Breakdown["seniority"], 0.001)

	preferred := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		SeniorityLevels: []string{"senior"},
	})
	require.InDelta(t, 1.0, preferred.Breakdown["seniority"], 0.001)
}

func TestScoreCompanyLists(t *testing.T) {
	t.Parallel()
	engine := newEngine()

	blocked := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		ExcludedCompanies: []string{"ACME"},
	})
	require.InDelta(t, 0.0, blocked.Breakdown["company"], 0.001)

	allowed := engine.Score(posting(nil), discovery.Profile{}, discovery.Preferences{
		IncludedCompanies: []string{"acme"},
	})
	require.InDelta(t, 1.0, allowed.Breakdown["company"], 0.001)
}

func TestScoreKeywordExclusionZeroes(t *testing.T) {
	t.Parallel()
	engine := newEngine()

	result := engine.Score(posting(nil), discovery.Profile{Keywords: []string{"kubernetes"}}, discovery.Preferences{
		ExcludeKeywords: []string{"postgres"},
	})
	require.InDelta(t, 0.0, result.Breakdown["keywords"], 0.001)
	require.Empty(t, result.MatchedKeywords)

	matched := engine.Score(posting(nil), discovery.Profile{Keywords: []string{"kubernetes", "kafka"}}, discovery.Preferences{
		IncludeKeywords: []string{"postgres"},
	})
	require.InDelta(t, 2.0/3.0, matched.Breakdown["keywords"], 0.001)
	require.Equal(t, []string{"kubernetes", "postgres"}, matched.MatchedKeywords)
}

func TestScoreFreshnessDecay(t *testing.T) {
	t.Parallel()
	engine := newEngine()
	prefs := discovery.Preferences{PostedWithinDays: 10}

	fresh := engine.Score(posting(func(p *discovery.Posting) {
		p.PostedAt = &testNow
	}), discovery.Profile{}, prefs)
	require.InDelta(t, 1.0, fresh.Breakdown["freshness"], 0.001)

	halfway := testNow.Add(-5 * 24 * time.Hour)
	mid := engine.Score(posting(func(p *discovery.Posting) {
		p.PostedAt = &halfway
	}), discovery.Profile{}, prefs)
	require.InDelta(t, 0.65, mid.Breakdown["freshness"], 0.001)

	old := testNow.Add(-30 * 24 * time.Hour)
	stale := engine.Score(posting(func(p *discovery.Posting) {
		p.PostedAt = &old
	}), discovery.Profile{}, prefs)
	require.InDelta(t, 0.3, stale.Breakdown["freshness"], 0.001)

	undated := engine.Score(posting(nil), discovery.Profile{}, prefs)
	require.InDelta(t, 0.5, undated.Breakdown["freshness"], 0.001)
}

func TestRankOrdering(t *testing.T) {
	t.Parallel()
	engine := newEngine()

	older := testNow.Add(-48 * time.Hour)
	newer := testNow.Add(-2 * time.Hour)
	postings := []discovery.Posting{
		{Title: "B role", MatchScore: 80, PostedAt: &older},
		{Title: "A role", MatchScore: 80, PostedAt: &older},
		{Title: "C role", MatchScore: 80, PostedAt: &newer},
		{Title: "D role", MatchScore: 95},
	}
	engine.Rank(postings)

	require.Equal(t, "D role", postings[0].Title)
	require.Equal(t, "C role", postings[1].Title)
	require.Equal(t, "A role", postings[2].Title)
	require.Equal(t, "B role", postings[3].Title)
}
