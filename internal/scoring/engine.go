// Package scoring ranks postings against a user's profile and preferences
// using a fixed-weight sum of normalized sub-scores.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jobsonar/jobsonar/internal/discovery"
	"github.com/jobsonar/jobsonar/internal/normalize"
)

// Factor weights. They sum to 1; the final score is the weighted sum
// scaled to [0,100].
const (
	weightSkills    = 0.30
	weightRole      = 0.20
	weightLocation  = 0.15
	weightSeniority = 0.10
	weightCompany   = 0.10
	weightKeywords  = 0.10
	weightFreshness = 0.05

	defaultFreshnessWindowDays = 30
	freshnessFloor             = 0.3
)

var roleFamilies = map[string][]string{
	"engineer":  {"developer", "programmer", "coder", "swe"},
	"developer": {"engineer", "programmer", "coder", "swe"},
	"manager":   {"lead", "head", "director"},
	"analyst":   {"scientist", "researcher"},
	"designer":  {"ux", "ui", "creative"},
}

var seniorityYears = map[string][2]int{
	"intern":    {0, 1},
	"entry":     {0, 2},
	"junior":    {0, 3},
	"mid":       {2, 6},
	"senior":    {5, 15},
	"lead":      {6, 20},
	"staff":     {8, 25},
	"principal": {10, 30},
	"manager":   {5, 20},
	"director":  {10, 25},
	"vp":        {15, 30},
	"executive": {15, 40},
}

// Engine scores and ranks postings.
type Engine struct {
	clock discovery.Clock
}

// New constructs an Engine.
func New(clock discovery.Clock) *Engine {
	return &Engine{clock: clock}
}

// Result is one posting's score with the matched attributes that
// produced it.
type Result struct {
	Score           int
	MatchedSkills   []string
	MatchedKeywords []string
	Breakdown       map[string]float64
}

// Score evaluates one posting against the user's profile and preferences.
// Every sub-score lies in [0,1]; the total is scaled to an integer in
// [0,100].
func (e *Engine) Score(
	posting discovery.Posting,
	profile discovery.Profile,
	prefs discovery.Preferences,
) Result {
	skillScore, matchedSkills := e.scoreSkills(posting, profile)
	keywordScore, matchedKeywords := e.scoreKeywords(posting, profile, prefs)

	breakdown := map[string]float64{
		"skills":    skillScore,
		"role":      e.scoreRole(posting, profile, prefs),
		"location":  e.scoreLocation(posting, prefs),
		"seniority": e.scoreSeniority(posting, profile, prefs),
		"company":   e.scoreCompany(posting, prefs),
		"keywords":  keywordScore,
		"freshness": e.scoreFreshness(posting, prefs),
	}

	total := weightSkills*breakdown["skills"] +
		weightRole*breakdown["role"] +
		weightLocation*breakdown["location"] +
		weightSeniority*breakdown["seniority"] +
		weightCompany*breakdown["company"] +
		weightKeywords*breakdown["keywords"] +
		weightFreshness*breakdown["freshness"]

	score := int(math.Round(100 * total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Result{
		Score:           score,
		MatchedSkills:   matchedSkills,
		MatchedKeywords: matchedKeywords,
		Breakdown:       breakdown,
	}
}

// Rank sorts postings by score descending; ties break on more recent
// posted_at, then lexicographic title.
func (e *Engine) Rank(postings []discovery.Posting) {
	sort.SliceStable(postings, func(i, j int) bool {
		a, b := postings[i], postings[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		switch {
		case a.PostedAt != nil && b.PostedAt != nil && !a.PostedAt.Equal(*b.PostedAt):
			return a.PostedAt.After(*b.PostedAt)
		case a.PostedAt != nil && b.PostedAt == nil:
			return true
		case a.PostedAt == nil && b.PostedAt != nil:
			return false
		}
		return a.Title < b.Title
	})
}

// scoreSkills is the fraction of the user's resume skills found in the
// posting text, capped at 1. A user with no listed skills scores neutral.
func (e *Engine) scoreSkills(posting discovery.Posting, profile discovery.Profile) (float64, []string) {
	if len(profile.Skills) == 0 {
		return 0.5, nil
	}
	text := strings.ToLower(posting.Title + " " + posting.Description)
	var matched []string
	for _, skill := range profile.Skills {
		if skill == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(skill)) {
			matched = append(matched, strings.ToLower(skill))
		}
	}
	sort.Strings(matched)
	score := float64(len(matched)) / float64(len(profile.Skills))
	if score > 1 {
		score = 1
	}
	return score, matched
}

func (e *Engine) scoreRole(
	posting discovery.Posting,
	profile discovery.Profile,
	prefs discovery.Preferences,
) float64 {
	title := strings.ToLower(posting.Title)
	targets := make(map[string]struct{})
	for _, role := range append(append([]string(nil), prefs.TargetRoles...), profile.Roles...) {
		if role != "" {
			targets[strings.ToLower(role)] = struct{}{}
		}
	}
	if len(targets) == 0 {
		return 0.5
	}
	titleWords := wordSet(title)
	for role := range targets {
		if strings.Contains(title, role) || strings.Contains(role, title) {
			return 1.0
		}
		if intersects(wordSet(role), titleWords) {
			return 0.75
		}
	}
	for familyKey, members := range roleFamilies {
		if !strings.Contains(title, familyKey) {
			continue
		}
		for role := range targets {
			for _, member := range members {
				if strings.Contains(role, member) {
					return 0.6
				}
			}
		}
	}
	return 0.3
}

func (e *Engine) scoreLocation(posting discovery.Posting, prefs discovery.Preferences) float64 {
	remotePref := strings.ToLower(prefs.RemotePreference)
	switch remotePref {
	case "remote":
		switch posting.RemoteType {
		case discovery.RemoteTypeRemote:
			return 1.0
		case discovery.RemoteTypeHybrid:
			return 0.6
		default:
			return 0.3
		}
	case "onsite":
		switch posting.RemoteType {
		case discovery.RemoteTypeOnsite:
			return 1.0
		case discovery.RemoteTypeHybrid:
			return 0.7
		default:
			return 0.4
		}
	}

	if len(prefs.TargetLocations) == 0 && len(prefs.PreferredRegions) == 0 {
		return 0.7
	}
	location := strings.ToLower(posting.Location)
	for _, loc := range prefs.TargetLocations {
		loc = strings.ToLower(loc)
		if loc != "" && (strings.Contains(location, loc) || strings.Contains(loc, location)) {
			return 1.0
		}
	}
	region := strings.ToLower(posting.Region)
	for _, preferred := range prefs.PreferredRegions {
		if region != "" && strings.EqualFold(preferred, region) {
			return 0.9
		}
	}
	return 0.4
}

func (e *Engine) scoreSeniority(
	posting discovery.Posting,
	profile discovery.Profile,
	prefs discovery.Preferences,
) float64 {
	seniority := strings.ToLower(posting.Seniority)
	if seniority == "" || seniority == "unknown" {
		seniority = normalize.InferSeniority(posting.Title)
	}

	if len(prefs.SeniorityLevels) > 0 {
		for _, level := range prefs.SeniorityLevels {
			if strings.EqualFold(level, seniority) {
				return 1.0
			}
		}
		return 0.5
	}

	bounds, ok := seniorityYears[seniority]
	if !ok {
		return 0.6
	}
	years := profile.ExperienceYears
	switch {
	case years >= bounds[0] && years <= bounds[1]:
		return 0.9
	case abs(years-bounds[0]) <= 2 || abs(years-bounds[1]) <= 2:
		return 0.7
	default:
		return 0.4
	}
}

func (e *Engine) scoreCompany(posting discovery.Posting, prefs discovery.Preferences) float64 {
	company := strings.ToLower(posting.Company)
	for _, blocked := range prefs.ExcludedCompanies {
		blocked = strings.ToLower(blocked)
		if blocked != "" && (strings.Contains(company, blocked) || strings.Contains(blocked, company)) {
			return 0
		}
	}
	for _, preferred := range prefs.IncludedCompanies {
		preferred = strings.ToLower(preferred)
		if preferred != "" && (strings.Contains(company, preferred) || strings.Contains(preferred, company)) {
			return 1.0
		}
	}
	return 0.6
}

func (e *Engine) scoreKeywords(
	posting discovery.Posting,
	profile discovery.Profile,
	prefs discovery.Preferences,
) (float64, []string) {
	text := strings.ToLower(posting.Title + " " + posting.Description)
	for _, kw := range prefs.ExcludeKeywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return 0, nil
		}
	}

	all := make(map[string]struct{})
	for _, kw := range append(append([]string(nil), profile.Keywords...), prefs.IncludeKeywords...) {
		if kw != "" {
			all[strings.ToLower(kw)] = struct{}{}
		}
	}
	if len(all) == 0 {
		return 0.6, nil
	}
	var matched []string
	for kw := range all {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	sort.Strings(matched)
	score := float64(len(matched)) / float64(len(all))
	if score > 1 {
		score = 1
	}
	return score, matched
}

// scoreFreshness decays linearly from 1.0 at post time to a floor at
// the end of the posted-within window. Postings with no date are neutral.
func (e *Engine) scoreFreshness(posting discovery.Posting, prefs discovery.Preferences) float64 {
	if posting.PostedAt == nil {
		return 0.5
	}
	windowDays := prefs.PostedWithinDays
	if windowDays <= 0 {
		windowDays = defaultFreshnessWindowDays
	}
	age := e.clock.Now().Sub(*posting.PostedAt)
	if age <= 0 {
		return 1.0
	}
	window := time.Duration(windowDays) * 24 * time.Hour
	if age >= window {
		return freshnessFloor
	}
	frac := float64(age) / float64(window)
	return 1.0 - frac*(1.0-freshnessFloor)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

func intersects(a, b map[string]struct{}) bool {
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
