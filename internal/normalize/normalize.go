// Package normalize classifies connector output into the shared posting
// vocabulary: region tags, remote-work arrangement, and seniority level.
// Every connector funnels its raw records through these helpers so the
// pipeline never carries per-source shapes.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

var regionIndicators = []struct {
	region     string
	indicators []string
}{
	{"US", []string{
		"usa", "united states", "u.s.", "america",
		"california", "new york", "texas", "washington", "massachusetts",
		"san francisco", "los angeles", "seattle", "boston", "nyc", "austin",
	}},
	{"UK", []string{"uk", "united kingdom", "london", "manchester", "birmingham", "england", "scotland"}},
	{"EU", []string{
		"germany", "france", "netherlands", "spain", "italy", "poland",
		"berlin", "paris", "amsterdam", "munich", "barcelona",
	}},
	{"India", []string{"india", "bangalore", "mumbai", "delhi", "hyderabad", "chennai", "pune"}},
	{"Australia", []string{"australia", "sydney", "melbourne", "brisbane", "perth"}},
	{"SEA", []string{"singapore", "malaysia", "indonesia", "philippines", "thailand", "vietnam"}},
	{"Middle East", []string{"uae", "dubai", "saudi", "qatar", "bahrain", "kuwait"}},
	{"Canada", []string{"canada", "toronto", "vancouver", "montreal", "calgary"}},
}

// InferRegion maps a free-form location string to a coarse region tag.
func InferRegion(location string) string {
	location = strings.ToLower(location)
	for _, entry := range regionIndicators {
		for _, ind := range entry.indicators {
			if strings.Contains(location, ind) {
				return entry.region
			}
		}
	}
	return "Global"
}

// InferRemoteType classifies the work arrangement from title, location,
// and description text.
func InferRemoteType(title, location, description string) discovery.RemoteType {
	text := strings.ToLower(title + " " + location + " " + description)
	switch {
	case strings.Contains(text, "hybrid"):
		return discovery.RemoteTypeHybrid
	case strings.Contains(text, "remote"):
		return discovery.RemoteTypeRemote
	case strings.Contains(text, "on-site"),
		strings.Contains(text, "onsite"),
		strings.Contains(text, "in-office"):
		return discovery.RemoteTypeOnsite
	}
	return discovery.RemoteTypeUnknown
}

// InferSeniority derives a seniority level from a job title.
func InferSeniority(title string) string {
	title = strings.ToLower(title)
	switch {
	case containsAny(title, "intern", "internship"):
		return "intern"
	case containsAny(title, "junior", "jr", "entry", "associate", "graduate"):
		return "entry"
	case containsAny(title, "principal", "staff"):
		return "principal"
	case containsAny(title, "senior", "sr"):
		return "senior"
	case containsAny(title, "lead"):
		return "lead"
	case containsAny(title, "manager", "head of"):
		return "manager"
	case strings.Contains(title, "director"):
		return "director"
	case containsAny(title, "vp", "vice president"):
		return "vp"
	case containsAny(title, "cto", "ceo", "cfo", "chief"):
		return "executive"
	}
	return "mid"
}

func containsAny(text string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

var salaryNumber = regexp.MustCompile(`(\d+(?:[,.]\d{3})*(?:k)?)`)

// ParseSalary extracts numeric bounds from free-form salary text like
// "$90,000 - $120,000" or "90k-120k USD". Returns nils when no numbers
// are present.
func ParseSalary(text string) (min, max *float64) {
	matches := salaryNumber.FindAllString(strings.ToLower(text), -1)
	var values []float64
	for _, m := range matches {
		mult := 1.0
		if strings.HasSuffix(m, "k") {
			mult = 1000
			m = strings.TrimSuffix(m, "k")
		}
		m = strings.ReplaceAll(m, ",", "")
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		v *= mult
		// Ignore stray small numbers like "401" in "401(k)" context.
		if v < 1000 {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return &lo, &hi
}
