package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableAcrossCosmeticVariance(t *testing.T) {
	t.Parallel()

	base := Fingerprint("Senior Go Engineer", "Acme Corp", "Berlin, Germany", "remotive")

	variants := []struct {
		title, company, location string
	}{
		{"senior go engineer", "acme corp", "berlin germany"},
		{"Senior  Go   Engineer", "Acme Corp.", "Berlin - Germany"},
		{"SENIOR GO ENGINEER!", "Acme, Corp", "Berlin,Germany"},
	}
	for _, v := range variants {
		require.Equal(t, base, Fingerprint(v.title, v.company, v.location, "remotive"))
	}
}

func TestFingerprint_DistinguishesSources(t *testing.T) {
	t.Parallel()

	a := Fingerprint("Go Engineer", "Acme", "Remote", "remotive")
	b := Fingerprint("Go Engineer", "Acme", "Remote", "arbeitnow")
	require.NotEqual(t, a, b)
}

func TestFingerprint_DistinguishesContent(t *testing.T) {
	t.Parallel()

	a := Fingerprint("Go Engineer", "Acme", "Remote", "remotive")
	b := Fingerprint("Go Engineer", "Initech", "Remote", "remotive")
	c := Fingerprint("Rust Engineer", "Acme", "Remote", "remotive")
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

func TestNormalizeField(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"  Hello,   World!  ": "hello world",
		"C++ Developer":       "c developer",
		"":                    "",
		"já-está":             "já está",
	}
	for in, want := range cases {
		require.Equal(t, want, normalizeField(in))
	}
}
