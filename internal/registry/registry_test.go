package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

func testDescriptors() []discovery.SourceDescriptor {
	return []discovery.SourceDescriptor{
		{ID: "alpha", Name: "Alpha", Type: discovery.SourceTypeAPI},
		{ID: "beta", Name: "Beta", Type: discovery.SourceTypeBrowser},
	}
}

func TestNew_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := New([]discovery.SourceDescriptor{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)
}

func TestNew_RejectsMissingID(t *testing.T) {
	t.Parallel()

	_, err := New([]discovery.SourceDescriptor{{Name: "nameless"}})
	require.Error(t, err)
}

func TestResolve_EmptyMeansAll(t *testing.T) {
	t.Parallel()

	r, err := New(testDescriptors())
	require.NoError(t, err)

	all, err := r.Resolve(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "alpha", all[0].ID)
	require.Equal(t, "beta", all[1].ID)
}

func TestResolve_UnknownIDFails(t *testing.T) {
	t.Parallel()

	r, err := New(testDescriptors())
	require.NoError(t, err)

	_, err = r.Resolve([]string{"alpha", "gamma"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "gamma")

	var unknown *UnknownSourceError
	require.ErrorAs(t, fmt.Errorf("resolve sources: %w", err), &unknown)
	require.Equal(t, "gamma", unknown.ID)
}

func TestResolve_PreservesRequestOrder(t *testing.T) {
	t.Parallel()

	r, err := New(testDescriptors())
	require.NoError(t, err)

	got, err := r.Resolve([]string{"beta", "alpha"})
	require.NoError(t, err)
	require.Equal(t, "beta", got[0].ID)
	require.Equal(t, "alpha", got[1].ID)
}

func TestDefault_CatalogIsWellFormed(t *testing.T) {
	t.Parallel()

	r, err := New(Default())
	require.NoError(t, err)
	for _, d := range r.All() {
		require.NotEmpty(t, d.Name)
		require.Positive(t, d.ResultCap)
		require.Positive(t, d.Rate.MaxPerMinute)
	}
}
