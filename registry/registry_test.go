package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	r := New()

	canonical, err := r.Normalize("eu-ro-1")
	require.NoError(t, err)
	assert.Equal(t, "EU-RO-1", canonical)

	canonical, err = r.Normalize("US-KS-1")
	require.NoError(t, err)
	assert.Equal(t, "US-KS-2", canonical)

	canonical, err = r.Normalize("  eur-is-1  ")
	require.NoError(t, err)
	assert.Equal(t, "EUR-IS-1", canonical)

	_, err = r.Normalize("nowhere")
	require.Error(t, err)
	var unknown *ErrUnknownDatacenter
	assert.ErrorAs(t, err, &unknown)
}

func TestResolve(t *testing.T) {
	r := New()

	entry, err := r.Resolve("us-ks-1")
	require.NoError(t, err)
	assert.Equal(t, "US-KS-2", entry.ID)
	assert.Contains(t, entry.Endpoint, "us-ks-2")

	_, err = r.Resolve("unknown-dc")
	assert.Error(t, err)
}

func TestAll(t *testing.T) {
	r := New()
	entries := r.All()
	require.Len(t, entries, 4)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"EU-CZ-1", "EU-RO-1", "EUR-IS-1", "US-KS-2"}, ids)

	for _, e := range entries {
		_, err := r.EndpointFor(e.ID)
		assert.NoError(t, err)
	}
}
