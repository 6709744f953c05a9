package netvolstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runpod/netvolstore"
	"github.com/runpod/netvolstore/catalog"
)

// TestConvenienceListAndCreateVolume exercises the bare package functions
// against a management-plane stub. Unlike the Façade upload/download tests,
// this does not touch the Object Store Client: each convenience call builds
// its own throwaway Facade with its own fresh objectstore.Factory, so there
// is no way to pre-warm its per-datacenter cache from outside as
// newTestFacade does for *Facade directly, and these functions don't need
// to: List/Create/Delete never call storeFor.
func TestConvenienceListAndCreateVolume(t *testing.T) {
	var created catalog.Volume
	mgmt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/networkvolumes":
			json.NewEncoder(w).Encode([]catalog.Volume{{ID: "vol-1", Name: "demo", Size: 10, DataCenterID: "EU-RO-1"}})
		case r.Method == http.MethodPost && r.URL.Path == "/networkvolumes":
			created = catalog.Volume{ID: "vol-2", Name: "created", Size: 20, DataCenterID: "EU-RO-1"}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(created)
		case r.Method == http.MethodDelete && r.URL.Path == "/networkvolumes/vol-2":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer mgmt.Close()

	cfg := &netvolstore.Config{
		APIKey:            "test-key",
		S3AccessKey:       "fake-access-key",
		S3SecretKey:       "fake-secret-key",
		ManagementBaseURL: mgmt.URL,
		RequestTimeout:    5 * time.Second,
		MaxRetries:        2,
	}
	ctx := context.Background()

	vols, err := netvolstore.ListVolumes(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, vols, 1)
	assert.Equal(t, "vol-1", vols[0].ID)

	vol, err := netvolstore.CreateVolume(ctx, cfg, "created", 20, "EU-RO-1")
	require.NoError(t, err)
	assert.Equal(t, "vol-2", vol.ID)

	ok, err := netvolstore.DeleteVolume(ctx, cfg, "vol-2")
	require.NoError(t, err)
	assert.True(t, ok)
}
