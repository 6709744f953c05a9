package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runpod/netvolstore"
	"github.com/runpod/netvolstore/catalog"
	"github.com/runpod/netvolstore/registry"
)

func newTestClient(t *testing.T, srv *httptest.Server) *catalog.Client {
	t.Helper()
	cfg := &netvolstore.Config{
		APIKey:            "test-key",
		ManagementBaseURL: srv.URL,
		RequestTimeout:    5 * time.Second,
		MaxRetries:        2,
	}
	return catalog.New(cfg, registry.New())
}

// TestCreateGetDeleteRoundTrip exercises spec.md §8 scenario S1: create a
// volume, get it back, delete it, then confirm a subsequent get reports
// VolumeNotFound.
func TestCreateGetDeleteRoundTrip(t *testing.T) {
	volumes := map[string]catalog.Volume{}

	mux := http.NewServeMux()
	mux.HandleFunc("/networkvolumes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req catalog.CreateVolumeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			vol := catalog.Volume{ID: "vol-1", Name: req.Name, Size: req.Size, DataCenterID: req.DataCenterID}
			volumes[vol.ID] = vol
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(vol)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/networkvolumes/vol-1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			vol, ok := volumes["vol-1"]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(vol)
		case http.MethodDelete:
			if _, ok := volumes["vol-1"]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(volumes, "vol-1")
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv)
	ctx := t.Context()

	vol, err := client.Create(ctx, catalog.CreateVolumeRequest{Name: "demo", Size: 10, DataCenterID: "EU-RO-1"})
	require.NoError(t, err)
	assert.Equal(t, "demo", vol.Name)
	assert.Equal(t, 10, vol.Size)
	assert.Equal(t, "EU-RO-1", vol.DataCenterID)

	got, err := client.Get(ctx, "vol-1")
	require.NoError(t, err)
	assert.Equal(t, vol.ID, got.ID)

	deleted, err := client.Delete(ctx, "vol-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = client.Get(ctx, "vol-1")
	require.Error(t, err)
	kind, ok := netvolstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, netvolstore.KindVolumeNotFound, kind)

	deletedAgain, err := client.Delete(ctx, "vol-1")
	require.NoError(t, err)
	assert.False(t, deletedAgain)
}

func TestCreateValidatesClientSide(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	ctx := t.Context()

	_, err := client.Create(ctx, catalog.CreateVolumeRequest{Name: "bad name!", Size: 10, DataCenterID: "EU-RO-1"})
	require.Error(t, err)
	kind, ok := netvolstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, netvolstore.KindValidationFailed, kind)

	_, err = client.Create(ctx, catalog.CreateVolumeRequest{Name: "toosmall", Size: 1, DataCenterID: "EU-RO-1"})
	require.Error(t, err)

	_, err = client.Create(ctx, catalog.CreateVolumeRequest{Name: "nowhere", Size: 10, DataCenterID: "nowhere"})
	require.Error(t, err)

	assert.False(t, called, "no network call should happen when client-side validation fails")
}

// TestListFallsBackOnPrimaryNotFound exercises spec.md §4.2/§6's
// GET-only /network-volumes fallback when the primary path 404s.
func TestListFallsBackOnPrimaryNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/networkvolumes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/network-volumes", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"volumes": []catalog.Volume{{ID: "vol-2", Name: "fallback", Size: 20, DataCenterID: "US-KS-2"}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv)
	volumes, err := client.List(t.Context())
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	assert.Equal(t, "vol-2", volumes[0].ID)
}

func TestUpdateRequiresAtLeastOneField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no network call expected")
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.Update(t.Context(), "vol-1", catalog.UpdateVolumeRequest{})
	require.Error(t, err)
	kind, ok := netvolstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, netvolstore.KindValidationFailed, kind)
}

func TestUpdateSurfacesShrinkAsInvalidSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("size may not shrink below current allocation"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	newSize := 20
	_, err := client.Update(t.Context(), "vol-1", catalog.UpdateVolumeRequest{Size: &newSize})
	require.Error(t, err)
	kind, ok := netvolstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, netvolstore.KindValidationFailed, kind)
}

func TestAuthenticationFailureNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.Get(t.Context(), "vol-1")
	require.Error(t, err)
	kind, ok := netvolstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, netvolstore.KindAuthenticationFailed, kind)
	assert.Equal(t, 1, attempts, "401 must not be retried")
}
