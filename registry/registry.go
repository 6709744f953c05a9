// Package registry implements the Endpoint Registry: a static, immutable
// mapping from datacenter id to data-plane S3 endpoint URL, grounded on
// original_source/core/client.py's DATACENTERS table (this module has no
// teacher equivalent — gostratum-storagex is a generic S3 client with no
// concept of a multi-datacenter registry).
package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Entry is one normalized (datacenter id, endpoint URL) pair.
type Entry struct {
	ID       string
	Endpoint string
}

// legacyRewrite maps deprecated datacenter ids to their current replacement.
// US-KS-1 was retired in favor of US-KS-2; the endpoint table below only
// ever lists the current id, matching original_source's DATACENTERS dict,
// which likewise carries no US-KS-1 entry.
var legacyRewrite = map[string]string{
	"US-KS-1": "US-KS-2",
}

// endpoints is the bit-stable four-datacenter table named in spec.md §6.
var endpoints = map[string]string{
	"EUR-IS-1": "https://s3api-eur-is-1.runpod.io/",
	"EU-RO-1":  "https://s3api-eu-ro-1.runpod.io/",
	"EU-CZ-1":  "https://s3api-eu-cz-1.runpod.io/",
	"US-KS-2":  "https://s3api-us-ks-2.runpod.io/",
}

// ErrUnknownDatacenter is returned by Normalize and EndpointFor when an id
// does not resolve to any known datacenter after normalization.
type ErrUnknownDatacenter struct {
	ID string
}

func (e *ErrUnknownDatacenter) Error() string {
	return fmt.Sprintf("registry: unknown datacenter %q", e.ID)
}

// Registry resolves datacenter ids to data-plane endpoints. The zero value
// is ready to use; Registry holds no mutable state and is safe for
// concurrent use after construction.
type Registry struct{}

// New returns the static Endpoint Registry. There is exactly one registry
// shape in this module (no configuration varies it), so New takes no
// arguments, matching spec.md §3's "Registry is immutable at process start".
func New() *Registry { return &Registry{} }

// Normalize uppercases and trims id and applies the legacy-identifier
// rewrite table, returning the canonical id or ErrUnknownDatacenter if the
// result does not name a known datacenter.
func (r *Registry) Normalize(id string) (string, error) {
	canonical := strings.ToUpper(strings.TrimSpace(id))
	if rewritten, ok := legacyRewrite[canonical]; ok {
		canonical = rewritten
	}
	if _, ok := endpoints[canonical]; !ok {
		return "", &ErrUnknownDatacenter{ID: id}
	}
	return canonical, nil
}

// EndpointFor returns the data-plane endpoint URL for canonicalID, which
// must already be normalized (callers almost always want Normalize first;
// EndpointFor does not itself apply the legacy rewrite table so that
// mistakenly passing a raw user id fails loudly instead of silently
// succeeding on a coincidentally-valid id).
func (r *Registry) EndpointFor(canonicalID string) (string, error) {
	endpoint, ok := endpoints[canonicalID]
	if !ok {
		return "", &ErrUnknownDatacenter{ID: canonicalID}
	}
	return endpoint, nil
}

// Resolve normalizes id and resolves it to an endpoint in one call, the
// shape most call sites actually want.
func (r *Registry) Resolve(id string) (Entry, error) {
	canonical, err := r.Normalize(id)
	if err != nil {
		return Entry{}, err
	}
	endpoint, err := r.EndpointFor(canonical)
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: canonical, Endpoint: endpoint}, nil
}

// All returns every known (canonical-id, endpoint) pair in stable,
// alphabetical order, for UI listing (original_source's
// get_available_datacenters()).
func (r *Registry) All() []Entry {
	entries := make([]Entry, 0, len(endpoints))
	for id, endpoint := range endpoints {
		entries = append(entries, Entry{ID: id, Endpoint: endpoint})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}
