package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"github.com/runpod/netvolstore"
	"github.com/runpod/netvolstore/registry"
)

const (
	primaryVolumesPath  = "/networkvolumes"
	fallbackVolumesPath = "/network-volumes"
)

// Client is a REST client for the network-volume management plane. A Client
// is safe for concurrent use; it holds only read-only configuration and an
// *http.Client, which is itself safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	registry   *registry.Registry
	logger     netvolstore.Logger
	instr      *netvolstore.Instrumenter
	maxRetries int
	validate   *validator.Validate
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithLogger sets the Client's logger.
func WithLogger(l netvolstore.Logger) Option { return func(c *Client) { c.logger = l } }

// WithInstrumenter sets the Client's metrics/tracing instrumenter.
func WithInstrumenter(i *netvolstore.Instrumenter) Option { return func(c *Client) { c.instr = i } }

// WithHTTPClient overrides the underlying *http.Client, primarily for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// New constructs a Volume Catalog Client from cfg, resolving datacenter ids
// via reg.
func New(cfg *netvolstore.Config, reg *registry.Registry, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.ManagementBaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		registry:   reg,
		logger:     netvolstore.NewNopLogger(),
		maxRetries: cfg.MaxRetries,
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every network volume visible to the caller's API key.
func (c *Client) List(ctx context.Context) ([]Volume, error) {
	var volumes []Volume
	err := c.traced(ctx, "ListVolumes", "", func(ctx context.Context) error {
		body, err := c.getWithFallback(ctx, primaryVolumesPath, fallbackVolumesPath)
		if err != nil {
			return err
		}
		var resp struct {
			Volumes []Volume `json:"volumes"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			// Some deployments return a bare array rather than an envelope.
			if err2 := json.Unmarshal(body, &volumes); err2 == nil {
				return nil
			}
			return netvolstore.NewError(netvolstore.KindProtocolMismatch, "ListVolumes", err)
		}
		volumes = resp.Volumes
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.instr != nil {
		c.instr.RecordListOperation(len(volumes), false)
	}
	return volumes, err
}

// Get returns a single volume by id, or ErrVolumeNotFound on a 404.
func (c *Client) Get(ctx context.Context, volumeID string) (*Volume, error) {
	var vol Volume
	err := c.traced(ctx, "GetVolume", volumeID, func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodGet, primaryVolumesPath+"/"+volumeID, nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &vol)
	})
	if err != nil {
		return nil, err
	}
	return &vol, nil
}

// Create validates req client-side, resolves its datacenter id through the
// registry, and issues the creation request.
func (c *Client) Create(ctx context.Context, req CreateVolumeRequest) (*Volume, error) {
	if err := c.validateCreate(req); err != nil {
		return nil, err
	}
	canonicalDC, err := c.registry.Normalize(req.DataCenterID)
	if err != nil {
		return nil, netvolstore.NewError(netvolstore.KindValidationFailed, "CreateVolume", err)
	}
	req.DataCenterID = canonicalDC

	var vol Volume
	err = c.traced(ctx, "CreateVolume", "", func(ctx context.Context) error {
		payload, err := json.Marshal(req)
		if err != nil {
			return netvolstore.NewError(netvolstore.KindValidationFailed, "CreateVolume", err)
		}
		body, err := c.do(ctx, http.MethodPost, primaryVolumesPath, payload)
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &vol)
	})
	if err != nil {
		return nil, err
	}
	return &vol, nil
}

// Update patches name and/or size. At least one of req.Name, req.Size must
// be set.
func (c *Client) Update(ctx context.Context, volumeID string, req UpdateVolumeRequest) (*Volume, error) {
	if req.Name == nil && req.Size == nil {
		return nil, netvolstore.NewError(netvolstore.KindValidationFailed, "UpdateVolume",
			fmt.Errorf("at least one of name or size must be set")).WithVolume(volumeID)
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, netvolstore.NewError(netvolstore.KindValidationFailed, "UpdateVolume", err).WithVolume(volumeID)
	}

	var vol Volume
	err := c.traced(ctx, "UpdateVolume", volumeID, func(ctx context.Context) error {
		payload, err := json.Marshal(req)
		if err != nil {
			return netvolstore.NewError(netvolstore.KindValidationFailed, "UpdateVolume", err)
		}
		body, err := c.do(ctx, http.MethodPatch, primaryVolumesPath+"/"+volumeID, payload)
		if err != nil {
			if se, ok := err.(*netvolstore.StorageError); ok && se.StatusCode >= 400 && se.StatusCode < 500 &&
				strings.Contains(strings.ToLower(se.Error()), "shrink") {
				return netvolstore.NewError(netvolstore.KindValidationFailed, "UpdateVolume", err).WithVolume(volumeID)
			}
			return err
		}
		return json.Unmarshal(body, &vol)
	})
	if err != nil {
		return nil, err
	}
	return &vol, nil
}

// Delete deletes a volume. A 404 is reported as (false, nil), matching
// original_source's delete_network_volume; any other error propagates.
func (c *Client) Delete(ctx context.Context, volumeID string) (bool, error) {
	deleted := true
	err := c.traced(ctx, "DeleteVolume", volumeID, func(ctx context.Context) error {
		_, err := c.do(ctx, http.MethodDelete, primaryVolumesPath+"/"+volumeID, nil)
		if err != nil {
			kind, ok := netvolstore.KindOf(err)
			if ok && kind == netvolstore.KindVolumeNotFound {
				deleted = false
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (c *Client) validateCreate(req CreateVolumeRequest) error {
	if err := c.validate.Struct(req); err != nil {
		return netvolstore.NewError(netvolstore.KindValidationFailed, "CreateVolume", err)
	}
	for _, r := range req.Name {
		if !strings.ContainsRune(nameCharset, r) {
			return netvolstore.NewError(netvolstore.KindValidationFailed, "CreateVolume",
				fmt.Errorf("name %q contains characters outside [A-Za-z0-9_-]", req.Name))
		}
	}
	return nil
}

// getWithFallback issues a GET against primary, retrying against fallback
// once if primary returns 404 (spec.md §4.2/§6: "Fallback path variant
// /network-volumes for GET when the primary returns 404").
func (c *Client) getWithFallback(ctx context.Context, primary, fallback string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, primary, nil)
	if err == nil {
		return body, nil
	}
	if kind, ok := netvolstore.KindOf(err); ok && kind == netvolstore.KindVolumeNotFound {
		return c.do(ctx, http.MethodGet, fallback, nil)
	}
	return nil, err
}

// do issues one HTTP request against the management plane with bearer
// auth, retrying 5xx responses with exponential backoff up to maxRetries,
// and classifying the outcome per spec.md §6/§7.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte

	operation := func() error {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return backoff.Permanent(netvolstore.NewError(netvolstore.KindValidationFailed, method+" "+path, err))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(netvolstore.NewError(netvolstore.KindCancelled, method+" "+path, err))
			}
			return netvolstore.NewError(netvolstore.KindTransientNetwork, method+" "+path, err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			result = respBody
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			return backoff.Permanent(netvolstore.NewError(netvolstore.KindAuthenticationFailed, method+" "+path,
				fmt.Errorf("rejected: %s", respBody)).WithStatus(resp.StatusCode))
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(netvolstore.NewError(netvolstore.KindVolumeNotFound, method+" "+path,
				fmt.Errorf("not found")).WithStatus(resp.StatusCode))
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(netvolstore.NewError(netvolstore.KindValidationFailed, method+" "+path,
				fmt.Errorf("%s", respBody)).WithStatus(resp.StatusCode))
		default:
			c.logger.Warn("management plane returned server error, retrying", "path", path, "status", resp.StatusCode)
			return netvolstore.NewError(netvolstore.KindTransientNetwork, method+" "+path,
				fmt.Errorf("%s", respBody)).WithStatus(resp.StatusCode)
		}
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries))
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) traced(ctx context.Context, op, key string, fn func(context.Context) error) error {
	if c.instr == nil {
		return fn(ctx)
	}
	return c.instr.TraceOperation(ctx, op, key, fn)
}
