package netvolstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/runpod/netvolstore/catalog"
	"github.com/runpod/netvolstore/objectstore"
	"github.com/runpod/netvolstore/registry"
	"github.com/runpod/netvolstore/syncdir"
	"github.com/runpod/netvolstore/upload"
)

// Facade ties the Volume Catalog Client, Endpoint Registry, Object Store
// Client factory, Multipart Upload Engine and Directory Sync Coordinator
// behind a single object, grounded on original_source/core/api.py's
// RunpodStorageAPI: a volume's datacenter is resolved once, and the
// per-datacenter Object Store Client built for it is cached for the life of
// the Facade (api.py's `self.s3_clients = {}`).
type Facade struct {
	cfg      *Config
	catalog  *catalog.Client
	registry *registry.Registry
	objects  *objectstore.Factory
	logger   Logger
	instr    *Instrumenter
}

// NewFacade wires a Facade from its already-constructed dependencies. Most
// callers get a *Facade through Module() instead of calling this directly.
func NewFacade(cfg *Config, cat *catalog.Client, reg *registry.Registry, objects *objectstore.Factory, logger Logger, instr *Instrumenter) *Facade {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Facade{cfg: cfg, catalog: cat, registry: reg, objects: objects, logger: logger, instr: instr}
}

// ListVolumes returns every network volume visible to the caller's API key.
func (f *Facade) ListVolumes(ctx context.Context) ([]catalog.Volume, error) {
	return f.catalog.List(ctx)
}

// GetVolume returns one volume by id.
func (f *Facade) GetVolume(ctx context.Context, volumeID string) (*catalog.Volume, error) {
	return f.catalog.Get(ctx, volumeID)
}

// CreateVolume creates a new network volume.
func (f *Facade) CreateVolume(ctx context.Context, name string, sizeGiB int, datacenterID string) (*catalog.Volume, error) {
	return f.catalog.Create(ctx, catalog.CreateVolumeRequest{Name: name, Size: sizeGiB, DataCenterID: datacenterID})
}

// DeleteVolume deletes a volume, returning false if it did not exist.
func (f *Facade) DeleteVolume(ctx context.Context, volumeID string) (bool, error) {
	return f.catalog.Delete(ctx, volumeID)
}

// VolumeExists reports whether volumeID names an existing volume,
// swallowing VolumeNotFound into (false, nil) the way original_source's
// volume_exists try/except does; any other error still propagates.
func (f *Facade) VolumeExists(ctx context.Context, volumeID string) (bool, error) {
	_, err := f.catalog.Get(ctx, volumeID)
	if err == nil {
		return true, nil
	}
	if kind, ok := KindOf(err); ok && kind == KindVolumeNotFound {
		return false, nil
	}
	return false, err
}

// FileExists reports whether key exists in volumeID, swallowing
// ObjectNotFound into (false, nil).
func (f *Facade) FileExists(ctx context.Context, volumeID, key string) (bool, error) {
	_, err := f.HeadFile(ctx, volumeID, key)
	if err == nil {
		return true, nil
	}
	if kind, ok := KindOf(err); ok && kind == KindObjectNotFound {
		return false, nil
	}
	return false, err
}

// FileInfo is the result of HeadFile.
type FileInfo struct {
	Size int64
	ETag string
}

// HeadFile returns size/etag metadata for key without its payload.
func (f *Facade) HeadFile(ctx context.Context, volumeID, key string) (*FileInfo, error) {
	store, _, err := f.storeFor(ctx, volumeID)
	if err != nil {
		return nil, err
	}
	size, etag, err := store.HeadObject(ctx, volumeID, key)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Size: size, ETag: etag}, nil
}

// ListFiles returns every object under prefix in volumeID.
func (f *Facade) ListFiles(ctx context.Context, volumeID, prefix string) ([]objectstore.ObjectInfo, error) {
	store, _, err := f.storeFor(ctx, volumeID)
	if err != nil {
		return nil, err
	}
	return store.ListObjects(ctx, volumeID, prefix)
}

// DeleteFile removes key from volumeID.
func (f *Facade) DeleteFile(ctx context.Context, volumeID, key string) error {
	store, _, err := f.storeFor(ctx, volumeID)
	if err != nil {
		return err
	}
	return store.DeleteObject(ctx, volumeID, key)
}

// TransferSummary reports the outcome of UploadFile/DownloadFile, grounded
// on original_source/core/api.py's UploadResponse/DownloadResponse
// (spec_full.md §1.3's "Upload/download speed reporting" supplement):
// AverageMBps is BytesUploaded averaged over Elapsed, the Go equivalent of
// the original's human_mb_per_s helper.
type TransferSummary struct {
	VolumeID      string
	Key           string
	BytesUploaded int64
	UploadID      string // non-empty when the multipart engine was used
	Resumed       bool
	Elapsed       time.Duration
	AverageMBps   float64
}

func newTransferSummary(volumeID, key string, bytesTransferred int64, uploadID string, resumed bool, elapsed time.Duration) *TransferSummary {
	var mbps float64
	if secs := elapsed.Seconds(); secs > 0 {
		mbps = (float64(bytesTransferred) / (1 << 20)) / secs
	}
	return &TransferSummary{
		VolumeID: volumeID, Key: key,
		BytesUploaded: bytesTransferred, UploadID: uploadID, Resumed: resumed,
		Elapsed: elapsed, AverageMBps: mbps,
	}
}

// UploadFileOptions parameterizes UploadFile, mirroring spec.md §6's
// consumer-facing "uploadFile(local, volume, key, part-size?,
// enable-resume?, progress-cb?)" surface. The zero value uses cfg's
// defaults (adaptive part size, cfg.EnableResume, no progress callback).
type UploadFileOptions struct {
	PartSize     int64 // 0 = adaptive (spec.md §4.4.1)
	EnableResume *bool // nil = use cfg.EnableResume
	OnProgress   upload.ProgressFunc
}

// UploadFile resolves volumeID's datacenter, dispatching to a direct
// single-shot PutObject for small files and to the Multipart Upload Engine
// otherwise (spec.md §2's "Data flow for an upload").
func (f *Facade) UploadFile(ctx context.Context, localPath, volumeID, key string, opts ...UploadFileOptions) (*TransferSummary, error) {
	store, _, err := f.storeFor(ctx, volumeID)
	if err != nil {
		return nil, err
	}

	engineOpts := []upload.Option{upload.WithLogger(f.logger), upload.WithInstrumenter(f.instr)}
	for _, o := range opts {
		if o.PartSize > 0 {
			engineOpts = append(engineOpts, upload.WithPartSize(o.PartSize))
		}
		if o.EnableResume != nil {
			engineOpts = append(engineOpts, upload.WithResume(*o.EnableResume))
		}
		if o.OnProgress != nil {
			engineOpts = append(engineOpts, upload.WithProgress(o.OnProgress))
		}
	}

	engine := upload.NewEngine(store, f.cfg, engineOpts...)
	result, err := engine.Upload(ctx, localPath, volumeID, key)
	if err != nil {
		return nil, err
	}
	return newTransferSummary(volumeID, key, result.BytesUploaded, result.UploadID, result.Resumed, result.Duration), nil
}

// CleanupAbandonedUploads aborts every multipart session on volumeID older
// than maxAge (spec.md §4.4.5/§6's cleanupAbandonedUploads(volume, max-age)).
func (f *Facade) CleanupAbandonedUploads(ctx context.Context, volumeID string, maxAge time.Duration) (*upload.CleanupResult, error) {
	store, _, err := f.storeFor(ctx, volumeID)
	if err != nil {
		return nil, err
	}
	engine := upload.NewEngine(store, f.cfg, upload.WithLogger(f.logger), upload.WithInstrumenter(f.instr))
	return engine.CleanupAbandoned(ctx, volumeID, maxAge)
}

// DownloadFile streams volumeID/key's contents into a local file at
// localPath, creating missing parent directories.
func (f *Facade) DownloadFile(ctx context.Context, volumeID, key, localPath string) (*TransferSummary, error) {
	start := time.Now()
	store, _, err := f.storeFor(ctx, volumeID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, NewError(KindValidationFailed, "DownloadFile", err).WithKey(key).WithVolume(volumeID)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return nil, NewError(KindValidationFailed, "DownloadFile", err).WithKey(key).WithVolume(volumeID)
	}
	defer file.Close()

	n, err := store.GetObject(ctx, volumeID, key, file)
	if err != nil {
		return nil, err
	}
	return newTransferSummary(volumeID, key, n, "", false, time.Since(start)), nil
}

// UploadDirectory uploads a local directory tree into volumeID under
// remotePrefix, via the Directory Sync Coordinator.
func (f *Facade) UploadDirectory(ctx context.Context, localDir, volumeID, remotePrefix string, excludeGlobs []string, deleteOrphans bool) (*syncdir.Summary, error) {
	coord, err := f.coordinatorFor(ctx, volumeID)
	if err != nil {
		return nil, err
	}
	return coord.UploadDirectory(ctx, syncdir.UploadDirectoryOptions{
		LocalDir: localDir, Bucket: volumeID, RemotePrefix: remotePrefix,
		ExcludeGlobs: excludeGlobs, DeleteOrphans: deleteOrphans,
	})
}

// DownloadDirectory downloads volumeID's objects under remotePrefix into
// localDir, via the Directory Sync Coordinator.
func (f *Facade) DownloadDirectory(ctx context.Context, volumeID, remotePrefix, localDir string, excludeGlobs []string, deleteOrphans bool) (*syncdir.Summary, error) {
	coord, err := f.coordinatorFor(ctx, volumeID)
	if err != nil {
		return nil, err
	}
	return coord.DownloadDirectory(ctx, syncdir.DownloadDirectoryOptions{
		Bucket: volumeID, RemotePrefix: remotePrefix, LocalDir: localDir,
		ExcludeGlobs: excludeGlobs, DeleteOrphans: deleteOrphans,
	})
}

// GetAvailableDatacenters returns every known datacenter in the registry, the
// Go equivalent of original_source's get_available_datacenters classmethod.
func (f *Facade) GetAvailableDatacenters() []registry.Entry {
	return f.registry.All()
}

type resolvedEndpoint struct {
	canonicalDC string
	url         string
}

// storeFor resolves volumeID's datacenter via the Volume Catalog, then
// returns the cached (or newly built) Object Store Client for that
// datacenter.
func (f *Facade) storeFor(ctx context.Context, volumeID string) (*objectstore.Client, resolvedEndpoint, error) {
	vol, err := f.catalog.Get(ctx, volumeID)
	if err != nil {
		return nil, resolvedEndpoint{}, err
	}
	entry, err := f.registry.Resolve(vol.DataCenterID)
	if err != nil {
		return nil, resolvedEndpoint{}, NewError(KindValidationFailed, "ResolveVolumeEndpoint", err).WithVolume(volumeID)
	}
	store, err := f.objects.ForDatacenter(ctx, entry.ID, entry.Endpoint)
	if err != nil {
		return nil, resolvedEndpoint{}, err
	}
	return store, resolvedEndpoint{canonicalDC: entry.ID, url: entry.Endpoint}, nil
}

func (f *Facade) coordinatorFor(ctx context.Context, volumeID string) (*syncdir.Coordinator, error) {
	store, _, err := f.storeFor(ctx, volumeID)
	if err != nil {
		return nil, err
	}
	engine := upload.NewEngine(store, f.cfg, upload.WithLogger(f.logger), upload.WithInstrumenter(f.instr))
	return syncdir.NewCoordinator(engine, store, f.cfg, syncdir.WithLogger(f.logger), syncdir.WithInstrumenter(f.instr)), nil
}
