package netvolstore

import (
	"context"

	"github.com/runpod/netvolstore/catalog"
	"github.com/runpod/netvolstore/objectstore"
	"github.com/runpod/netvolstore/registry"
)

// newAdHocFacade builds a short-lived Facade directly from cfg, bypassing
// Module()'s fx graph. Grounded on original_source/core/api.py's
// module-level convenience functions (list_volumes, create_volume,
// upload_file, download_file), each of which constructs a throwaway
// RunpodStorageAPI instance rather than requiring the caller to wire one up
// (spec_full.md §1.3's "Façade convenience layer" supplement).
func newAdHocFacade(cfg *Config) *Facade {
	reg := registry.New()
	cat := catalog.New(cfg, reg)
	objects := objectstore.NewFactory(cfg)
	return NewFacade(cfg, cat, reg, objects, NewNopLogger(), nil)
}

// ListVolumes is a quick function for scripting use: list every volume
// visible to cfg's API key without standing up an fx graph.
func ListVolumes(ctx context.Context, cfg *Config) ([]catalog.Volume, error) {
	return newAdHocFacade(cfg).ListVolumes(ctx)
}

// CreateVolume is a quick function for scripting use, mirroring
// original_source's create_volume(name, size, datacenter_id, api_key).
func CreateVolume(ctx context.Context, cfg *Config, name string, sizeGiB int, datacenterID string) (*catalog.Volume, error) {
	return newAdHocFacade(cfg).CreateVolume(ctx, name, sizeGiB, datacenterID)
}

// DeleteVolume is a quick function for scripting use.
func DeleteVolume(ctx context.Context, cfg *Config, volumeID string) (bool, error) {
	return newAdHocFacade(cfg).DeleteVolume(ctx, volumeID)
}

// UploadFile is a quick function for scripting use, mirroring
// original_source's upload_file(local_path, volume_id, remote_path,
// api_key, s3_access_key, s3_secret_key).
func UploadFile(ctx context.Context, cfg *Config, localPath, volumeID, key string, opts ...UploadFileOptions) (*TransferSummary, error) {
	return newAdHocFacade(cfg).UploadFile(ctx, localPath, volumeID, key, opts...)
}

// DownloadFile is a quick function for scripting use, mirroring
// original_source's download_file(volume_id, remote_path, local_path,
// api_key, s3_access_key, s3_secret_key).
func DownloadFile(ctx context.Context, cfg *Config, volumeID, key, localPath string) (*TransferSummary, error) {
	return newAdHocFacade(cfg).DownloadFile(ctx, volumeID, key, localPath)
}
