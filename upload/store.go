package upload

import (
	"context"
	"io"

	"github.com/runpod/netvolstore/objectstore"
)

// Store is the subset of *objectstore.Client's surface the Multipart Upload
// Engine depends on. Narrowing it to an interface lets tests substitute a
// fault-injecting double (internal/testutil.FakeStore) for the real
// S3-backed Client, so 507/524/truncation/incompatible-resume conditions can
// be simulated without a wire-level fake server.
type Store interface {
	PutObject(ctx context.Context, bucket, key string, r io.ReadSeeker, length int64) (string, error)
	HeadObject(ctx context.Context, bucket, key string) (size int64, etag string, err error)
	CreateMultipart(ctx context.Context, bucket, key, idempotencyToken string) (uploadID string, err error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (etag string, err error)
	ListParts(ctx context.Context, bucket, key, uploadID string) ([]objectstore.PartInfo, error)
	CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []objectstore.CompletedPart) (etag string, err error)
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error
	ListMultipartUploads(ctx context.Context, bucket string) ([]objectstore.MultipartUploadInfo, error)
}
