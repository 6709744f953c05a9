package objectstore_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runpod/netvolstore"
	"github.com/runpod/netvolstore/internal/testutil"
	"github.com/runpod/netvolstore/objectstore"
)

func newTestClient(t *testing.T, fake *testutil.FakeS3) *objectstore.Client {
	t.Helper()
	cfg := &netvolstore.Config{
		S3AccessKey:    "fake-access-key",
		S3SecretKey:    "fake-secret-key",
		RequestTimeout: 10 * time.Second,
		MaxRetries:     3,
	}
	factory := objectstore.NewFactory(cfg)
	client, err := factory.ForDatacenter(context.Background(), "TEST-DC-1", fake.Endpoint())
	require.NoError(t, err)
	return client
}

func TestClientPutGetHeadDelete(t *testing.T) {
	fake := testutil.NewFakeS3()
	defer fake.Close()
	require.NoError(t, fake.CreateBucket("test-volume"))

	client := newTestClient(t, fake)
	ctx := context.Background()

	body := []byte("hello network volume")
	etag, err := client.PutObject(ctx, "test-volume", "greeting.txt", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	size, headETag, err := client.HeadObject(ctx, "test-volume", "greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), size)
	assert.Equal(t, etag, headETag)

	var buf bytes.Buffer
	n, err := client.GetObject(ctx, "test-volume", "greeting.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, body, buf.Bytes())

	require.NoError(t, client.DeleteObject(ctx, "test-volume", "greeting.txt"))

	_, _, err = client.HeadObject(ctx, "test-volume", "greeting.txt")
	require.Error(t, err)
	kind, ok := netvolstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, netvolstore.KindObjectNotFound, kind)
}

func TestClientListObjects(t *testing.T) {
	fake := testutil.NewFakeS3()
	defer fake.Close()
	require.NoError(t, fake.CreateBucket("test-volume"))

	client := newTestClient(t, fake)
	ctx := context.Background()

	for _, key := range []string{"dir/a.txt", "dir/b.txt", "other/c.txt"} {
		_, err := client.PutObject(ctx, "test-volume", key, bytes.NewReader([]byte("x")), 1)
		require.NoError(t, err)
	}

	objs, err := client.ListObjects(ctx, "test-volume", "dir/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	keys := []string{objs[0].Key, objs[1].Key}
	assert.ElementsMatch(t, []string{"dir/a.txt", "dir/b.txt"}, keys)
}

func TestClientMultipartRoundTrip(t *testing.T) {
	fake := testutil.NewFakeS3()
	defer fake.Close()
	require.NoError(t, fake.CreateBucket("test-volume"))

	client := newTestClient(t, fake)
	ctx := context.Background()

	uploadID, err := client.CreateMultipart(ctx, "test-volume", "big.bin", "token-1")
	require.NoError(t, err)
	require.NotEmpty(t, uploadID)

	// S3 requires every part but the last to be at least 5 MiB.
	partSize := 5 * 1024 * 1024
	part1 := bytes.Repeat([]byte{'a'}, partSize)
	part2 := []byte("trailing bytes")

	etag1, err := client.UploadPart(ctx, "test-volume", "big.bin", uploadID, 1, bytes.NewReader(part1), int64(len(part1)))
	require.NoError(t, err)
	etag2, err := client.UploadPart(ctx, "test-volume", "big.bin", uploadID, 2, bytes.NewReader(part2), int64(len(part2)))
	require.NoError(t, err)

	parts, err := client.ListParts(ctx, "test-volume", "big.bin", uploadID)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	_, err = client.CompleteMultipart(ctx, "test-volume", "big.bin", uploadID, []objectstore.CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	require.NoError(t, err)

	size, _, err := client.HeadObject(ctx, "test-volume", "big.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(part1)+len(part2)), size)
}

func TestClientListAndAbortMultipartUploads(t *testing.T) {
	fake := testutil.NewFakeS3()
	defer fake.Close()
	require.NoError(t, fake.CreateBucket("test-volume"))

	client := newTestClient(t, fake)
	ctx := context.Background()

	uploadID, err := client.CreateMultipart(ctx, "test-volume", "abandoned.bin", "token-2")
	require.NoError(t, err)

	uploads, err := client.ListMultipartUploads(ctx, "test-volume")
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "abandoned.bin", uploads[0].Key)
	assert.Equal(t, uploadID, uploads[0].UploadID)

	require.NoError(t, client.AbortMultipart(ctx, "test-volume", "abandoned.bin", uploadID))

	// Aborting twice is idempotent: NoSuchUpload is swallowed, not surfaced.
	require.NoError(t, client.AbortMultipart(ctx, "test-volume", "abandoned.bin", uploadID))

	uploads, err = client.ListMultipartUploads(ctx, "test-volume")
	require.NoError(t, err)
	assert.Empty(t, uploads)
}
