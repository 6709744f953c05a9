package syncdir_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runpod/netvolstore"
	"github.com/runpod/netvolstore/internal/testutil"
	"github.com/runpod/netvolstore/objectstore"
	"github.com/runpod/netvolstore/syncdir"
	"github.com/runpod/netvolstore/upload"
)

func newTestCoordinator(t *testing.T, fake *testutil.FakeS3) *syncdir.Coordinator {
	t.Helper()
	cfg := &netvolstore.Config{
		S3AccessKey:     "fake-access-key",
		S3SecretKey:     "fake-secret-key",
		RequestTimeout:  10 * time.Second,
		MaxRetries:      3,
		WorkerPoolWidth: 2,
		EnableResume:    true,
	}
	factory := objectstore.NewFactory(cfg)
	client, err := factory.ForDatacenter(context.Background(), "TEST-DC-1", fake.Endpoint())
	require.NoError(t, err)

	engine := upload.NewEngine(client, cfg)
	return syncdir.NewCoordinator(engine, client, cfg)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

func TestUploadDirectorySkipsExcludedFiles(t *testing.T) {
	fake := testutil.NewFakeS3()
	defer fake.Close()
	require.NoError(t, fake.CreateBucket("test-volume"))

	root := writeTree(t, map[string]string{
		"a.txt":        "a",
		"b.log":        "b",
		"nested/c.txt": "c",
	})

	coord := newTestCoordinator(t, fake)
	sum, err := coord.UploadDirectory(context.Background(), syncdir.UploadDirectoryOptions{
		LocalDir:     root,
		Bucket:       "test-volume",
		RemotePrefix: "backup",
		ExcludeGlobs: []string{"*.log"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.FilesSucceeded)
	assert.Equal(t, 0, sum.FilesFailed)
}

func TestUploadDirectoryDeletesOrphansAfterUpload(t *testing.T) {
	fake := testutil.NewFakeS3()
	defer fake.Close()
	require.NoError(t, fake.CreateBucket("test-volume"))

	coord := newTestCoordinator(t, fake)

	firstRoot := writeTree(t, map[string]string{"keep.txt": "keep", "stale.txt": "stale"})
	_, err := coord.UploadDirectory(context.Background(), syncdir.UploadDirectoryOptions{
		LocalDir:     firstRoot,
		Bucket:       "test-volume",
		RemotePrefix: "sync",
	})
	require.NoError(t, err)

	secondRoot := writeTree(t, map[string]string{"keep.txt": "keep"})
	sum, err := coord.UploadDirectory(context.Background(), syncdir.UploadDirectoryOptions{
		LocalDir:      secondRoot,
		Bucket:        "test-volume",
		RemotePrefix:  "sync",
		DeleteOrphans: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilesSucceeded)
	assert.Equal(t, 1, sum.FilesDeleted)
}

func TestDownloadDirectoryRoundTrip(t *testing.T) {
	fake := testutil.NewFakeS3()
	defer fake.Close()
	require.NoError(t, fake.CreateBucket("test-volume"))

	coord := newTestCoordinator(t, fake)
	root := writeTree(t, map[string]string{"x/y.txt": "payload"})
	_, err := coord.UploadDirectory(context.Background(), syncdir.UploadDirectoryOptions{
		LocalDir:     root,
		Bucket:       "test-volume",
		RemotePrefix: "download-test",
	})
	require.NoError(t, err)

	destDir := t.TempDir()
	sum, err := coord.DownloadDirectory(context.Background(), syncdir.DownloadDirectoryOptions{
		Bucket:       "test-volume",
		RemotePrefix: "download-test",
		LocalDir:     destDir,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilesSucceeded)

	data, err := os.ReadFile(filepath.Join(destDir, "x", "y.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
