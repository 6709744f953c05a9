package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/runpod/netvolstore"
	"github.com/runpod/netvolstore/objectstore"
)

// FakeStore is a thread-safe, in-memory double for upload.Store, grounded on
// the teacher's internal/testutil/mock_storage.go (MockStorage): a
// mutex-guarded map standing in for the real backend, reshaped here for
// this module's multipart surface instead of storagex.Storage's. Unlike
// FakeS3 (which exercises the real aws-sdk-go-v2 client against real wire
// semantics), FakeStore exists to inject faults gofakes3 cannot produce —
// 507, 524, and silent server-side truncation — so the Multipart Upload
// Engine's retry, fatal-abort and verification paths can be driven directly.
type FakeStore struct {
	mu sync.Mutex

	objects  map[string]fakeObject
	sessions map[string]*fakeSession
	nextID   int

	// UploadPartErrors, keyed by part number, is a FIFO queue of errors
	// returned before that part's upload actually succeeds.
	UploadPartErrors map[int32][]error

	// CompleteMultipartErrors is a FIFO queue of errors CompleteMultipart
	// returns before it actually finalizes the session.
	CompleteMultipartErrors []error

	// TruncateOnComplete shaves this many bytes off the completed object's
	// recorded size, simulating a server that silently truncated the
	// upload.
	TruncateOnComplete int64

	partAttempts     map[int32]int
	completeAttempts int
	aborted          map[string]bool
}

type fakeObject struct {
	size int64
	etag string
}

type fakePart struct {
	size int64
	etag string
}

type fakeSession struct {
	bucket    string
	key       string
	parts     map[int32]fakePart
	initiated time.Time
	completed bool
}

// NewFakeStore constructs an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		objects:          make(map[string]fakeObject),
		sessions:         make(map[string]*fakeSession),
		UploadPartErrors: make(map[int32][]error),
		partAttempts:     make(map[int32]int),
		aborted:          make(map[string]bool),
	}
}

func objectKey(bucket, key string) string { return bucket + "/" + key }

// PutObject stores r's full contents as bucket/key.
func (f *FakeStore) PutObject(ctx context.Context, bucket, key string, r io.ReadSeeker, length int64) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", netvolstore.NewError(netvolstore.KindValidationFailed, "PutObject", err).WithKey(key).WithVolume(bucket)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", netvolstore.NewError(netvolstore.KindTransientNetwork, "PutObject", err).WithKey(key).WithVolume(bucket)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	etag := fmt.Sprintf("etag-%d", len(data))
	f.objects[objectKey(bucket, key)] = fakeObject{size: int64(len(data)), etag: etag}
	return etag, nil
}

// HeadObject returns bucket/key's recorded size and etag.
func (f *FakeStore) HeadObject(ctx context.Context, bucket, key string) (int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectKey(bucket, key)]
	if !ok {
		return 0, "", netvolstore.NewError(netvolstore.KindObjectNotFound, "HeadObject", errors.New("not found")).WithKey(key).WithVolume(bucket)
	}
	return obj.size, obj.etag, nil
}

// CreateMultipart opens a new session and returns a freshly minted upload id.
func (f *FakeStore) CreateMultipart(ctx context.Context, bucket, key, idempotencyToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("fake-upload-%d", f.nextID)
	f.sessions[id] = &fakeSession{bucket: bucket, key: key, parts: make(map[int32]fakePart), initiated: time.Now()}
	return id, nil
}

// SeedSession pre-populates an in-flight session with the given part sizes,
// for resume-discovery tests. Returns the session's upload id.
func (f *FakeStore) SeedSession(bucket, key string, partSizes map[int32]int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("fake-upload-%d", f.nextID)
	parts := make(map[int32]fakePart, len(partSizes))
	for n, size := range partSizes {
		parts[n] = fakePart{size: size, etag: fmt.Sprintf("etag-part-%d", n)}
	}
	f.sessions[id] = &fakeSession{bucket: bucket, key: key, parts: parts, initiated: time.Now()}
	return id
}

// UploadPart consumes one queued UploadPartErrors entry for partNumber (if
// any) before recording the part as uploaded.
func (f *FakeStore) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	f.mu.Lock()
	f.partAttempts[partNumber]++
	if queue := f.UploadPartErrors[partNumber]; len(queue) > 0 {
		err := queue[0]
		f.UploadPartErrors[partNumber] = queue[1:]
		f.mu.Unlock()
		return "", err
	}
	session, ok := f.sessions[uploadID]
	f.mu.Unlock()
	if !ok {
		return "", netvolstore.NewError(netvolstore.KindProtocolMismatch, "UploadPart", errors.New("no such upload")).WithKey(key).WithVolume(bucket).WithPart(int(partNumber))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, body); err != nil {
		return "", netvolstore.NewError(netvolstore.KindTransientNetwork, "UploadPart", err).WithKey(key).WithVolume(bucket).WithPart(int(partNumber))
	}

	etag := fmt.Sprintf("etag-part-%d", partNumber)
	f.mu.Lock()
	session.parts[partNumber] = fakePart{size: size, etag: etag}
	f.mu.Unlock()
	return etag, nil
}

// PartAttempts reports how many times UploadPart was called for partNumber,
// for asserting retry counts.
func (f *FakeStore) PartAttempts(partNumber int32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.partAttempts[partNumber]
}

// ListParts returns every part recorded against uploadID.
func (f *FakeStore) ListParts(ctx context.Context, bucket, key, uploadID string) ([]objectstore.PartInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[uploadID]
	if !ok {
		return nil, nil
	}
	out := make([]objectstore.PartInfo, 0, len(session.parts))
	for n, p := range session.parts {
		out = append(out, objectstore.PartInfo{PartNumber: n, Size: p.size, ETag: p.etag})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out, nil
}

// CompleteMultipart consumes one queued CompleteMultipartErrors entry (if
// any) before finalizing the session into an object whose size is the sum
// of its completed parts, minus TruncateOnComplete.
func (f *FakeStore) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []objectstore.CompletedPart) (string, error) {
	f.mu.Lock()
	f.completeAttempts++
	if len(f.CompleteMultipartErrors) > 0 {
		err := f.CompleteMultipartErrors[0]
		f.CompleteMultipartErrors = f.CompleteMultipartErrors[1:]
		f.mu.Unlock()
		return "", err
	}
	session, ok := f.sessions[uploadID]
	if !ok {
		f.mu.Unlock()
		return "", netvolstore.NewError(netvolstore.KindProtocolMismatch, "CompleteMultipart", errors.New("no such upload")).WithKey(key).WithVolume(bucket)
	}

	var total int64
	for _, p := range parts {
		total += session.parts[p.PartNumber].size
	}
	total -= f.TruncateOnComplete

	session.completed = true
	etag := fmt.Sprintf("etag-complete-%s", uploadID)
	f.objects[objectKey(bucket, key)] = fakeObject{size: total, etag: etag}
	f.mu.Unlock()
	return etag, nil
}

// CompleteAttempts reports how many times CompleteMultipart was called.
func (f *FakeStore) CompleteAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeAttempts
}

// AbortMultipart marks uploadID aborted without deleting its bookkeeping, so
// WasAborted can still report on it afterward.
func (f *FakeStore) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted[uploadID] = true
	return nil
}

// WasAborted reports whether AbortMultipart was ever called for uploadID.
func (f *FakeStore) WasAborted(uploadID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted[uploadID]
}

// SessionExists reports whether uploadID is still tracked and not completed.
func (f *FakeStore) SessionExists(uploadID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[uploadID]
	return ok && !s.completed
}

// ListMultipartUploads returns every in-flight (not completed) session on
// bucket.
func (f *FakeStore) ListMultipartUploads(ctx context.Context, bucket string) ([]objectstore.MultipartUploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []objectstore.MultipartUploadInfo
	for id, s := range f.sessions {
		if s.bucket != bucket || s.completed || f.aborted[id] {
			continue
		}
		out = append(out, objectstore.MultipartUploadInfo{Key: s.key, UploadID: id, Initiated: s.initiated})
	}
	return out, nil
}
