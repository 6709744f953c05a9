package upload

import (
	"context"
	"math"
	"strings"

	"github.com/runpod/netvolstore/objectstore"
)

// part is one planned slice of the local file, realized once uploaded.
type part struct {
	Number int32
	Offset int64
	Length int64
}

// choosePartSize implements spec.md §4.4.1's adaptive sizing table: the
// caller's configured part size wins if set (non-zero); otherwise the part
// size is picked from the file's total size and, once chosen, is fixed for
// the session.
func choosePartSize(fileSize, configured int64) int64 {
	if configured > 0 {
		return configured
	}
	const (
		gib = 1 << 30
		mib = 1 << 20
	)
	switch {
	case fileSize < 1*gib:
		return 10 * mib
	case fileSize < 10*gib:
		return 50 * mib
	case fileSize < 50*gib:
		return 100 * mib
	default:
		return 200 * mib
	}
}

// planParts lays out the contiguous 1..N part-number space for fileSize
// split into partSize chunks; the last part is short unless partSize divides
// fileSize exactly.
func planParts(fileSize, partSize int64) []part {
	total := totalParts(fileSize, partSize)
	parts := make([]part, 0, total)
	for n := int32(1); n <= total; n++ {
		offset := int64(n-1) * partSize
		length := partSize
		if remaining := fileSize - offset; remaining < length {
			length = remaining
		}
		parts = append(parts, part{Number: n, Offset: offset, Length: length})
	}
	return parts
}

// totalParts is spec.md §4.4.1's N = ceil(file-size / part-size).
func totalParts(fileSize, partSize int64) int32 {
	return int32(math.Ceil(float64(fileSize) / float64(partSize)))
}

// normalizeCandidateKeys returns the two forms spec.md §4.4.2 requires a
// discovered session's key to be checked against: the key as given, and
// with a leading slash either stripped or added, so discovery matches a
// session regardless of which normalization the server-side listing used.
func normalizeCandidateKeys(key string) (plain, leadingSlash string) {
	if strings.HasPrefix(key, "/") {
		return strings.TrimPrefix(key, "/"), key
	}
	return key, "/" + key
}

// discoverSession implements spec.md §4.4.2: list in-flight multipart
// uploads on bucket, find one whose key matches under either key
// normalization, and verify compatibility of its already-uploaded parts
// against the current file's plan. Returns ("", nil, nil) if no compatible
// session exists — the caller must then create one.
func discoverSession(ctx context.Context, store Store, bucket, key string, fileSize, partSize int64) (uploadID string, existing map[int32]string, err error) {
	plain, leadingSlash := normalizeCandidateKeys(key)

	sessions, err := store.ListMultipartUploads(ctx, bucket)
	if err != nil {
		return "", nil, err
	}

	total := totalParts(fileSize, partSize)

	for _, s := range sessions {
		if s.Key != plain && s.Key != leadingSlash {
			continue
		}
		parts, err := store.ListParts(ctx, bucket, s.Key, s.UploadID)
		if err != nil {
			continue // an unreadable candidate is simply not compatible
		}
		found, ok := compatibleParts(parts, fileSize, partSize, total)
		if !ok {
			continue
		}
		return s.UploadID, found, nil
	}
	return "", nil, nil
}

// compatibleParts implements spec.md §4.4.2's compatibility check: the
// part-number set must be a subset of 1..N, every part before the last must
// be exactly partSize, and the last part (if present) must equal the exact
// remainder. Part sizes are the only cheap fingerprint the wire protocol
// exposes — content hashes are never compared.
func compatibleParts(uploaded []objectstore.PartInfo, fileSize, partSize int64, total int32) (map[int32]string, bool) {
	lastSize := fileSize - int64(total-1)*partSize
	if lastSize <= 0 || lastSize > partSize {
		lastSize = partSize
	}

	found := make(map[int32]string, len(uploaded))
	for _, p := range uploaded {
		if p.PartNumber < 1 || p.PartNumber > total {
			return nil, false
		}
		want := partSize
		if p.PartNumber == total {
			want = lastSize
		}
		if p.Size != want {
			return nil, false
		}
		found[p.PartNumber] = p.ETag
	}
	return found, true
}
