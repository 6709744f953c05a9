// Package upload implements the Multipart Upload Engine: adaptive part
// sizing, session discovery and resume, concurrent part upload, and
// timeout-doubling completion, grounded on gostratum-storagex's
// internal/s3/multipart.go worker-pool shape and on the
// LargeMultipartUploader algorithm of the Python original this module
// replaces.
package upload

import "time"

// Progress is a point-in-time snapshot handed to a ProgressFunc. Speed is
// computed over the life of the current Upload call, not a moving window.
type Progress struct {
	Bucket         string
	Key            string
	BytesUploaded  int64
	TotalBytes     int64
	PartsCompleted int32
	TotalParts     int32
	SpeedMBps      float64
}

// ProgressFunc receives a Progress snapshot after every part completes.
// Implementations must not block significantly; the engine invokes it
// synchronously from whichever worker goroutine finished the part.
type ProgressFunc func(Progress)

// Result describes a finished upload.
type Result struct {
	Bucket        string
	Key           string
	UploadID      string // empty for a direct (non-multipart) upload
	ETag          string
	BytesUploaded int64
	PartCount     int32
	Resumed       bool // true if an existing compatible session was adopted
	Duration      time.Duration
}

// CleanupResult summarizes an abandoned-session sweep.
type CleanupResult struct {
	Bucket   string
	Aborted  int
	Inspected int
}
