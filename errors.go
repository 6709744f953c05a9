// Package netvolstore provides a client for a remote object-storage service
// exposing a REST management plane for network volumes and an
// S3-compatible data plane for the file objects inside them. The centerpiece
// is a resumable, concurrent, retried multipart upload engine; volume
// catalog access, object-store primitives and directory sync are the
// supporting layers around it.
package netvolstore

import (
	"errors"
	"fmt"
)

// ErrorKind tags a StorageError with one of the eight kinds this client
// distinguishes. Callers should match on kind with errors.As, never on the
// formatted message.
type ErrorKind int

const (
	// KindUnknown is never constructed deliberately; its presence on a
	// matched StorageError indicates a bug in this package.
	KindUnknown ErrorKind = iota

	// KindAuthenticationFailed indicates the bearer token or data-plane
	// keys were rejected. Not retried.
	KindAuthenticationFailed

	// KindVolumeNotFound indicates a 404 on a volume-scoped operation.
	KindVolumeNotFound

	// KindObjectNotFound indicates a 404 on an object-scoped operation.
	KindObjectNotFound

	// KindValidationFailed indicates a client-side precondition failed
	// before any network call was made.
	KindValidationFailed

	// KindInsufficientStorage indicates the server reported HTTP 507.
	// Fatal for the current upload; the session is left open.
	KindInsufficientStorage

	// KindTransientNetwork indicates a timeout, 5xx, or 524 that was
	// retried internally up to max-retries and then exhausted.
	KindTransientNetwork

	// KindProtocolMismatch indicates an unexpected etag, a part-number gap
	// violating an invariant, or a completion-verification size mismatch.
	// Fatal; retrying would not change the condition.
	KindProtocolMismatch

	// KindCancelled indicates the operation was cancelled by the caller's
	// context.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthenticationFailed:
		return "AuthenticationFailed"
	case KindVolumeNotFound:
		return "VolumeNotFound"
	case KindObjectNotFound:
		return "ObjectNotFound"
	case KindValidationFailed:
		return "ValidationFailed"
	case KindInsufficientStorage:
		return "InsufficientStorage"
	case KindTransientNetwork:
		return "TransientNetwork"
	case KindProtocolMismatch:
		return "ProtocolMismatch"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// StorageError carries enough operation context for a caller or a wrapping
// UI to render an actionable message: the operation name, the volume and
// object key it was scoped to (when applicable), the part number (for
// multipart failures) and any underlying HTTP status code.
type StorageError struct {
	Kind       ErrorKind
	Op         string
	VolumeID   string
	Key        string
	PartNumber int // 0 if not part-scoped
	StatusCode int // 0 if not HTTP-scoped
	Err        error
}

func (e *StorageError) Error() string {
	var scope string
	switch {
	case e.PartNumber > 0 && e.Key != "":
		scope = fmt.Sprintf("%s part=%d", e.Key, e.PartNumber)
	case e.Key != "":
		scope = e.Key
	case e.VolumeID != "":
		scope = e.VolumeID
	}

	if scope != "" {
		if e.StatusCode != 0 {
			return fmt.Sprintf("netvolstore: %s %s [%s status=%d]: %v", e.Op, scope, e.Kind, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("netvolstore: %s %s [%s]: %v", e.Op, scope, e.Kind, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("netvolstore: %s [%s status=%d]: %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("netvolstore: %s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrVolumeNotFound) style matching against the
// package-level sentinels below, in addition to errors.As(err, &StorageError{}).
func (e *StorageError) Is(target error) bool {
	sentinel, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return sentinel.Kind == e.Kind && sentinel.Err == nil
}

// NewError constructs a StorageError of the given kind.
func NewError(kind ErrorKind, op string, err error) *StorageError {
	return &StorageError{Kind: kind, Op: op, Err: err}
}

// WithVolume returns a copy of e scoped to volumeID.
func (e *StorageError) WithVolume(volumeID string) *StorageError {
	c := *e
	c.VolumeID = volumeID
	return &c
}

// WithKey returns a copy of e scoped to key.
func (e *StorageError) WithKey(key string) *StorageError {
	c := *e
	c.Key = key
	return &c
}

// WithPart returns a copy of e scoped to partNumber.
func (e *StorageError) WithPart(partNumber int) *StorageError {
	c := *e
	c.PartNumber = partNumber
	return &c
}

// WithStatus returns a copy of e carrying the given HTTP status code.
func (e *StorageError) WithStatus(statusCode int) *StorageError {
	c := *e
	c.StatusCode = statusCode
	return &c
}

// Sentinels for errors.Is matching on kind alone (Err left nil, so Is
// compares only Kind — see (*StorageError).Is above).
var (
	ErrAuthenticationFailed = &StorageError{Kind: KindAuthenticationFailed}
	ErrVolumeNotFound       = &StorageError{Kind: KindVolumeNotFound}
	ErrObjectNotFound       = &StorageError{Kind: KindObjectNotFound}
	ErrValidationFailed     = &StorageError{Kind: KindValidationFailed}
	ErrInsufficientStorage  = &StorageError{Kind: KindInsufficientStorage}
	ErrTransientNetwork     = &StorageError{Kind: KindTransientNetwork}
	ErrProtocolMismatch     = &StorageError{Kind: KindProtocolMismatch}
	ErrCancelled            = &StorageError{Kind: KindCancelled}
)

// KindOf extracts the ErrorKind from err if it is (or wraps) a
// *StorageError, and ok=false otherwise.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return KindUnknown, false
}

// IsRetryable reports whether err, as classified by this package, should be
// retried by a caller that does its own outer-level retry loop. Only
// TransientNetwork is retryable; every other kind is terminal.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindTransientNetwork
}
