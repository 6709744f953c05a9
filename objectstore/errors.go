package objectstore

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/runpod/netvolstore"
)

// mapError narrows an aws-sdk-go-v2 S3 error to the seven-kind taxonomy of
// spec.md §7, adapted from adapters/s3/mapper.go's MapS3Error (that version
// inspected response dictionaries/status-code substrings in the error
// message; the SDK exposes the same information as typed errors and
// smithy.APIError/smithyhttp.ResponseError, so this version decodes once at
// those interfaces instead of string-matching).
func mapError(err error, op, key string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return netvolstore.NewError(netvolstore.KindCancelled, op, err).WithKey(key)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return netvolstore.NewError(netvolstore.KindTransientNetwork, op, err).WithKey(key)
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return netvolstore.NewError(netvolstore.KindObjectNotFound, op, err).WithKey(key)
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return netvolstore.NewError(netvolstore.KindVolumeNotFound, op, err).WithKey(key)
	}
	var noSuchUpload *types.NoSuchUpload
	if errors.As(err, &noSuchUpload) {
		return netvolstore.NewError(netvolstore.KindProtocolMismatch, op, err).WithKey(key)
	}

	if respErr, status, ok := responseStatus(err); ok {
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return netvolstore.NewError(netvolstore.KindAuthenticationFailed, op, respErr).WithKey(key).WithStatus(status)
		case status == http.StatusNotFound:
			return netvolstore.NewError(netvolstore.KindObjectNotFound, op, respErr).WithKey(key).WithStatus(status)
		case status == statusInsufficientStorage:
			return netvolstore.NewError(netvolstore.KindInsufficientStorage, op, respErr).WithKey(key).WithStatus(status)
		case status == statusGatewayTimeoutLike || status >= 500:
			return netvolstore.NewError(netvolstore.KindTransientNetwork, op, respErr).WithKey(key).WithStatus(status)
		case status >= 400:
			return netvolstore.NewError(netvolstore.KindValidationFailed, op, respErr).WithKey(key).WithStatus(status)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return netvolstore.NewError(netvolstore.KindAuthenticationFailed, op, err).WithKey(key)
		case "NoSuchUpload", "InvalidPart", "InvalidPartOrder":
			return netvolstore.NewError(netvolstore.KindProtocolMismatch, op, err).WithKey(key)
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown",
			"InternalError", "ServiceUnavailable", "RequestTimeout":
			return netvolstore.NewError(netvolstore.KindTransientNetwork, op, err).WithKey(key)
		}
	}

	return netvolstore.NewError(netvolstore.KindTransientNetwork, op, err).WithKey(key)
}

// statusInsufficientStorage and statusGatewayTimeoutLike are the two
// non-standard-for-S3 status codes spec.md §4.4.3/§4.4.4 give special
// meaning to: 507 (fatal, not retryable by the engine) and 524 (a
// Cloudflare-style gateway timeout the spec treats as an ordinary
// retryable failure).
const (
	statusInsufficientStorage = 507
	statusGatewayTimeoutLike  = 524
)

// responseStatus extracts the raw HTTP status code from err if it wraps a
// smithyhttp.ResponseError, which is how the SDK surfaces status codes the
// S3 model has no typed error for (507, 524) — values adapters/s3/mapper.go
// could only recover by grepping the error string.
func responseStatus(err error) (error, int, bool) {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr, respErr.HTTPStatusCode(), true
	}
	return nil, 0, false
}

// IsInsufficientStorage reports whether err (as returned by UploadPart)
// carries an HTTP 507 status, the fatal, non-retryable condition of
// spec.md §4.4.3.
func IsInsufficientStorage(err error) bool {
	kind, ok := netvolstore.KindOf(err)
	return ok && kind == netvolstore.KindInsufficientStorage
}

// IsGatewayTimeoutLike reports whether err is a 524-style gateway timeout
// or a transport timeout, the ordinary-retryable condition of spec.md
// §4.4.3/§4.4.4.
func IsGatewayTimeoutLike(err error) bool {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == statusGatewayTimeoutLike {
		return true
	}
	kind, ok := netvolstore.KindOf(err)
	return ok && kind == netvolstore.KindTransientNetwork
}

// IsNoSuchUpload reports whether err indicates the server has no record of
// the multipart session (either already finalized or already aborted) —
// spec.md §4.4.4 step 1's "no such upload" short-circuit.
func IsNoSuchUpload(err error) bool {
	var noSuchUpload *types.NoSuchUpload
	if errors.As(err, &noSuchUpload) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchUpload" {
		return true
	}
	return false
}
