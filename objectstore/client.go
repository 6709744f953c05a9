package objectstore

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/runpod/netvolstore"
)

// Client is a per-datacenter S3-protocol client. A Client is safe for
// concurrent use: it holds only an *s3.Client (itself safe for concurrent
// use, per the AWS SDK's own contract) and read-only configuration, matching
// spec.md §5's "Object Store Client: shared, read-only configuration,
// internally synchronised connection pool."
type Client struct {
	s3         *s3.Client
	region     string
	logger     netvolstore.Logger
	instr      *netvolstore.Instrumenter
	maxRetries int
}

// ListObjects returns every object under prefix in bucket, paginating
// internally via the SDK's ListObjectsV2 paginator (spec.md §4.3's
// "paginated iterator of (key, size, last-modified, etag)").
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := idempotentRetry(ctx, c.maxRetries, "ListObjects", func() error {
		out = out[:0]
		paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return mapErrorScoped(err, "ListObjects", bucket, prefix)
			}
			for _, obj := range page.Contents {
				info := ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
				if obj.ETag != nil {
					info.ETag = aws.ToString(obj.ETag)
				}
				if obj.LastModified != nil {
					info.LastModified = *obj.LastModified
				}
				out = append(out, info)
			}
			if c.instr != nil {
				c.instr.RecordListOperation(len(page.Contents), aws.ToBool(page.IsTruncated))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutObject uploads the full contents of r (length bytes) as a single-shot
// object, for files below the multipart threshold (spec.md §4.3).
func (c *Client) PutObject(ctx context.Context, bucket, key string, r io.ReadSeeker, length int64) (etag string, err error) {
	err = idempotentRetry(ctx, c.maxRetries, "PutObject", func() error {
		if _, serr := r.Seek(0, io.SeekStart); serr != nil {
			return netvolstore.NewError(netvolstore.KindValidationFailed, "PutObject", serr).WithKey(key).WithVolume(bucket)
		}
		out, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          r,
			ContentLength: aws.Int64(length),
		})
		if err != nil {
			return mapErrorScoped(err, "PutObject", bucket, key)
		}
		etag = aws.ToString(out.ETag)
		if c.instr != nil {
			c.instr.RecordOperationSize("PutObject", length)
		}
		return nil
	})
	return etag, err
}

// GetObject streams bucket/key's contents into w, returning the number of
// bytes written.
func (c *Client) GetObject(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	var n int64
	err := idempotentRetry(ctx, c.maxRetries, "GetObject", func() error {
		out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return mapErrorScoped(err, "GetObject", bucket, key)
		}
		defer out.Body.Close()
		written, err := io.Copy(w, out.Body)
		n = written
		if err != nil {
			return netvolstore.NewError(netvolstore.KindTransientNetwork, "GetObject", err).WithKey(key).WithVolume(bucket)
		}
		if c.instr != nil {
			c.instr.RecordOperationSize("GetObject", n)
		}
		return nil
	})
	return n, err
}

// DeleteObject removes bucket/key. Deleting an already-absent key is not an
// error (S3 DeleteObject is itself idempotent).
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	return idempotentRetry(ctx, c.maxRetries, "DeleteObject", func() error {
		_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return mapErrorScoped(err, "DeleteObject", bucket, key)
		}
		return nil
	})
}

// HeadObject returns bucket/key's size and etag without its payload.
func (c *Client) HeadObject(ctx context.Context, bucket, key string) (size int64, etag string, err error) {
	err = idempotentRetry(ctx, c.maxRetries, "HeadObject", func() error {
		out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return mapErrorScoped(err, "HeadObject", bucket, key)
		}
		size = aws.ToInt64(out.ContentLength)
		etag = aws.ToString(out.ETag)
		return nil
	})
	return size, etag, err
}

// CreateMultipart opens a new multipart upload session, tagging it with an
// idempotency token so duplicate CreateMultipartUpload calls under retry are
// identifiable in server-side logs (spec.md §1.2's domain-stack note on
// google/uuid usage).
func (c *Client) CreateMultipart(ctx context.Context, bucket, key, idempotencyToken string) (uploadID string, err error) {
	err = idempotentRetry(ctx, c.maxRetries, "CreateMultipart", func() error {
		out, err := c.s3.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			Metadata: map[string]string{"netvolstore-idempotency-token": idempotencyToken},
		})
		if err != nil {
			return mapErrorScoped(err, "CreateMultipart", bucket, key)
		}
		uploadID = aws.ToString(out.UploadId)
		return nil
	})
	return uploadID, err
}

// UploadPart uploads one part of a multipart session. This is a
// non-idempotent verb: per spec.md §4.3/§7, the Object Store Client applies
// no retry of its own here — the Multipart Upload Engine owns retry and the
// 507/524 special-casing.
func (c *Client) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (etag string, err error) {
	out, err := c.s3.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		se := mapErrorScoped(err, "UploadPart", bucket, key).(*netvolstore.StorageError)
		return "", se.WithPart(int(partNumber))
	}
	if c.instr != nil {
		c.instr.RecordOperationSize("UploadPart", size)
	}
	return aws.ToString(out.ETag), nil
}

// ListParts enumerates every already-uploaded part of uploadID, paginating
// internally.
func (c *Client) ListParts(ctx context.Context, bucket, key, uploadID string) ([]PartInfo, error) {
	var out []PartInfo
	err := idempotentRetry(ctx, c.maxRetries, "ListParts", func() error {
		out = out[:0]
		paginator := s3.NewListPartsPaginator(c.s3, &s3.ListPartsInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return mapErrorScoped(err, "ListParts", bucket, key)
			}
			for _, p := range page.Parts {
				out = append(out, PartInfo{
					PartNumber: aws.ToInt32(p.PartNumber),
					Size:       aws.ToInt64(p.Size),
					ETag:       aws.ToString(p.ETag),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteMultipart finalizes a multipart session with parts sorted
// ascending by part number. This is a non-idempotent verb; the engine owns
// its own timeout-doubling retry (spec.md §4.4.4), so CompleteMultipart
// issues exactly one request per call.
func (c *Client) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (etag string, err error) {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{PartNumber: aws.Int32(p.PartNumber), ETag: aws.String(p.ETag)}
	}
	out, err := c.s3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", mapErrorScoped(err, "CompleteMultipart", bucket, key)
	}
	return aws.ToString(out.ETag), nil
}

// AbortMultipart cancels uploadID, releasing any parts already uploaded to
// it. Idempotent per spec.md §4.3's list; aborting an already-aborted or
// already-completed session is not itself an error the engine needs to act
// on differently.
func (c *Client) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	return idempotentRetry(ctx, c.maxRetries, "AbortMultipart", func() error {
		_, err := c.s3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		if err != nil && !IsNoSuchUpload(err) {
			return mapErrorScoped(err, "AbortMultipart", bucket, key)
		}
		return nil
	})
}

// ListMultipartUploads enumerates in-flight (not yet completed or aborted)
// multipart sessions on bucket, used by both session discovery (spec.md
// §4.4.2) and abandoned-session cleanup (§4.4.5).
func (c *Client) ListMultipartUploads(ctx context.Context, bucket string) ([]MultipartUploadInfo, error) {
	var out []MultipartUploadInfo
	err := idempotentRetry(ctx, c.maxRetries, "ListMultipartUploads", func() error {
		out = out[:0]
		paginator := s3.NewListMultipartUploadsPaginator(c.s3, &s3.ListMultipartUploadsInput{
			Bucket: aws.String(bucket),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return mapErrorScoped(err, "ListMultipartUploads", bucket, "")
			}
			for _, u := range page.Uploads {
				info := MultipartUploadInfo{Key: aws.ToString(u.Key), UploadID: aws.ToString(u.UploadId)}
				if u.Initiated != nil {
					info.Initiated = *u.Initiated
				}
				out = append(out, info)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func mapErrorScoped(err error, op, bucket, key string) error {
	mapped := mapError(err, op, key)
	se, ok := mapped.(*netvolstore.StorageError)
	if !ok {
		return mapped
	}
	return se.WithVolume(bucket)
}
