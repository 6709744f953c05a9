// Package testutil provides an in-process fake S3 server for exercising the
// Object Store Client and Multipart Upload Engine against real wire
// semantics, since no pack example wires johannesboyne/gofakes3 directly.
package testutil

import (
	"net/http/httptest"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// FakeS3 is an in-memory S3-protocol server for tests.
type FakeS3 struct {
	Server  *httptest.Server
	backend *s3mem.Backend
}

// NewFakeS3 starts a fresh in-memory fake S3 server. Callers must call
// Close when done.
func NewFakeS3() *FakeS3 {
	backend := s3mem.New()
	faker := gofakes3.New(backend)
	return &FakeS3{
		Server:  httptest.NewServer(faker.Server()),
		backend: backend,
	}
}

// Close tears down the underlying httptest.Server.
func (f *FakeS3) Close() { f.Server.Close() }

// Endpoint is the server's base URL, suitable for s3.Options.BaseEndpoint.
func (f *FakeS3) Endpoint() string { return f.Server.URL }

// CreateBucket creates bucket on the fake backend directly, bypassing the
// HTTP layer — convenient test setup for cases that don't exercise volume
// creation itself.
func (f *FakeS3) CreateBucket(bucket string) error {
	return f.backend.CreateBucket(bucket)
}
