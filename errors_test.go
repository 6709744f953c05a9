package netvolstore_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runpod/netvolstore"
)

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := netvolstore.NewError(netvolstore.KindObjectNotFound, "GetObject", fmt.Errorf("boom")).WithKey("a.txt").WithVolume("vol-1")
	wrapped := fmt.Errorf("context: %w", base)

	kind, ok := netvolstore.KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, netvolstore.KindObjectNotFound, kind)
}

func TestKindOfReportsFalseForPlainError(t *testing.T) {
	_, ok := netvolstore.KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsRetryableOnlyTransientNetwork(t *testing.T) {
	transient := netvolstore.NewError(netvolstore.KindTransientNetwork, "UploadPart", fmt.Errorf("timeout"))
	assert.True(t, netvolstore.IsRetryable(transient))

	fatal := netvolstore.NewError(netvolstore.KindProtocolMismatch, "CompleteMultipart", fmt.Errorf("size mismatch"))
	assert.False(t, netvolstore.IsRetryable(fatal))
}

func TestErrorsIsMatchesSentinelByKind(t *testing.T) {
	err := netvolstore.NewError(netvolstore.KindVolumeNotFound, "GetVolume", fmt.Errorf("404")).WithVolume("vol-1")
	assert.True(t, errors.Is(err, netvolstore.ErrVolumeNotFound))
	assert.False(t, errors.Is(err, netvolstore.ErrObjectNotFound))
}

func TestStorageErrorMessageIncludesScope(t *testing.T) {
	err := netvolstore.NewError(netvolstore.KindTransientNetwork, "UploadPart", fmt.Errorf("gateway timeout")).
		WithVolume("vol-1").WithKey("big.bin").WithPart(7).WithStatus(524)

	msg := err.Error()
	assert.Contains(t, msg, "big.bin")
	assert.Contains(t, msg, "part=7")
	assert.Contains(t, msg, "status=524")
}

func TestWithMethodsDoNotMutateOriginal(t *testing.T) {
	base := netvolstore.NewError(netvolstore.KindObjectNotFound, "GetObject", fmt.Errorf("boom"))
	scoped := base.WithKey("a.txt")

	assert.Empty(t, base.Key)
	assert.Equal(t, "a.txt", scoped.Key)
}
