package netvolstore_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runpod/netvolstore"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := netvolstore.DefaultConfig()
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.EnableResume)
	assert.Equal(t, 4, cfg.WorkerPoolWidth)
	assert.Equal(t, int64(0), cfg.PartSize, "zero part size means adaptive sizing")
}

func TestValidateConfigRequiresAPIKey(t *testing.T) {
	cfg := netvolstore.DefaultConfig()
	cfg.S3AccessKey, cfg.S3SecretKey = "ak", "sk"
	err := netvolstore.ValidateConfig(cfg)
	require.Error(t, err)
	kind, ok := netvolstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, netvolstore.KindValidationFailed, kind)
}

func TestValidateConfigAcceptsRoleARNInPlaceOfStaticKeys(t *testing.T) {
	cfg := netvolstore.DefaultConfig()
	cfg.APIKey = "key"
	cfg.RoleARN = "arn:aws:iam::123456789012:role/netvolstore"
	require.NoError(t, netvolstore.ValidateConfig(cfg))
}

func TestValidateConfigRejectsBadWorkerWidth(t *testing.T) {
	cfg := netvolstore.DefaultConfig()
	cfg.APIKey = "key"
	cfg.S3AccessKey, cfg.S3SecretKey = "ak", "sk"
	cfg.WorkerPoolWidth = 0
	require.Error(t, netvolstore.ValidateConfig(cfg))
}

func TestNewConfigFromViperAppliesDefaultsToUnsetFields(t *testing.T) {
	v := viper.New()
	v.Set("api_key", "test-key")
	v.Set("s3_access_key", "ak")
	v.Set("s3_secret_key", "sk")

	cfg, err := netvolstore.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, 5, cfg.MaxRetries, "unset max_retries should fall back to DefaultConfig's value")
	assert.Equal(t, 4, cfg.WorkerPoolWidth)
}

func TestNewConfigFromViperRejectsInvalidConfig(t *testing.T) {
	v := viper.New()
	v.Set("api_key", "test-key")
	// No S3 credentials and no role ARN: invalid.
	_, err := netvolstore.NewConfigFromViper(v)
	require.Error(t, err)
}

func TestConfigStringRedactsSecrets(t *testing.T) {
	cfg := netvolstore.DefaultConfig()
	cfg.APIKey = "super-secret-api-key"
	cfg.S3SecretKey = "super-secret-s3-key"
	s := cfg.String()
	assert.NotContains(t, s, "super-secret-api-key")
	assert.NotContains(t, s, "super-secret-s3-key")
}
