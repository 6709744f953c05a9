package netvolstore

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all client configuration: management-plane auth, data-plane
// auth, and the tunables for retry, backoff, and the multipart engine's
// worker pool.
type Config struct {
	// APIKey authenticates against the REST management plane (bearer token).
	APIKey string `mapstructure:"api_key"`

	// S3AccessKey / S3SecretKey authenticate against the S3-compatible data
	// plane. SessionToken is optional, for temporary credentials.
	S3AccessKey  string `mapstructure:"s3_access_key"`
	S3SecretKey  string `mapstructure:"s3_secret_key"`
	SessionToken string `mapstructure:"session_token"`

	// RoleARN, when set, causes the Object Store Client factory to assume
	// this role via STS rather than using S3AccessKey/S3SecretKey directly.
	RoleARN    string `mapstructure:"role_arn"`
	ExternalID string `mapstructure:"external_id"`

	// ManagementBaseURL is the REST management plane's base URL.
	ManagementBaseURL string `mapstructure:"management_base_url" default:"https://rest.runpod.io/v1"`

	// RequestTimeout bounds a single network request (connect+read).
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"30s"`

	// MaxRetries bounds retry attempts for both the management-plane client
	// and the multipart engine's per-part/completion retries.
	MaxRetries int `mapstructure:"max_retries" default:"5"`

	// PartSize, when non-zero, overrides adaptive part sizing (§4.4.1) for
	// every upload. Zero means "adaptive".
	PartSize int64 `mapstructure:"part_size" default:"0"`

	// EnableResume toggles session-discovery-and-resume (§4.4.2).
	EnableResume bool `mapstructure:"enable_resume" default:"true"`

	// WorkerPoolWidth bounds concurrency for both the multipart engine's
	// part uploads and the directory sync coordinator's file workers.
	WorkerPoolWidth int `mapstructure:"worker_pool_width" default:"4"`
}

// DefaultConfig returns a Config with the defaults named in spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		ManagementBaseURL: "https://rest.runpod.io/v1",
		RequestTimeout:    30 * time.Second,
		MaxRetries:        5,
		EnableResume:      true,
		WorkerPoolWidth:   4,
	}
}

// NewConfigFromViper loads a Config from v, applying DefaultConfig values to
// unset fields and validating the result.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("netvolstore: loading config: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig checks that cfg is internally consistent: the data plane
// needs either a static access/secret pair or a RoleARN to assume, worker
// pool width and retry counts must be positive.
func ValidateConfig(cfg *Config) error {
	if cfg.APIKey == "" {
		return NewError(KindValidationFailed, "ValidateConfig", fmt.Errorf("api_key is required"))
	}
	if cfg.RoleARN == "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return NewError(KindValidationFailed, "ValidateConfig",
			fmt.Errorf("s3_access_key/s3_secret_key or role_arn is required"))
	}
	if cfg.MaxRetries < 1 {
		return NewError(KindValidationFailed, "ValidateConfig", fmt.Errorf("max_retries must be >= 1"))
	}
	if cfg.WorkerPoolWidth < 1 {
		return NewError(KindValidationFailed, "ValidateConfig", fmt.Errorf("worker_pool_width must be >= 1"))
	}
	if cfg.PartSize < 0 {
		return NewError(KindValidationFailed, "ValidateConfig", fmt.Errorf("part_size must be >= 0"))
	}
	return nil
}

// String returns a safe string representation that redacts secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{ManagementBaseURL:%s, WorkerPoolWidth:%d, MaxRetries:%d, EnableResume:%v}",
		c.ManagementBaseURL, c.WorkerPoolWidth, c.MaxRetries, c.EnableResume)
}
