package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/logentries/s3archiver/internal/logger"
	"github.com/logentries/s3archiver/internal/types"
)

// stringToDurationHook lets viper decode a YAML/env string like "10s"
// straight into a types.Duration field, the same way mapstructure's
// built-in hook handles plain time.Duration.
func stringToDurationHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(types.Duration(0)) {
		return data, nil
	}
	d, err := time.ParseDuration(data.(string))
	if err != nil {
		return nil, err
	}
	return types.FromDuration(d), nil
}

// Config holds all configuration for the archiving agent.
type Config struct {
	S3       S3Config       `mapstructure:"s3"`
	Archiver ArchiverConfig `mapstructure:"archiver"`
	Logger   logger.Config  `mapstructure:"logging"`
	Status   StatusConfig   `mapstructure:"status"`
}

// S3Config holds the object-store destination and credentials. The pipeline
// treats these as already-resolved values; sourcing them is this package's
// job, not the archiver's.
type S3Config struct {
	Enabled            bool   `mapstructure:"enabled"`
	AccountID          string `mapstructure:"account_id"`
	SecretKey          string `mapstructure:"secret_key"`
	BucketName         string `mapstructure:"bucket_name"`
	Endpoint           string `mapstructure:"endpoint"`
	UseConfigLogPaths  bool   `mapstructure:"use_config_log_paths"`
	CAFile             string `mapstructure:"ca_file"`
	ClientCertFile     string `mapstructure:"client_cert_file"`
	ClientKeyFile      string `mapstructure:"client_key_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// ArchiverConfig holds the pipeline's own behavioral knobs, including the
// three test-only toggles carried over from the source agent.
type ArchiverConfig struct {
	BaseDir           string         `mapstructure:"base_dir"`
	NoLogsRotation    bool           `mapstructure:"no_logs_rotation"`
	NoTimestamps      bool           `mapstructure:"no_timestamps"`
	NoLogsCompressing bool           `mapstructure:"no_logs_compressing"`
	DieOnErrors       bool           `mapstructure:"die_on_errors"`
	UploadIdleTimeout types.Duration `mapstructure:"upload_idle_timeout"`
}

// StatusConfig configures the read-only diagnostics HTTP surface.
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load loads configuration from environment variables and config files.
// Each call rebuilds the full viper state so a stale explicit config file
// path from an earlier call cannot leak into this one.
func Load(configPath string) (*Config, error) {
	viper.Reset()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/s3archiver/")
	viper.AddConfigPath("$HOME/.s3archiver")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToDurationHook,
	)
	if err := viper.Unmarshal(&config, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("s3.enabled", false)
	viper.SetDefault("s3.account_id", "")
	viper.SetDefault("s3.secret_key", "")
	viper.SetDefault("s3.bucket_name", "")
	viper.SetDefault("s3.endpoint", "https://s3.amazonaws.com")
	viper.SetDefault("s3.use_config_log_paths", false)
	viper.SetDefault("s3.insecure_skip_verify", false)

	viper.SetDefault("archiver.base_dir", "/tmp/Logentries/Agent/S3/")
	viper.SetDefault("archiver.no_logs_rotation", false)
	viper.SetDefault("archiver.no_timestamps", false)
	viper.SetDefault("archiver.no_logs_compressing", false)
	viper.SetDefault("archiver.die_on_errors", false)
	viper.SetDefault("archiver.upload_idle_timeout", "10s")

	viper.SetDefault("status.enabled", true)
	viper.SetDefault("status.addr", ":8090")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.force_colors", false)
	viper.SetDefault("logging.file.enabled", true)
	viper.SetDefault("logging.file.path", "logs/s3archiver.log")
	viper.SetDefault("logging.rotation.max_size", 100)
	viper.SetDefault("logging.rotation.max_age", 30)
	viper.SetDefault("logging.rotation.max_backups", 10)
	viper.SetDefault("logging.rotation.compress", true)
	viper.SetDefault("logging.async.enabled", true)
	viper.SetDefault("logging.async.buffer_size", 1000)
	viper.SetDefault("logging.async.flush_interval", "5s")
	viper.SetDefault("logging.async.shutdown_timeout", "10s")
}

func bindEnvVars() {
	viper.SetEnvPrefix("S3ARCHIVER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("s3.account_id", "S3ARCHIVER_ACCOUNT_ID")
	viper.BindEnv("s3.secret_key", "S3ARCHIVER_SECRET_KEY")
	viper.BindEnv("s3.bucket_name", "S3ARCHIVER_BUCKET_NAME")
	viper.BindEnv("s3.endpoint", "S3ARCHIVER_ENDPOINT")

	viper.BindEnv("archiver.base_dir", "S3ARCHIVER_BASE_DIR")
	viper.BindEnv("archiver.die_on_errors", "S3ARCHIVER_DIE_ON_ERRORS")

	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")
	viper.BindEnv("logging.file.enabled", "LOG_FILE_ENABLED")
	viper.BindEnv("logging.file.path", "LOG_FILE_PATH")
}

// Validate checks the configuration for internal consistency. It does not
// reach out to the network or filesystem; the client-cert pairing check
// only looks at whether the two paths are set.
func (c *Config) Validate() error {
	if err := c.S3.Validate(); err != nil {
		return fmt.Errorf("s3 config: %w", err)
	}
	if err := c.Archiver.Validate(); err != nil {
		return fmt.Errorf("archiver config: %w", err)
	}
	if c.Status.Enabled && c.Status.Addr == "" {
		return fmt.Errorf("status.addr is required when status.enabled is true")
	}
	return nil
}

// Validate validates S3Config.
func (s *S3Config) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.BucketName == "" {
		return fmt.Errorf("bucket_name is required when s3.enabled is true")
	}
	if (s.ClientCertFile != "" && s.ClientKeyFile == "") ||
		(s.ClientCertFile == "" && s.ClientKeyFile != "") {
		return fmt.Errorf("both client_cert_file and client_key_file must be specified together")
	}
	return nil
}

// Validate validates ArchiverConfig.
func (a *ArchiverConfig) Validate() error {
	if a.BaseDir == "" {
		return fmt.Errorf("base_dir must not be empty")
	}
	if a.UploadIdleTimeout.ToDuration() <= 0 {
		return fmt.Errorf("upload_idle_timeout must be positive")
	}
	return nil
}

// hasCredentials reports whether account id, secret key and bucket name are
// all set. IsEnabled folds it into the single is-enabled decision the
// pipeline needs: has_credentials && transport_available, where transport
// availability is simply "s3.enabled is set" in this module (the transport
// is always compiled in).
func (s *S3Config) hasCredentials() bool {
	return s.AccountID != "" && s.SecretKey != "" && s.BucketName != ""
}

// IsEnabled reports whether the upload path should be active at all.
func (s *S3Config) IsEnabled() bool {
	return s.Enabled && s.hasCredentials()
}
