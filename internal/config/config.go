package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mediasvc/internal/utils/id"
)

// EnvPrefix scopes environment overrides, e.g. MEDIA_STORAGE_TYPE.
const EnvPrefix = "MEDIA"

// Storage backends selectable through storage.type.
const (
	StorageLocal    = "local"
	StorageMemory   = "memory"
	StorageDatabase = "database"
	StorageS3       = "s3"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Media   MediaConfig   `mapstructure:"media"`
	Storage StorageConfig `mapstructure:"storage"`

	// Source is the config file that was read, empty when running on defaults.
	Source string `mapstructure:"-"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	UploadTimeout     time.Duration `mapstructure:"upload_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPM      int           `mapstructure:"rate_limit_rpm"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	// MaxStreams caps concurrent media downloads; 0 disables the cap.
	MaxStreams        int           `mapstructure:"max_streams"`
	StreamMaxDuration time.Duration `mapstructure:"stream_max_duration"`
	Debug             bool          `mapstructure:"debug"`
	LatencyLog        bool          `mapstructure:"latency_log"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type MediaConfig struct {
	MaxFileSize       int64         `mapstructure:"max_file_size"`
	MaxFiles          int           `mapstructure:"max_files"`
	UploadConcurrency int           `mapstructure:"upload_concurrency"`
	BasePath          string        `mapstructure:"base_path"`
	IDStrategy        string        `mapstructure:"id_strategy"`
	CacheSize         int           `mapstructure:"cache_size"`
	MetadataTTL       time.Duration `mapstructure:"metadata_ttl"`
	StatsTTL          time.Duration `mapstructure:"stats_ttl"`
}

type StorageConfig struct {
	Type          string         `mapstructure:"type"`
	Local         LocalConfig    `mapstructure:"local"`
	Database      DatabaseConfig `mapstructure:"database"`
	S3            S3Config       `mapstructure:"s3"`
	Retry         RetryConfig    `mapstructure:"retry"`
	RetentionDays int            `mapstructure:"retention_days"`
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
}

type LocalConfig struct {
	Dir       string `mapstructure:"dir"`
	BackupDir string `mapstructure:"backup_dir"`
}

type DatabaseConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	CreateBucket    bool   `mapstructure:"create_bucket"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Retention returns the sweep age, or zero when retention is disabled.
func (s StorageConfig) Retention() time.Duration {
	if s.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is an explicit path; a missing explicit file is an error.
	ConfigFile string
	// EnvFile is loaded into the process environment when it exists. Defaults to ".env".
	EnvFile string
}

// legacyEnv maps keys to the unprefixed variables deployments already set.
var legacyEnv = map[string][]string{
	"server.port":                  {"PORT"},
	"storage.type":                 {"STORAGE_PROVIDER"},
	"storage.database.dsn":         {"DATABASE_URL"},
	"storage.s3.bucket":            {"AWS_S3_BUCKET"},
	"storage.s3.region":            {"AWS_REGION"},
	"storage.s3.endpoint":          {"AWS_S3_ENDPOINT"},
	"storage.s3.access_key_id":     {"AWS_ACCESS_KEY_ID"},
	"storage.s3.secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.upload_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit_rpm", 0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.max_streams", 0)
	v.SetDefault("server.stream_max_duration", time.Duration(0))
	v.SetDefault("server.debug", false)
	v.SetDefault("server.latency_log", false)

	v.SetDefault("media.max_file_size", int64(50<<20))
	v.SetDefault("media.max_files", 10)
	v.SetDefault("media.upload_concurrency", 4)
	v.SetDefault("media.base_path", "/api/media")
	v.SetDefault("media.id_strategy", "uuidv4")
	v.SetDefault("media.cache_size", 1024)
	v.SetDefault("media.metadata_ttl", time.Minute)
	v.SetDefault("media.stats_ttl", 5*time.Second)

	v.SetDefault("storage.type", StorageLocal)
	v.SetDefault("storage.local.dir", "uploads")
	v.SetDefault("storage.local.backup_dir", "")
	v.SetDefault("storage.database.dsn", "")
	v.SetDefault("storage.database.table", "media_objects")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.prefix", "media")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.s3.create_bucket", false)
	v.SetDefault("storage.retry.max_attempts", 3)
	v.SetDefault("storage.retry.base_delay", 100*time.Millisecond)
	v.SetDefault("storage.retry.max_delay", 2*time.Second)
	v.SetDefault("storage.retention_days", 0)
	v.SetDefault("storage.sweep_interval", 24*time.Hour)
}

// Load reads defaults, the optional YAML file, the .env file and the
// environment, in increasing order of precedence.
func Load(opts LoadOptions) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range legacyEnv {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("mediasvc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mediasvc")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()
	cfg.Storage.Type = strings.ToLower(strings.TrimSpace(cfg.Storage.Type))
	return cfg, nil
}

// Validate checks limits and the settings required by the selected backend.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Media.MaxFileSize <= 0 {
		errs = append(errs, errors.New("media.max_file_size must be positive"))
	}
	if c.Media.MaxFiles <= 0 {
		errs = append(errs, errors.New("media.max_files must be positive"))
	}
	if !strings.HasPrefix(c.Media.BasePath, "/") {
		errs = append(errs, fmt.Errorf("media.base_path %q must start with /", c.Media.BasePath))
	}
	if _, err := id.ParseStrategy(c.Media.IDStrategy); err != nil {
		errs = append(errs, fmt.Errorf("media.id_strategy: %w", err))
	}
	if c.Storage.RetentionDays < 0 {
		errs = append(errs, errors.New("storage.retention_days must not be negative"))
	}
	if err := c.Storage.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s StorageConfig) validate() error {
	switch s.Type {
	case StorageLocal:
		if strings.TrimSpace(s.Local.Dir) == "" {
			return errors.New("storage.local.dir is required for local storage")
		}
	case StorageMemory:
	case StorageDatabase:
		if strings.TrimSpace(s.Database.DSN) == "" {
			return errors.New("storage.database.dsn is required for database storage")
		}
	case StorageS3:
		if strings.TrimSpace(s.S3.Bucket) == "" {
			return errors.New("storage.s3.bucket is required for s3 storage")
		}
		if (s.S3.AccessKeyID == "") != (s.S3.SecretAccessKey == "") {
			return errors.New("storage.s3.access_key_id and storage.s3.secret_access_key must be set together")
		}
	case "cloudinary", "gcs":
		return fmt.Errorf("storage provider %q is not supported", s.Type)
	default:
		return fmt.Errorf("unknown storage type %q", s.Type)
	}
	return nil
}
