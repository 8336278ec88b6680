package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Store  StoreConfig  `mapstructure:"store"`
	JWT    JWTConfig    `mapstructure:"jwt"`
	Log    LogConfig    `mapstructure:"log"`
	Blob   BlobConfig   `mapstructure:"blob"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // mongo | memory
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BlobConfig struct {
	Driver         string   `mapstructure:"driver"` // s3 | gridfs | memory
	S3             S3Config `mapstructure:"s3"`
	BaseURL        string   `mapstructure:"base_url"` // where gridfs and memory blobs are served from
	MaxDimension   int      `mapstructure:"max_dimension"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
	MaxFiles       int      `mapstructure:"max_files"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	PublicURL string `mapstructure:"public_url"`
}

func (c *Config) Development() bool {
	return c.Server.Environment == "development"
}

// Load reads .env, an optional config.yaml from ./configs or the working
// directory, then the environment. SERVER_PORT overrides server.port.
func Load() (*Config, error) {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "hse_management")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("store.driver", "mongo")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("blob.driver", "gridfs")
	v.SetDefault("blob.base_url", "/api/upload/files")
	v.SetDefault("blob.max_dimension", 1200)
	v.SetDefault("blob.max_upload_bytes", 10<<20)
	v.SetDefault("blob.max_files", 6)
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.public_url", "")
}

// bindEnvVariables keeps the variable names the deployment already uses.
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.port", "PORT", "SERVER_PORT")
	v.BindEnv("server.environment", "APP_ENV", "SERVER_ENVIRONMENT")
	v.BindEnv("mongo.uri", "MONGO_URI", "MONGODB_URI")
	v.BindEnv("mongo.database", "MONGO_DATABASE")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("blob.s3.bucket", "S3_BUCKET")
	v.BindEnv("blob.s3.region", "AWS_REGION", "S3_REGION")
	v.BindEnv("blob.s3.endpoint", "S3_ENDPOINT")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.Store.Driver {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Blob.Driver {
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	case "gridfs":
		if c.Store.Driver != "mongo" {
			errs = append(errs, errors.New("the gridfs blob driver needs store.driver mongo"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown blob.driver %q", c.Blob.Driver))
	}
	if c.Blob.MaxDimension <= 0 {
		errs = append(errs, errors.New("blob.max_dimension must be positive"))
	}
	return errors.Join(errs...)
}

// NewLogger builds a production (json) or development (console) logger.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	return zapCfg.Build()
}
