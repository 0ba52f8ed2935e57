package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Database drivers
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	Media    MediaConfig    `yaml:"media"`
	JWT      JWTConfig      `yaml:"jwt"`
	APNS     APNSConfig     `yaml:"apns"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port          int    `yaml:"port"`
	Host          string `yaml:"host"`
	AllowedOrigin string `yaml:"allowed_origin" split_words:"true"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	MongoURI string `yaml:"mongo_uri" split_words:"true"`
	MongoDB  string `yaml:"mongo_db" envconfig:"MONGO_DB"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds the S3 asset host configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket" envconfig:"S3_BUCKET"`
	AccessKey string `yaml:"access_key" split_words:"true"`
	SecretKey string `yaml:"secret_key" split_words:"true"`
	Endpoint  string `yaml:"endpoint"`
	PublicURL string `yaml:"public_url" split_words:"true"`
}

// MediaConfig holds image upload limits
type MediaConfig struct {
	UploadTimeout time.Duration `yaml:"upload_timeout" split_words:"true"`
	MaxDimension  int           `yaml:"max_dimension" split_words:"true"`
	MaxBytes      int64         `yaml:"max_bytes" split_words:"true"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// APNSConfig holds Apple push configuration for offline delivery
type APNSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KeyPath    string `yaml:"key_path" split_words:"true"`
	KeyID      string `yaml:"key_id" split_words:"true"`
	TeamID     string `yaml:"team_id" split_words:"true"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, then applies CHAT_* environment overrides.
// A missing file is not an error; the defaults and environment are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()

	if err := envconfig.Process("chat", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          3000,
			AllowedOrigin: "*",
		},
		Database: DatabaseConfig{
			Driver:   DriverMongo,
			MongoURI: "mongodb://localhost:27017",
			MongoDB:  "chat",
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
		},
		Media: MediaConfig{
			UploadTimeout: 60 * time.Second,
			MaxDimension:  2048,
			MaxBytes:      5 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	switch c.Database.Driver {
	case DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Media.UploadTimeout <= 0 {
		return fmt.Errorf("media.upload_timeout must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrateURL returns the PostgreSQL URL understood by the migration driver
func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}
