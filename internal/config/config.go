package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Cache     CacheConfig     `yaml:"cache"`
	Reminders RemindersConfig `yaml:"reminders"`
	Push      PushConfig      `yaml:"push"`
	AWS       AWSConfig       `yaml:"aws"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	// Path is the badger data directory
	Path string `yaml:"path"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Key derivation schemes
const (
	KDFSHA256 = "sha256"
	KDFArgon2 = "argon2id"
)

// CryptoConfig selects how couple keys are derived
type CryptoConfig struct {
	KDF string `yaml:"kdf"`
	// Argon2Salt is base64, at least 16 bytes decoded
	Argon2Salt string `yaml:"argon2_salt"`
}

// PairingConfig holds pairing code configuration
type PairingConfig struct {
	CodeTTL     time.Duration `yaml:"code_ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// CacheConfig holds the couple cache configuration
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int64         `yaml:"max_entries"`
}

// RemindersConfig holds the reminder scheduler configuration
type RemindersConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Window   time.Duration `yaml:"window"`
}

// PushConfig holds push provider configuration
type PushConfig struct {
	APNs    APNsConfig    `yaml:"apns"`
	WebPush WebPushConfig `yaml:"webpush"`
}

// APNsConfig holds token-based APNs credentials
type APNsConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// Enabled reports whether APNs credentials are configured
func (c APNsConfig) Enabled() bool {
	return c.KeyPath != ""
}

// WebPushConfig holds the VAPID key pair
type WebPushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
}

// Enabled reports whether a VAPID key pair is configured
func (c WebPushConfig) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// AWSConfig holds AWS configuration for exports
type AWSConfig struct {
	Region       string        `yaml:"region"`
	S3Bucket     string        `yaml:"s3_bucket"`
	AccessKey    string        `yaml:"access_key"`
	SecretKey    string        `yaml:"secret_key"`
	Endpoint     string        `yaml:"endpoint"`
	ExportURLTTL time.Duration `yaml:"export_url_ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses, defaults and validates a YAML document
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.JWT.TokenTTL == 0 {
		c.JWT.TokenTTL = 365 * 24 * time.Hour
	}
	if c.Crypto.KDF == "" {
		c.Crypto.KDF = KDFSHA256
	}
	if c.Pairing.CodeTTL == 0 {
		c.Pairing.CodeTTL = 24 * time.Hour
	}
	if c.Pairing.MaxAttempts == 0 {
		c.Pairing.MaxAttempts = 10
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 30 * time.Second
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10_000
	}
	if c.Reminders.Interval == 0 {
		c.Reminders.Interval = time.Minute
	}
	if c.Reminders.Window == 0 {
		c.Reminders.Window = 15 * time.Minute
	}
	if c.AWS.ExportURLTTL == 0 {
		c.AWS.ExportURLTTL = 15 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			errs = append(errs, errors.New("database.host and database.dbname are required for the postgres driver"))
		}
	case DriverBadger:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the badger driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of postgres, badger, memory", c.Database.Driver))
	}

	switch c.Crypto.KDF {
	case KDFSHA256:
	case KDFArgon2:
		salt, err := base64.StdEncoding.DecodeString(c.Crypto.Argon2Salt)
		if err != nil || len(salt) < 16 {
			errs = append(errs, errors.New("crypto.argon2_salt must be base64 of at least 16 bytes"))
		}
	default:
		errs = append(errs, fmt.Errorf("crypto.kdf %q is not one of sha256, argon2id", c.Crypto.KDF))
	}

	if c.Pairing.CodeTTL < 0 {
		errs = append(errs, errors.New("pairing.code_ttl must be positive"))
	}
	if c.Reminders.Window < c.Reminders.Interval {
		errs = append(errs, errors.New("reminders.window must not be shorter than reminders.interval"))
	}
	if c.Push.APNs.Enabled() && (c.Push.APNs.KeyID == "" || c.Push.APNs.TeamID == "" || c.Push.APNs.Topic == "") {
		errs = append(errs, errors.New("push.apns needs key_id, team_id and topic"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}

// Argon2SaltBytes decodes the configured salt
func (c CryptoConfig) Argon2SaltBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.Argon2Salt)
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
