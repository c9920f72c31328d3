package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

type ServerConfig struct {
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
}

type DatabaseConfig struct {
	MailDB  string `toml:"mail_db"`  // SQLite file holding synced emails
	DataDir string `toml:"data_dir"` // Directory for the bbolt user store
}

type IMAPConfig struct {
	Server string `toml:"server"`
	Port   int    `toml:"port"`
}

type JWTConfig struct {
	Secret string `toml:"secret"` // For JWT signing
	Expiry string `toml:"expiry"` // Token lifetime, e.g. "24h"
}

type CacheConfig struct {
	TTL string `toml:"ttl"` // Conversation cache lifetime, e.g. "30s"
}

type SyncConfig struct {
	Interval  string `toml:"interval"`   // How often to poll IMAP, e.g. "2m"
	FetchSize int    `toml:"fetch_size"` // Max messages fetched per folder per cycle
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

type EncryptionConfig struct {
	Key string `toml:"key"` // 32-byte key for AES encryption of stored IMAP credentials
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	IMAP       IMAPConfig       `toml:"imap"`
	JWT        JWTConfig        `toml:"jwt"`
	Cache      CacheConfig      `toml:"cache"`
	Sync       SyncConfig       `toml:"sync"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Encryption EncryptionConfig `toml:"encryption"`
}

func LoadConfig(filepath string) (*Config, error) {
	var config Config

	// Set default values
	config.Server.Port = 3000
	config.Server.LogLevel = "info"
	config.Database.MailDB = "./data/mail.db"
	config.Database.DataDir = "./data"
	config.IMAP.Port = 993
	config.JWT.Expiry = "24h"
	config.Cache.TTL = "30s"
	config.Sync.Interval = "2m"
	config.Sync.FetchSize = 200
	config.RateLimit.RequestsPerSecond = 10
	config.RateLimit.Burst = 30

	// Load config file
	_, err := toml.DecodeFile(filepath, &config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the fields main cannot sensibly default.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("encryption.key must be exactly 32 bytes, got %d", len(c.Encryption.Key))
	}
	if _, err := time.ParseDuration(c.JWT.Expiry); err != nil {
		return fmt.Errorf("invalid jwt.expiry: %w", err)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache.ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Sync.Interval); err != nil {
		return fmt.Errorf("invalid sync.interval: %w", err)
	}
	return nil
}

// JWTExpiry returns the parsed token lifetime.
func (c *Config) JWTExpiry() time.Duration {
	d, _ := time.ParseDuration(c.JWT.Expiry)
	return d
}

// CacheTTL returns the parsed conversation cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.TTL)
	return d
}

// SyncInterval returns the parsed IMAP polling interval.
func (c *Config) SyncInterval() time.Duration {
	d, _ := time.ParseDuration(c.Sync.Interval)
	return d
}
