package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "config.json"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Storage     StorageConfig             `json:"storage"`
	Redis       RedisConfig               `json:"redis"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// DatabaseType selects an entry of Databases (sqlite3 or mysql).
	DatabaseType  string `json:"database_type"`
	UploadDir     string `json:"upload_dir"`
	LogLevel      string `json:"log_level"`
	// TokenTTL is the session lifetime in minutes.
	TokenTTL     int      `json:"token_ttl"`
	AllowOrigins []string `json:"allow_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// StorageConfig selects where uploaded images end up.
type StorageConfig struct {
	Type      string `json:"type"` // local, s3
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
}

type RedisConfig struct {
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Enabled reports whether any connection setting for redis was supplied.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Host != "" || r.Port != 0
}

// envOverrides are read from the process environment after .env is loaded.
type envOverrides struct {
	ServerAddress string `env:"EXTO_ADDR"`
	DatabaseType  string `env:"EXTO_DB"`
	UploadDir     string `env:"EXTO_UPLOAD_DIR"`
	LogLevel      string `env:"EXTO_LOG_LEVEL"`
	StorageType   string `env:"EXTO_STORAGE"`
	RedisURL      string `env:"REDIS_URL"`
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"-1"`
}

// Load reads configuration from the provided path and applies environment overrides.
// A missing file is tolerated only when the default path is used.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration usable for local development.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress: ":8090",
			DatabaseType:  "sqlite3",
			UploadDir:     "./data/uploads",
			LogLevel:      "info",
			TokenTTL:      24 * 60,
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "data/exto.db"},
		},
		Storage: StorageConfig{Type: "local"},
	}
}

func applyEnv(cfg *Config) error {
	var over envOverrides
	if err := env.Parse(&over); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if over.ServerAddress != "" {
		cfg.BasicConfig.ServerAddress = over.ServerAddress
	}
	if over.DatabaseType != "" {
		cfg.BasicConfig.DatabaseType = over.DatabaseType
	}
	if over.UploadDir != "" {
		cfg.BasicConfig.UploadDir = over.UploadDir
	}
	if over.LogLevel != "" {
		cfg.BasicConfig.LogLevel = over.LogLevel
	}
	if over.StorageType != "" {
		cfg.Storage.Type = over.StorageType
	}
	if over.RedisURL != "" {
		cfg.Redis.URL = over.RedisURL
	}
	if over.RedisHost != "" {
		cfg.Redis.Host = over.RedisHost
	}
	if over.RedisPort != 0 {
		cfg.Redis.Port = over.RedisPort
	}
	if over.RedisPassword != "" {
		cfg.Redis.Password = over.RedisPassword
	}
	if over.RedisDB >= 0 {
		cfg.Redis.DB = over.RedisDB
	}
	return nil
}

func (c *Config) normalize(baseDir string) error {
	c.BasicConfig.DatabaseType = strings.ToLower(strings.TrimSpace(c.BasicConfig.DatabaseType))
	if c.BasicConfig.DatabaseType == "" {
		c.BasicConfig.DatabaseType = "sqlite3"
	}
	dbCfg, ok := c.Databases[c.BasicConfig.DatabaseType]
	if !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.DatabaseType)
	}
	if c.BasicConfig.DatabaseType == "sqlite3" {
		if dbCfg.DSN == "" {
			return fmt.Errorf("sqlite dsn must be configured")
		}
		if dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(baseDir, dbCfg.DSN)
		}
		c.Databases[c.BasicConfig.DatabaseType] = dbCfg
	}
	if c.BasicConfig.UploadDir == "" {
		c.BasicConfig.UploadDir = "./data/uploads"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "local"
	}
	return nil
}
