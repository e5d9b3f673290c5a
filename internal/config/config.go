package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the YAML config file.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                      string   `yaml:"port"`
	LogLevel                  string   `yaml:"logLevel"`
	DatabaseURL               string   `yaml:"databaseURL"`
	RedisAddr                 string   `yaml:"redisAddr"`
	RedisPassword             string   `yaml:"redisPassword"`
	HashIterations            int      `yaml:"hashIterations"`
	AddUserRateLimitPerMinute int      `yaml:"addUserRateLimitPerMinute"`
	TrustedProxies            []string `yaml:"trustedProxies"`
	MinioEndpoint             string   `yaml:"minioEndpoint"`
	MinioAccessKey            string   `yaml:"minioAccessKey"`
	MinioSecretKey            string   `yaml:"minioSecretKey"`
	MinioBucket               string   `yaml:"minioBucket"`
	MinioUseSSL               bool     `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml). A .env file in
// the working directory is loaded first so container setups can keep the
// Postgres credentials next to docker-compose.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("HASH_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HashIterations = n
		}
	}
	if v := os.Getenv("ADD_USER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AddUserRateLimitPerMinute = n
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = dsnFromEnv()
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// dsnFromEnv assembles a Postgres URL from the POSTGRES_* variables used
// by the official postgres image. Returns "" when no credentials are set.
func dsnFromEnv() string {
	user := os.Getenv("POSTGRES_USER")
	password := os.Getenv("POSTGRES_PASSWORD")
	db := os.Getenv("POSTGRES_DB")
	if user == "" || password == "" || db == "" {
		return ""
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, password, host, port, db)
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL or POSTGRES_USER/POSTGRES_PASSWORD/POSTGRES_DB)")
	}
	if cfg.HashIterations < 0 {
		return errors.New("config: hashIterations must be >= 0")
	}
	if cfg.AddUserRateLimitPerMinute < 0 {
		return errors.New("config: addUserRateLimitPerMinute must be >= 0")
	}
	if cfg.AddUserRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when rate limiting is enabled")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	return nil
}
