// Package config provides configuration for the kernel server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the kernel configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Storage
	VarDir           string
	DatabaseURL      string
	ArtifactBackend  string
	ArtifactBucket   string
	ArtifactRegion   string
	ArtifactEndpoint string
	ArtifactPrefix   string

	// Agent memory
	MemoryBackend string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Boot
	ManifestPath    string
	PolicyFiles     []string
	GovernanceFiles []string
	VersionOrder    string

	// Observe
	ObserveBuffer int

	// Logging
	LogLevel string
}

// fileConfig is the TOML shape of Config.
type fileConfig struct {
	HTTPPort         int      `toml:"http_port"`
	VarDir           string   `toml:"var_dir"`
	DatabaseURL      string   `toml:"database_url"`
	ArtifactBackend  string   `toml:"artifact_backend"`
	ArtifactBucket   string   `toml:"artifact_bucket"`
	ArtifactRegion   string   `toml:"artifact_region"`
	ArtifactEndpoint string   `toml:"artifact_endpoint"`
	ArtifactPrefix   string   `toml:"artifact_prefix"`
	MemoryBackend    string   `toml:"memory_backend"`
	RedisAddr        string   `toml:"redis_addr"`
	RedisPassword    string   `toml:"redis_password"`
	RedisDB          int      `toml:"redis_db"`
	ManifestPath     string   `toml:"manifest"`
	PolicyFiles      []string `toml:"policy_files"`
	GovernanceFiles  []string `toml:"governance_files"`
	VersionOrder     string   `toml:"version_ordering"`
	ObserveBuffer    int      `toml:"observe_buffer"`
	LogLevel         string   `toml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:        8080,
		VarDir:          "var",
		ArtifactBackend: "fs",
		ArtifactRegion:  "us-east-1",
		MemoryBackend:   "sqlite",
		VersionOrder:    "lexical",
		ObserveBuffer:   256,
		LogLevel:        "info",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// KERNEL_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("KERNEL_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "file:" + filepath.Join(cfg.VarDir, "db", "kernel.db") + "?cache=shared&mode=rwc"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load kernel config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load kernel config: unknown key %s", undecoded[0])
	}

	if meta.IsDefined("http_port") {
		c.HTTPPort = raw.HTTPPort
	}
	if meta.IsDefined("var_dir") {
		c.VarDir = strings.TrimSpace(raw.VarDir)
	}
	if meta.IsDefined("database_url") {
		c.DatabaseURL = strings.TrimSpace(raw.DatabaseURL)
	}
	if meta.IsDefined("artifact_backend") {
		c.ArtifactBackend = strings.TrimSpace(raw.ArtifactBackend)
	}
	if meta.IsDefined("artifact_bucket") {
		c.ArtifactBucket = strings.TrimSpace(raw.ArtifactBucket)
	}
	if meta.IsDefined("artifact_region") {
		c.ArtifactRegion = strings.TrimSpace(raw.ArtifactRegion)
	}
	if meta.IsDefined("artifact_endpoint") {
		c.ArtifactEndpoint = strings.TrimSpace(raw.ArtifactEndpoint)
	}
	if meta.IsDefined("artifact_prefix") {
		c.ArtifactPrefix = raw.ArtifactPrefix
	}
	if meta.IsDefined("memory_backend") {
		c.MemoryBackend = strings.TrimSpace(raw.MemoryBackend)
	}
	if meta.IsDefined("redis_addr") {
		c.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	}
	if meta.IsDefined("redis_password") {
		c.RedisPassword = raw.RedisPassword
	}
	if meta.IsDefined("redis_db") {
		c.RedisDB = raw.RedisDB
	}
	if meta.IsDefined("manifest") {
		c.ManifestPath = strings.TrimSpace(raw.ManifestPath)
	}
	if meta.IsDefined("policy_files") {
		c.PolicyFiles = raw.PolicyFiles
	}
	if meta.IsDefined("governance_files") {
		c.GovernanceFiles = raw.GovernanceFiles
	}
	if meta.IsDefined("version_ordering") {
		c.VersionOrder = strings.TrimSpace(raw.VersionOrder)
	}
	if meta.IsDefined("observe_buffer") {
		c.ObserveBuffer = raw.ObserveBuffer
	}
	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.VarDir = getEnv("KERNEL_VAR_DIR", c.VarDir)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.ArtifactBackend = getEnv("ARTIFACT_BACKEND", c.ArtifactBackend)
	c.ArtifactBucket = getEnv("ARTIFACT_BUCKET", c.ArtifactBucket)
	c.ArtifactRegion = getEnv("ARTIFACT_REGION", c.ArtifactRegion)
	c.ArtifactEndpoint = getEnv("ARTIFACT_ENDPOINT", c.ArtifactEndpoint)
	c.ArtifactPrefix = getEnv("ARTIFACT_PREFIX", c.ArtifactPrefix)
	c.MemoryBackend = getEnv("MEMORY_BACKEND", c.MemoryBackend)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.ManifestPath = getEnv("KERNEL_MANIFEST", c.ManifestPath)
	c.PolicyFiles = getEnvList("POLICY_FILES", c.PolicyFiles)
	c.GovernanceFiles = getEnvList("GOVERNANCE_FILES", c.GovernanceFiles)
	c.VersionOrder = getEnv("VERSION_ORDERING", c.VersionOrder)
	c.ObserveBuffer = getEnvInt("OBSERVE_BUFFER", c.ObserveBuffer)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate rejects unknown backends and orderings.
func (c *Config) Validate() error {
	switch c.ArtifactBackend {
	case "fs", "memory", "s3", "gcs":
	default:
		return fmt.Errorf("unsupported artifact backend %q", c.ArtifactBackend)
	}
	switch c.MemoryBackend {
	case "sqlite", "memory", "redis":
	default:
		return fmt.Errorf("unsupported memory backend %q", c.MemoryBackend)
	}
	if c.MemoryBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("redis memory backend requires REDIS_ADDR")
	}
	switch c.VersionOrder {
	case "lexical", "semver":
	default:
		return fmt.Errorf("unsupported version ordering %q", c.VersionOrder)
	}
	if c.ObserveBuffer <= 0 {
		return fmt.Errorf("observe buffer must be positive, got %d", c.ObserveBuffer)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
