package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Matcher index kinds
const (
	IndexExact = "exact"
	IndexHNSW  = "hnsw"
)

type Config struct {
	Attendance AttendanceConfig `yaml:"attendance"`
	Matcher    MatcherConfig    `yaml:"matcher"`
	Gallery    GalleryConfig    `yaml:"gallery"`
	Store      StoreConfig      `yaml:"store"`
	Embedding  EmbeddingConfig  `yaml:"-"`
	Database   DatabaseConfig   `yaml:"-"`
	SQLite     SQLiteConfig     `yaml:"-"`
	Redis      RedisConfig      `yaml:"-"`
	Evidence   EvidenceConfig   `yaml:"-"`
	Web        WebConfig        `yaml:"-"`
}

type AttendanceConfig struct {
	Cooldown       time.Duration `yaml:"cooldown"`
	SessionCeiling time.Duration `yaml:"session_ceiling"`
	Timezone       string        `yaml:"timezone"` // IANA name or "Local"
}

// Location resolves the configured time zone used for "today" queries.
func (c *AttendanceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type MatcherConfig struct {
	Threshold      float64 `yaml:"threshold"`
	Index          string  `yaml:"index"`            // exact or hnsw
	HNSWMinGallery int     `yaml:"hnsw_min_gallery"` // below this size hnsw falls back to a scan
}

type GalleryConfig struct {
	Refresh time.Duration `yaml:"refresh"`
}

type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	URL     string        // defaults to http://localhost:8000
	Dim     int           // expected vector length, 0 accepts any
	Timeout time.Duration // HTTP timeout for one extraction
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type SQLiteConfig struct {
	Path string // database file, used when DATABASE_URL is empty
}

type RedisConfig struct {
	URL          string        // enables the shared per-subject lock when set
	PoolSize     int           // default 10
	MinIdleConns int           // default 2
	DialTimeout  time.Duration // default 5s
	ReadTimeout  time.Duration // default 3s
	WriteTimeout time.Duration // default 3s
	LockLease    time.Duration // default 10s
}

type EvidenceConfig struct {
	Dir     string // defaults to ./uploads
	MaxSize int    // longest side of a stored photo in pixels
}

type WebConfig struct {
	APIToken       string   // guards enrollment writes when set
	AllowedOrigins []string // CORS origins besides localhost
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("90s", "16h").
// Returns the default value if the env var is unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load builds the configuration from the embedded defaults, the optional
// ATTENDANCE_CONFIG file and the environment, in that order of precedence.
func Load() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// Embedded file, so this only fails on a broken build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	if path := os.Getenv("ATTENDANCE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Attendance.Cooldown = envDuration("ATTENDANCE_COOLDOWN", cfg.Attendance.Cooldown)
	cfg.Attendance.SessionCeiling = envDuration("ATTENDANCE_SESSION_CEILING", cfg.Attendance.SessionCeiling)
	cfg.Attendance.Timezone = envString("ATTENDANCE_TIMEZONE", cfg.Attendance.Timezone)
	cfg.Matcher.Threshold = envFloat("MATCH_THRESHOLD", cfg.Matcher.Threshold)
	cfg.Matcher.Index = envString("MATCH_INDEX", cfg.Matcher.Index)
	cfg.Matcher.HNSWMinGallery = envInt("HNSW_MIN_GALLERY", cfg.Matcher.HNSWMinGallery)
	cfg.Gallery.Refresh = envDuration("GALLERY_REFRESH", cfg.Gallery.Refresh)
	cfg.Store.Timeout = envDuration("STORE_TIMEOUT", cfg.Store.Timeout)

	cfg.Embedding = EmbeddingConfig{
		URL:     os.Getenv("EMBEDDING_URL"),
		Dim:     envInt("EMBEDDING_DIM", 128),
		Timeout: envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
	}
	cfg.Database = DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
	}
	cfg.SQLite = SQLiteConfig{
		Path: os.Getenv("SQLITE_PATH"),
	}
	cfg.Redis = RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     envInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		LockLease:    envDuration("REDIS_LOCK_LEASE", 10*time.Second),
	}
	cfg.Evidence = EvidenceConfig{
		Dir:     envString("EVIDENCE_DIR", "uploads"),
		MaxSize: envInt("EVIDENCE_MAX_SIZE", 1024),
	}
	cfg.Web = WebConfig{
		APIToken:       os.Getenv("WEB_API_TOKEN"),
		AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
	}

	return &cfg, nil
}

// Validate rejects settings the attendance engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Matcher.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("match threshold must be positive, got %v", c.Matcher.Threshold))
	}
	if c.Matcher.Index != IndexExact && c.Matcher.Index != IndexHNSW {
		errs = append(errs, fmt.Errorf("match index must be %q or %q, got %q", IndexExact, IndexHNSW, c.Matcher.Index))
	}
	if c.Attendance.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("attendance cooldown must be positive, got %s", c.Attendance.Cooldown))
	}
	if c.Attendance.SessionCeiling <= 0 {
		errs = append(errs, fmt.Errorf("session ceiling must be positive, got %s", c.Attendance.SessionCeiling))
	} else if c.Attendance.SessionCeiling <= c.Attendance.Cooldown {
		errs = append(errs, fmt.Errorf("session ceiling %s must be longer than the cooldown %s",
			c.Attendance.SessionCeiling, c.Attendance.Cooldown))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("store timeout must be positive, got %s", c.Store.Timeout))
	}
	if _, err := c.Attendance.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
