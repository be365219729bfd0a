package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-registry/internal/facematch"
)

//go:embed spaces.yaml
var spacesYAML []byte

type Config struct {
	Database   DatabaseConfig
	Recognizer RecognizerConfig
	FastFace   FastFaceConfig
	Web        WebConfig
	Spaces     facematch.Spaces
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the primary HNSW index (optional, if empty index is rebuilt on startup)
}

type RecognizerConfig struct {
	URL     string        // defaults to http://localhost:18081
	Timeout time.Duration // defaults to 30s
}

type FastFaceConfig struct {
	URL     string        // defaults to http://localhost:18082
	Timeout time.Duration // defaults to 30s
}

type WebConfig struct {
	Port           int      // defaults to 8080
	AllowedOrigins []string // CORS allowlist, comma separated in WEB_ALLOWED_ORIGINS
}

type spacesFile struct {
	Spaces map[string]facematch.SpaceConfig `yaml:"spaces"`
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

// envList splits a comma-separated environment variable into its
// non-empty parts.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadSpaces() facematch.Spaces {
	var file spacesFile
	if err := yaml.Unmarshal(spacesYAML, &file); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded spaces.yaml: " + err.Error())
	}
	spaces := make(facematch.Spaces, len(file.Spaces))
	for name, cfg := range file.Spaces {
		if cfg.Name == "" {
			cfg.Name = name
		}
		if err := cfg.Validate(); err != nil {
			panic("embedded spaces.yaml is invalid: " + err.Error())
		}
		spaces[name] = cfg
	}
	return spaces
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Recognizer: RecognizerConfig{
			URL:     os.Getenv("RECOGNIZER_URL"),
			Timeout: time.Duration(envInt("RECOGNIZER_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		FastFace: FastFaceConfig{
			URL:     os.Getenv("FASTFACE_URL"),
			Timeout: time.Duration(envInt("FASTFACE_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Spaces: loadSpaces(),
	}
}
