package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sample_config.yaml
var sampleConfig string

// API contains the media server endpoint and credentials.
type API struct {
	Key string `yaml:"api-key"`
	URL string `yaml:"url"`
}

// Database contains PostgreSQL connection parameters for the asset store.
type Database struct {
	Host     string `yaml:"host"`
	DBName   string `yaml:"dbname"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     int    `yaml:"port"`
}

// UserInfo identifies the server account whose assets are reconciled.
type UserInfo struct {
	Name string `yaml:"name"`
}

// Output contains optional settings for audit files and logging. All fields
// have defaults; the section may be omitted entirely.
type Output struct {
	Dir       string `yaml:"dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Config encapsulates all configuration values for livelink.
//
// Sections:
//   - API: server URL and x-api-key credential
//   - Database: direct read-only Postgres access to the asset table
//   - UserInfo: account name, used to scope asset queries
//   - Output: audit CSV directory and log settings (optional)
type Config struct {
	API      API      `yaml:"api"`
	Database Database `yaml:"database"`
	UserInfo UserInfo `yaml:"user-info"`
	Output   Output   `yaml:"output"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/livelink/config.yaml")
}

// Load locates, parses, and validates a configuration file. An explicit path
// must exist; with no path, ./config.yaml is tried first, then the default
// location.
func Load(path string) (*Config, string, error) {
	resolvedPath, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("configuration file not found: %s (create one with 'livelink config init')", resolvedPath)
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

// Default returns a Config carrying only the optional-section defaults.
func Default() Config {
	return Config{
		Output: Output{
			Dir:       "output",
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

func resolveConfigPath(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return expandPath(path)
	}

	projectPath, err := filepath.Abs("config.yaml")
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, nil
	}

	return DefaultConfigPath()
}

func (c *Config) normalize() error {
	c.API.URL = strings.TrimRight(strings.TrimSpace(c.API.URL), "/")
	c.API.Key = strings.TrimSpace(c.API.Key)
	c.UserInfo.Name = strings.TrimSpace(c.UserInfo.Name)

	dir, err := expandPath(c.Output.Dir)
	if err != nil {
		return err
	}
	c.Output.Dir = dir
	return nil
}

// ConnString builds the pgx connection URL for the asset database.
// Credentials are URL-escaped so passwords may carry any character.
func (c *Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:   "/" + c.Database.DBName,
	}
	return u.String()
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a commented sample configuration file to the specified
// location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
