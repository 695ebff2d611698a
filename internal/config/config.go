// Package config loads and validates the poll configuration and watches
// the config file for changes so the scheduler can be reconciled without
// a restart.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	// GitHub rate-limits unauthenticated clients to 60 requests/hour,
	// so without a token the poll interval may not go below a minute.
	minIntervalWithToken    = 1
	minIntervalWithoutToken = 60

	defaultIntervalSeconds = 60

	filePerm = 0o600
	dirPerm  = 0o700
)

var repoURLPattern = regexp.MustCompile(`^https://github\.com/[^/]+/[^/]+/?$`)

// Config is the caller-supplied poll configuration. It is treated as
// immutable per tick; any change goes through a scheduler stop/start.
type Config struct {
	RepositoryURL   string `yaml:"repository_url"`
	AuthToken       string `yaml:"auth_token,omitempty"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// Default returns the starter configuration written on first run. The
// empty repository URL makes it invalid until the user fills it in.
func Default() Config {
	return Config{IntervalSeconds: defaultIntervalSeconds}
}

// Load reads and parses the YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config file, creating the parent directory if needed.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the repository URL shape and the poll interval floor.
func (c Config) Validate() error {
	if !repoURLPattern.MatchString(c.RepositoryURL) {
		return errors.New("repository URL must be in the form https://github.com/{owner}/{repo}")
	}

	minInterval := minIntervalWithoutToken
	if c.AuthToken != "" {
		minInterval = minIntervalWithToken
	}
	if c.IntervalSeconds < minInterval {
		return fmt.Errorf("interval must be >= %ds (use a personal access token for shorter intervals)", minInterval)
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c Config) Valid() bool {
	return c.Validate() == nil
}

// RepoRef parses {owner, name} out of the repository URL. A malformed
// URL yields an empty pair, never an error: a downstream fetch against
// the empty path fails with a self-describing transport error.
func (c Config) RepoRef() (owner, name string) {
	u, err := url.Parse(c.RepositoryURL)
	if err != nil {
		return "", ""
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}

// Interval returns the poll interval as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// IssuesByCreatedAtLink returns the tracker's filtered issue list URL,
// newest first: the target of the "View all issues" action.
func (c Config) IssuesByCreatedAtLink() string {
	owner, name := c.RepoRef()
	if owner == "" {
		return ""
	}
	q := url.QueryEscape("is:issue is:open sort:created-desc")
	return fmt.Sprintf("https://github.com/%s/%s/issues?q=%s", owner, name, q)
}
