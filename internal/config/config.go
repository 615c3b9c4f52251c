package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

const (
	DefaultOutput       = "./site"
	DefaultCacheDir     = ".wikiexport"
	DefaultMaxInFlight  = 15
	DefaultTimeout      = 30 * time.Second
	DefaultPageSize     = 100
	DefaultSnapshotFile = "corpus.json"
	DefaultSubject      = "wikiexport.changes"
	DefaultInterval     = time.Hour
	DefaultHTTPAddr     = ":8089"
)

// Load reads one or more YAML files, expands ${VAR} references, merges them
// and applies defaults. Scalars come from the first file; corpora from all of
// them in order.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, errors.ConfigError("no configuration file given").Build()
	}
	var merged *Config
	for _, p := range paths {
		cfg, err := loadFile(p)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = cfg
			continue
		}
		merged.Corpora = append(merged.Corpora, cfg.Corpora...)
	}
	applyDefaults(merged)
	if err := Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", path).Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "read config file").
			Fatal().WithContext("path", path).Build()
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "parse config file").
			Fatal().WithContext("path", path).Build()
	}
	// Relative templates resolve against the file that names them.
	base := filepath.Dir(path)
	cfg.Template = resolveRelative(base, cfg.Template)
	for i := range cfg.Corpora {
		cfg.Corpora[i].Template = resolveRelative(base, cfg.Corpora[i].Template)
	}
	return cfg, nil
}

// Parse decodes YAML after environment expansion. Defaults are not applied.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func resolveRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return filepath.Join(base, p)
}

func applyDefaults(cfg *Config) {
	if cfg.Output == "" {
		cfg.Output = DefaultOutput
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.Output, DefaultCacheDir)
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = DefaultTimeout
	}
	if cfg.Gateway.PageSize <= 0 {
		cfg.Gateway.PageSize = DefaultPageSize
	}
	if cfg.Gateway.Retry.Mode == "" {
		cfg.Gateway.Retry.Mode = RetryBackoffExponential
	}
	if cfg.Site.ContextPath == "" {
		cfg.Site.ContextPath = "/confluence"
	}
	cfg.Site.Host = strings.TrimRight(cfg.Site.Host, "/")
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultSubject
	}
	if cfg.Daemon.Interval <= 0 {
		cfg.Daemon.Interval = DefaultInterval
	}
	if cfg.Daemon.HTTPAddr == "" {
		cfg.Daemon.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.VCS.Author == "" {
		cfg.VCS.Author = "wikiexport"
	}
	if cfg.VCS.Email == "" {
		cfg.VCS.Email = "wikiexport@localhost"
	}
	for i := range cfg.Corpora {
		c := &cfg.Corpora[i]
		if c.Template == "" {
			c.Template = cfg.Template
		}
		if c.SnapshotFile == "" {
			c.SnapshotFile = strings.ToLower(c.Space) + "-" + DefaultSnapshotFile
		}
	}
}

// Parallelism returns the number of corpora exported concurrently.
func (c *Config) Parallelism() int {
	if c.MaxParallel > 0 && c.MaxParallel < len(c.Corpora) {
		return c.MaxParallel
	}
	if len(c.Corpora) == 0 {
		return 1
	}
	return len(c.Corpora)
}

// OutputDir returns the absolute output directory of a corpus.
func (c *Config) OutputDir(corpus Corpus) string {
	return filepath.Join(c.Output, corpus.Dir)
}
