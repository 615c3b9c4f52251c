package config

import "time"

// Config is the root configuration for one wikiexport process.
type Config struct {
	Output      string        `yaml:"output"`
	CacheDir    string        `yaml:"cache_dir"`
	MaxParallel int           `yaml:"max_parallel"`
	MaxInFlight int           `yaml:"max_in_flight"`
	Template    string        `yaml:"template"`
	Notice      string        `yaml:"notice"`
	Gateway     GatewayConfig `yaml:"gateway"`
	Site        SiteConfig    `yaml:"site"`
	Corpora     []Corpus      `yaml:"corpora"`
	VCS         VCSConfig     `yaml:"vcs"`
	Notify      NotifyConfig  `yaml:"notify"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Daemon      DaemonConfig  `yaml:"daemon"`
}

// GatewayConfig describes how to reach the remote content service.
type GatewayConfig struct {
	Endpoints []string      `yaml:"endpoints"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	PageSize  int           `yaml:"page_size"`
	Retry     RetryConfig   `yaml:"retry"`
}

// RetryConfig holds the per-endpoint retry policy of the gateway.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// SiteConfig names the live system the export mirrors.
type SiteConfig struct {
	// Host is the scheme and host of the live system, e.g. https://wiki.example.org.
	Host string `yaml:"host"`
	// ContextPath is the path prefix the wiki application is served under.
	ContextPath string `yaml:"context_path"`
	// OrgDomain: links to hosts containing it lose their rel markers.
	OrgDomain string `yaml:"org_domain"`
	// OrgSite: links to exactly this host lose the external-link class.
	OrgSite string `yaml:"org_site"`
}

// Root returns the absolute base URL of the wiki application.
func (s SiteConfig) Root() string { return s.Host + s.ContextPath }

// Corpus configures one exported space.
type Corpus struct {
	Space          string   `yaml:"space"`
	Dir            string   `yaml:"dir"`
	Template       string   `yaml:"template"`
	SnapshotFile   string   `yaml:"snapshot_file"`
	MainDivClass   string   `yaml:"main_div_class"`
	BreadcrumbRoot string   `yaml:"breadcrumb_root"`
	GlobalPages    []string `yaml:"global_pages"`
	ForcePages     []string `yaml:"force_pages"`
}

// VCSConfig controls version-control bookkeeping of the output tree.
type VCSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Commit  bool   `yaml:"commit"`
	Author  string `yaml:"author"`
	Email   string `yaml:"email"`
}

// NotifyConfig controls publication of run summaries.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig toggles Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DaemonConfig configures the long-running mode.
type DaemonConfig struct {
	Interval    time.Duration `yaml:"interval"`
	HTTPAddr    string        `yaml:"http_addr"`
	WatchConfig bool          `yaml:"watch_config"`
}

// SpaceName is the breadcrumb root sentinel meaning "use the space's display name".
const SpaceName = "-space-"
