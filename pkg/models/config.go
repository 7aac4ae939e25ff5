package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ConfigSchemaVersion is the schema carried by config files this build can
// load. Files from a newer major schema are rejected at Validate time.
const ConfigSchemaVersion = "1.2.0"

type Config struct {
	Version      string             `yaml:"version" json:"version"`
	Global       GlobalConfig       `yaml:"global" json:"global"`
	Catalog      CatalogConfig      `yaml:"catalog" json:"catalog"`
	Probe        ProbeConfig        `yaml:"probe" json:"probe"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" json:"orchestrator"`
	Analysis     AnalysisConfig     `yaml:"analysis" json:"analysis"`
	Storage      StorageConfig      `yaml:"storage" json:"storage"`
	API          APIConfig          `yaml:"api" json:"api"`
	Audit        AuditConfig        `yaml:"audit" json:"audit"`
	Scheduler    SchedulerConfig    `yaml:"scheduler" json:"scheduler"`
	Reporting    ReportingConfig    `yaml:"reporting" json:"reporting"`
	Metrics      MetricsConfig      `yaml:"metrics" json:"metrics"`
}

type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFile   string `yaml:"log_file" json:"log_file"`
	LogFormat string `yaml:"log_format" json:"log_format"`
	Debug     bool   `yaml:"debug" json:"debug"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
	TempDir   string `yaml:"temp_dir" json:"temp_dir"`
}

type CatalogConfig struct {
	Path       string   `yaml:"path" json:"path"`
	Categories []string `yaml:"categories" json:"categories"`
}

type ProbeConfig struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" json:"max_concurrent_requests"`
	Timeout               time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts         int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryBackoffBase      time.Duration `yaml:"retry_backoff_base" json:"retry_backoff_base"`
	RetryBackoffMax       time.Duration `yaml:"retry_backoff_max" json:"retry_backoff_max"`
	VerifyTLS             bool          `yaml:"verify_tls" json:"verify_tls"`
	FollowRedirects       bool          `yaml:"follow_redirects" json:"follow_redirects"`
	MaxRedirects          int           `yaml:"max_redirects" json:"max_redirects"`
	PreviewBytes          int           `yaml:"preview_bytes" json:"preview_bytes"`
	Timing                TimingConfig  `yaml:"timing" json:"timing"`
	Identity              IdentityConfig `yaml:"identity" json:"identity"`
	Proxies               ProxiesConfig `yaml:"proxies" json:"proxies"`
	DNS                   DNSConfig     `yaml:"dns" json:"dns"`
	TLS                   TLSConfig     `yaml:"tls" json:"tls"`
}

type TimingConfig struct {
	JitterMin time.Duration `yaml:"jitter_min" json:"jitter_min"`
	JitterMax time.Duration `yaml:"jitter_max" json:"jitter_max"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int           `yaml:"rate_burst" json:"rate_burst"`
	Adaptive  bool          `yaml:"adaptive" json:"adaptive"`
}

type IdentityConfig struct {
	Profiles         []string `yaml:"profiles" json:"profiles"`
	RotateUserAgents bool     `yaml:"rotate_user_agents" json:"rotate_user_agents"`
	SpoofForwardedFor bool    `yaml:"spoof_forwarded_for" json:"spoof_forwarded_for"`
}

type ProxiesConfig struct {
	Enabled             bool          `yaml:"enabled" json:"enabled"`
	Endpoints           []string      `yaml:"endpoints" json:"endpoints"`
	Strategy            string        `yaml:"strategy" json:"strategy"`
	MaxFailures         int           `yaml:"max_failures" json:"max_failures"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

type DNSConfig struct {
	Rotate  bool          `yaml:"rotate" json:"rotate"`
	Servers []string      `yaml:"servers" json:"servers"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type TLSConfig struct {
	Camouflage bool   `yaml:"camouflage" json:"camouflage"`
	Profile    string `yaml:"profile" json:"profile"`
}

type OrchestratorConfig struct {
	Workers       int           `yaml:"workers" json:"workers"`
	QueueCapacity int           `yaml:"queue_capacity" json:"queue_capacity"`
	TaskTimeout   time.Duration `yaml:"task_timeout" json:"task_timeout"`
}

type AnalysisConfig struct {
	CacheBackend string        `yaml:"cache_backend" json:"cache_backend"`
	CacheTTL     time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	Redis        RedisConfig   `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

type StorageConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Driver        string `yaml:"driver" json:"driver"`
	Path          string `yaml:"path" json:"path"`
	ExportDir     string `yaml:"export_dir" json:"export_dir"`
	Compress      bool   `yaml:"compress" json:"compress"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

type APIConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	ListenAddr   string        `yaml:"listen_addr" json:"listen_addr"`
	AuthEnabled  bool          `yaml:"auth_enabled" json:"auth_enabled"`
	JWTSecret    string        `yaml:"jwt_secret" json:"jwt_secret"`
	APIKeyHash   string        `yaml:"api_key_hash" json:"api_key_hash"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	BufferSize int  `yaml:"buffer_size" json:"buffer_size"`
}

type SchedulerConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Rescans []RescanRule `yaml:"rescans" json:"rescans"`
}

type RescanRule struct {
	Username  string   `yaml:"username" json:"username"`
	Schedule  string   `yaml:"schedule" json:"schedule"`
	Priority  string   `yaml:"priority" json:"priority"`
	Platforms []string `yaml:"platforms" json:"platforms"`
	Profile   string   `yaml:"profile" json:"profile"`
}

type ReportingConfig struct {
	Format    string `yaml:"format" json:"format"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

func DefaultConfig() *Config {
	return &Config{
		Version: ConfigSchemaVersion,
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: "json",
			DataDir:   "./data",
			TempDir:   os.TempDir(),
		},
		Catalog: CatalogConfig{},
		Probe: ProbeConfig{
			MaxConcurrentRequests: 10,
			Timeout:               30 * time.Second,
			RetryAttempts:         2,
			RetryBackoffBase:      500 * time.Millisecond,
			RetryBackoffMax:       10 * time.Second,
			VerifyTLS:             true,
			FollowRedirects:       true,
			MaxRedirects:          5,
			PreviewBytes:          256,
			Timing: TimingConfig{
				JitterMin: 50 * time.Millisecond,
				JitterMax: 350 * time.Millisecond,
				RateLimit: 0,
				RateBurst: 1,
				Adaptive:  false,
			},
			Identity: IdentityConfig{
				Profiles:         []string{"chrome_win", "firefox_win", "safari_mac", "chrome_android"},
				RotateUserAgents: true,
			},
			Proxies: ProxiesConfig{
				Strategy:            "round_robin",
				MaxFailures:         3,
				HealthCheckInterval: 5 * time.Minute,
			},
			DNS: DNSConfig{
				Rotate:  false,
				Servers: []string{"8.8.8.8:53", "1.1.1.1:53", "9.9.9.9:53"},
				Timeout: 5 * time.Second,
			},
			TLS: TLSConfig{
				Camouflage: false,
				Profile:    "chrome",
			},
		},
		Orchestrator: OrchestratorConfig{
			Workers:       4,
			QueueCapacity: 256,
			TaskTimeout:   5 * time.Minute,
		},
		Analysis: AnalysisConfig{
			CacheBackend: "memory",
			CacheTTL:     15 * time.Minute,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Storage: StorageConfig{
			Enabled:       true,
			Driver:        "sqlite",
			Path:          "./data/profilynx.db",
			ExportDir:     "./data/exports",
			Compress:      false,
			RetentionDays: 30,
		},
		API: APIConfig{
			ListenAddr:   ":8087",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 128,
		},
		Scheduler: SchedulerConfig{},
		Reporting: ReportingConfig{
			Format:    "json",
			OutputDir: "./reports",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "profilynx",
		},
	}
}

// CompatibleWith reports whether the config's declared version shares a
// major line with the given schema version. An empty version is treated
// as current.
func (c *Config) CompatibleWith(schemaVersion string) error {
	if c.Version == "" {
		return nil
	}
	v, err := semver.NewVersion(c.Version)
	if err != nil {
		return fmt.Errorf("version %q is not valid semver", c.Version)
	}
	cur, err := semver.NewVersion(schemaVersion)
	if err != nil {
		return fmt.Errorf("schema version %q is not valid semver", schemaVersion)
	}
	if v.Major() != cur.Major() {
		return fmt.Errorf("config version %s is incompatible with schema %s", c.Version, schemaVersion)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []string

	if err := c.CompatibleWith(ConfigSchemaVersion); err != nil {
		errs = append(errs, err.Error())
	}

	switch strings.ToLower(c.Global.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		errs = append(errs, "global.log_level must be one of trace|debug|info|warn|error|fatal|panic")
	}
	switch strings.ToLower(c.Global.LogFormat) {
	case "", "json", "text":
	default:
		errs = append(errs, "global.log_format must be json or text")
	}
	if c.Global.DataDir == "" {
		errs = append(errs, "global.data_dir must not be empty")
	}

	if c.Probe.MaxConcurrentRequests <= 0 {
		errs = append(errs, "probe.max_concurrent_requests must be > 0")
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, "probe.timeout must be > 0")
	}
	if c.Probe.RetryAttempts < 0 {
		errs = append(errs, "probe.retry_attempts must be >= 0")
	}
	if c.Probe.RetryBackoffBase <= 0 {
		errs = append(errs, "probe.retry_backoff_base must be > 0")
	}
	if c.Probe.RetryBackoffMax < c.Probe.RetryBackoffBase {
		errs = append(errs, "probe.retry_backoff_max must be >= probe.retry_backoff_base")
	}
	if c.Probe.MaxRedirects < 0 {
		errs = append(errs, "probe.max_redirects must be >= 0")
	}
	if c.Probe.PreviewBytes < 0 {
		errs = append(errs, "probe.preview_bytes must be >= 0")
	}
	if c.Probe.Timing.JitterMin < 0 || c.Probe.Timing.JitterMax < c.Probe.Timing.JitterMin {
		errs = append(errs, "probe.timing jitter window must satisfy 0 <= min <= max")
	}
	if c.Probe.Timing.RateLimit < 0 {
		errs = append(errs, "probe.timing.rate_limit must be >= 0")
	}
	if c.Probe.Proxies.Enabled {
		if len(c.Probe.Proxies.Endpoints) == 0 {
			errs = append(errs, "probe.proxies.endpoints must not be empty when proxies are enabled")
		}
		switch c.Probe.Proxies.Strategy {
		case "round_robin", "random", "latency":
		default:
			errs = append(errs, "probe.proxies.strategy must be round_robin|random|latency")
		}
	}
	if c.Probe.DNS.Rotate && len(c.Probe.DNS.Servers) == 0 {
		errs = append(errs, "probe.dns.servers must not be empty when rotation is enabled")
	}

	if c.Orchestrator.Workers <= 0 {
		errs = append(errs, "orchestrator.workers must be > 0")
	}
	if c.Orchestrator.QueueCapacity <= 0 {
		errs = append(errs, "orchestrator.queue_capacity must be > 0")
	}
	if c.Orchestrator.TaskTimeout <= 0 {
		errs = append(errs, "orchestrator.task_timeout must be > 0")
	}

	switch c.Analysis.CacheBackend {
	case "memory", "redis":
	default:
		errs = append(errs, "analysis.cache_backend must be memory or redis")
	}
	if c.Analysis.CacheTTL <= 0 {
		errs = append(errs, "analysis.cache_ttl must be > 0")
	}
	if c.Analysis.CacheBackend == "redis" && c.Analysis.Redis.Addr == "" {
		errs = append(errs, "analysis.redis.addr must not be empty when the redis backend is selected")
	}

	if c.Storage.Enabled {
		if c.Storage.Driver != "sqlite" {
			errs = append(errs, "storage.driver must be sqlite")
		}
		if c.Storage.Path == "" {
			errs = append(errs, "storage.path must not be empty when storage is enabled")
		}
		if c.Storage.RetentionDays < 0 {
			errs = append(errs, "storage.retention_days must be >= 0")
		}
	}

	if c.API.Enabled {
		if c.API.ListenAddr == "" {
			errs = append(errs, "api.listen_addr must not be empty when the API is enabled")
		}
		if c.API.AuthEnabled && c.API.JWTSecret == "" && c.API.APIKeyHash == "" {
			errs = append(errs, "api auth requires jwt_secret or api_key_hash")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		errs = append(errs, "audit.buffer_size must be > 0 when auditing is enabled")
	}

	for i, r := range c.Scheduler.Rescans {
		if r.Username == "" {
			errs = append(errs, fmt.Sprintf("scheduler.rescans[%d].username must not be empty", i))
		}
		if r.Schedule == "" {
			errs = append(errs, fmt.Sprintf("scheduler.rescans[%d].schedule must not be empty", i))
		}
	}

	switch c.Reporting.Format {
	case "", "json", "csv", "markdown":
	default:
		errs = append(errs, "reporting.format must be json|csv|markdown")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		data []byte
		err  error
	)
	switch ext {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomically write config: %w", err)
	}
	return nil
}

func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			if err2 := json.Unmarshal(data, c); err2 != nil {
				return fmt.Errorf("parse config (yaml/json): %v | %v", err, err2)
			}
		}
	}

	return c.Validate()
}
