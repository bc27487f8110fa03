package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/webclient"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the runtime configuration. It is read from a YAML file and then
// overridden by NETMON_* variables from the environment or a .env file.
type Config struct {
	// StorageRoot holds the CA and the archive unless their paths are set.
	StorageRoot string `yaml:"storage_root"`

	Server    ServerConfig    `yaml:"server"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Cert      CertConfig      `yaml:"cert"`
	WebClient WebClientConfig `yaml:"webclient"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Checks    ChecksConfig    `yaml:"checks"`
	Log       LogConfig       `yaml:"log"`

	// JobRetentionTime is how long finished check jobs stay listed.
	JobRetentionTime time.Duration `yaml:"job_retention"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type ProxyConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ListenAddr string        `yaml:"listen_addr"`
	Timeout    time.Duration `yaml:"timeout"`
}

type CertConfig struct {
	// Dir holds the proxy CA. Empty keeps the CA in memory only.
	Dir string `yaml:"dir"`
}

type WebClientConfig struct {
	Client           string        `yaml:"client"`
	Timeout          time.Duration `yaml:"timeout"`
	ExecPath         string        `yaml:"exec_path"`
	Headless         bool          `yaml:"headless"`
	IdleAfter        time.Duration `yaml:"idle_after"`
	IgnoreCertErrors bool          `yaml:"ignore_cert_errors"`
}

type MonitorConfig struct {
	MarkLocal     bool          `yaml:"mark_local"`
	RedirectTTL   time.Duration `yaml:"redirect_ttl"`
	BatchInterval time.Duration `yaml:"batch_interval"`
}

type ArchiveConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Path                   string `yaml:"path"`
	RedactSensitiveHeaders *bool  `yaml:"redact_sensitive_headers"`
	SessionLabel           string `yaml:"session_label"`
}

type ChecksConfig struct {
	// BaseURL of an external fixture server. Empty starts one in-process
	// for every run.
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		StorageRoot: "~/.config/netmon",
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Proxy: ProxyConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:8081",
			Timeout:    30 * time.Second,
		},
		WebClient: WebClientConfig{
			Client:    string(webclient.ClientNetHTTP),
			Timeout:   30 * time.Second,
			Headless:  true,
			IdleAfter: 500 * time.Millisecond,
		},
		Monitor: MonitorConfig{
			RedirectTTL:   30 * time.Second,
			BatchInterval: 50 * time.Millisecond,
		},
		Archive: ArchiveConfig{
			Enabled: true,
		},
		Checks: ChecksConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		JobRetentionTime: 10 * time.Minute,
	}
}

// LoadConfig reads path (optional) over the defaults, then applies NETMON_*
// overrides. Variables already in the process environment win over those in
// envFiles; with no envFiles a ./.env is read when present.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	fileEnv, err := readEnvFiles(envFiles)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	if len(files) == 0 {
		env, err := godotenv.Read(".env")
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
		return env, nil
	}
	env, err := godotenv.Read(files...)
	if err != nil {
		return nil, fmt.Errorf("reading env files: %w", err)
	}
	return env, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("NETMON_STORAGE_ROOT", &c.StorageRoot)
	str("NETMON_SERVER_ADDR", &c.Server.ListenAddr)
	boolean("NETMON_PROXY_ENABLED", &c.Proxy.Enabled)
	str("NETMON_PROXY_ADDR", &c.Proxy.ListenAddr)
	str("NETMON_CERT_DIR", &c.Cert.Dir)
	str("NETMON_WEBCLIENT", &c.WebClient.Client)
	str("NETMON_CHROME_PATH", &c.WebClient.ExecPath)
	boolean("NETMON_HEADLESS", &c.WebClient.Headless)
	duration("NETMON_WEBCLIENT_TIMEOUT", &c.WebClient.Timeout)
	boolean("NETMON_MARK_LOCAL", &c.Monitor.MarkLocal)
	boolean("NETMON_ARCHIVE_ENABLED", &c.Archive.Enabled)
	str("NETMON_ARCHIVE_PATH", &c.Archive.Path)
	str("NETMON_CHECKS_BASE_URL", &c.Checks.BaseURL)
	str("NETMON_LOG_LEVEL", &c.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ResolvePaths expands ~ and fills the CA and archive paths from
// StorageRoot when they are unset.
func (c *Config) ResolvePaths() error {
	root, err := expandPath(c.StorageRoot)
	if err != nil {
		return fmt.Errorf("expanding storage root path: %w", err)
	}
	c.StorageRoot = root
	if c.Cert.Dir == "" && root != "" {
		c.Cert.Dir = filepath.Join(root, "certs")
	}
	if c.Archive.Path == "" && root != "" {
		c.Archive.Path = filepath.Join(root, "netmon.db")
	}
	if c.Cert.Dir, err = expandPath(c.Cert.Dir); err != nil {
		return fmt.Errorf("expanding cert dir: %w", err)
	}
	if c.Archive.Path, err = expandPath(c.Archive.Path); err != nil {
		return fmt.Errorf("expanding archive path: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	switch webclient.Client(c.WebClient.Client) {
	case webclient.ClientNetHTTP, webclient.ClientChromedp:
	default:
		problems = append(problems, fmt.Sprintf("unknown webclient %q", c.WebClient.Client))
	}
	if c.Server.ListenAddr == "" {
		problems = append(problems, "server.listen_addr is empty")
	}
	if c.Proxy.Enabled && c.Proxy.ListenAddr == "" {
		problems = append(problems, "proxy.listen_addr is empty")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		problems = append(problems, "archive.path is empty")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// WebClientConfig maps the webclient section onto a backend config whose
// requests are reported to sink.
func (c *Config) WebClientConfig(sink netevent.Sink) webclient.Config {
	return webclient.Config{
		Client:           webclient.Client(c.WebClient.Client),
		Timeout:          c.WebClient.Timeout,
		Sink:             sink,
		ExecPath:         c.WebClient.ExecPath,
		Headless:         c.WebClient.Headless,
		IdleAfter:        c.WebClient.IdleAfter,
		IgnoreCertErrors: c.WebClient.IgnoreCertErrors,
	}
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger(component string) logging.Logger {
	return logging.NewWriterLogger(os.Stdout, component, logging.ParseLevel(c.Log.Level))
}

func expandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
