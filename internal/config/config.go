package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinAPITimeout is the smallest accepted DocuSign request timeout. The API
// timeout has millisecond precision; anything below is a configuration error.
const MinAPITimeout = time.Millisecond

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	// DocuSign API credentials and endpoint. OAuth2Token wins over the
	// legacy username/password/integrator-key triple when both are set.
	RootURL       string
	Username      string
	Password      string
	IntegratorKey string
	AccountID     string
	AppToken      string
	OAuth2Token   string
	APITimeout    time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Inbound rate limit on the Connect callback endpoint.
	RateLimitRPS   int
	RateLimitBurst int

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	LoginCacheTTL         time.Duration
	TemplateCacheTTL      time.Duration

	// CallbackToken, when set, must match the X-Callback-Token header on
	// incoming Connect callbacks.
	CallbackToken string

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	DocuSign struct {
		RootURL   string `yaml:"root_url"`
		AccountID string `yaml:"account_id"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"docusign"`

	Cache struct {
		Backend     string `yaml:"backend"`
		LoginTTL    string `yaml:"login_ttl"`
		TemplateTTL string `yaml:"template_ttl"`
		Memcached   struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Callback struct {
		Token string `yaml:"token"`
	} `yaml:"callback"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"inflight_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	Username      string `yaml:"docusign_username"`
	Password      string `yaml:"docusign_password"`
	IntegratorKey string `yaml:"docusign_integrator_key"`
	OAuth2Token   string `yaml:"docusign_oauth2_token"`
	AppToken      string `yaml:"docusign_app_token"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. Credentials come from DOCUSIGN_* env vars or the
// secrets file; env wins. Call from the project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	if secretsData, err := os.ReadFile(secretsPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.RootURL = firstNonEmpty(os.Getenv("DOCUSIGN_ROOT_URL"), fc.DocuSign.RootURL,
		"https://demo.docusign.net/restapi/v2")
	cfg.Username = firstNonEmpty(os.Getenv("DOCUSIGN_USERNAME"), sec.Username)
	cfg.Password = firstNonEmpty(os.Getenv("DOCUSIGN_PASSWORD"), sec.Password)
	cfg.IntegratorKey = firstNonEmpty(os.Getenv("DOCUSIGN_INTEGRATOR_KEY"), sec.IntegratorKey)
	cfg.AccountID = firstNonEmpty(os.Getenv("DOCUSIGN_ACCOUNT_ID"), fc.DocuSign.AccountID)
	cfg.AppToken = firstNonEmpty(os.Getenv("DOCUSIGN_APP_TOKEN"), sec.AppToken)
	cfg.OAuth2Token = firstNonEmpty(os.Getenv("DOCUSIGN_OAUTH2_TOKEN"), sec.OAuth2Token)

	timeout, err := resolveAPITimeout(os.Getenv("DOCUSIGN_TIMEOUT"), fc.DocuSign.Timeout)
	if err != nil {
		return nil, err
	}
	cfg.APITimeout = timeout

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.LoginCacheTTL = parseDuration(fc.Cache.LoginTTL, 10*time.Minute)
	cfg.TemplateCacheTTL = parseDuration(fc.Cache.TemplateTTL, 30*time.Minute)

	cfg.CallbackToken = firstNonEmpty(os.Getenv("CALLBACK_TOKEN"), fc.Callback.Token)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveAPITimeout picks the API timeout from the DOCUSIGN_TIMEOUT env var
// (seconds, fractional accepted) or the YAML duration string, defaulting to
// 30s. The result is truncated to millisecond precision; values below
// MinAPITimeout are rejected.
func resolveAPITimeout(envVal, fileVal string) (time.Duration, error) {
	timeout := 30 * time.Second
	if fileVal != "" {
		timeout = parseDuration(fileVal, timeout)
	}
	if envVal != "" {
		secs, err := strconv.ParseFloat(strings.TrimSpace(envVal), 64)
		if err != nil {
			return 0, fmt.Errorf("DOCUSIGN_TIMEOUT must be seconds, got %q", envVal)
		}
		timeout = time.Duration(secs * float64(time.Second))
	}
	timeout = timeout.Truncate(time.Millisecond)
	if timeout < MinAPITimeout {
		return 0, fmt.Errorf("docusign timeout must be at least %v, got %v", MinAPITimeout, timeout)
	}
	return timeout, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate checks credential completeness and cache backend after load.
// Either an OAuth2 token or the full legacy triple must be present.
func validate(cfg *Config) error {
	if cfg.OAuth2Token == "" {
		if cfg.Username == "" || cfg.Password == "" || cfg.IntegratorKey == "" {
			return fmt.Errorf("credentials required: set DOCUSIGN_OAUTH2_TOKEN or all of DOCUSIGN_USERNAME, DOCUSIGN_PASSWORD, DOCUSIGN_INTEGRATOR_KEY")
		}
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.RetryBaseDelay > cfg.RetryMaxDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	return nil
}
