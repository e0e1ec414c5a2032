package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"watchlist_go/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	DefaultPollURL        = "https://quote.cnbc.com/quote-html-webservice/quote.htm"
	DefaultStreamWSURL    = "wss://ws-feed.pro.coinbase.com"
	DefaultStreamRestURL  = "https://api.pro.coinbase.com"
	DefaultBaseIntervalMS = 1000
	DefaultBackoffMS      = 5000
	DefaultReconnectMS    = 5000
	DefaultNoticeTTLMS    = 3000
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Storage struct {
		Driver string `yaml:"driver"` // sqlite | postgres
		Path   string `yaml:"path"`   // sqlite file; empty = user config dir
		DSN    string `yaml:"dsn"`    // postgres connection string
	} `yaml:"storage"`

	Feeds struct {
		Polling struct {
			URL               string `yaml:"url"`
			BaseIntervalMS    int    `yaml:"base_interval_ms"`
			BackoffIntervalMS int    `yaml:"backoff_interval_ms"`
			TimeoutSec        int    `yaml:"timeout_sec"`
		} `yaml:"polling"`
		Streaming struct {
			WSURL            string `yaml:"ws_url"`
			RestURL          string `yaml:"rest_url"`
			ReconnectDelayMS int    `yaml:"reconnect_delay_ms"`
		} `yaml:"streaming"`
	} `yaml:"feeds"`

	Market struct {
		Timezone        string `yaml:"timezone"`         // empty = process local time
		HolidayCalendar string `yaml:"holiday_calendar"` // MIC, e.g. "xnys"; empty = weekdays only
	} `yaml:"market"`

	UI struct {
		NoticeTTLMS int `yaml:"notice_ttl_ms"`
	} `yaml:"ui"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "path", Err: err}
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies defaults and environment overrides, and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	cfg.applyDefaults()

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(&cfg)

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "watchlist"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	p := &c.Feeds.Polling
	if p.URL == "" {
		p.URL = DefaultPollURL
	}
	if p.BaseIntervalMS == 0 {
		p.BaseIntervalMS = DefaultBaseIntervalMS
	}
	if p.BackoffIntervalMS == 0 {
		p.BackoffIntervalMS = DefaultBackoffMS
	}
	if p.TimeoutSec == 0 {
		p.TimeoutSec = 10
	}
	s := &c.Feeds.Streaming
	if s.WSURL == "" {
		s.WSURL = DefaultStreamWSURL
	}
	if s.RestURL == "" {
		s.RestURL = DefaultStreamRestURL
	}
	if s.ReconnectDelayMS == 0 {
		s.ReconnectDelayMS = DefaultReconnectMS
	}
	if c.UI.NoticeTTLMS == 0 {
		c.UI.NoticeTTLMS = DefaultNoticeTTLMS
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("required for postgres")}
		}
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver %q", c.Storage.Driver)}
	}

	if !hasPrefix(c.Feeds.Polling.URL, "http://") && !hasPrefix(c.Feeds.Polling.URL, "https://") {
		return &domain.ConfigError{Field: "feeds.polling.url", Err: fmt.Errorf("invalid URL %q", c.Feeds.Polling.URL)}
	}
	if !hasPrefix(c.Feeds.Streaming.WSURL, "ws://") && !hasPrefix(c.Feeds.Streaming.WSURL, "wss://") {
		return &domain.ConfigError{Field: "feeds.streaming.ws_url", Err: fmt.Errorf("invalid URL %q", c.Feeds.Streaming.WSURL)}
	}
	if !hasPrefix(c.Feeds.Streaming.RestURL, "http://") && !hasPrefix(c.Feeds.Streaming.RestURL, "https://") {
		return &domain.ConfigError{Field: "feeds.streaming.rest_url", Err: fmt.Errorf("invalid URL %q", c.Feeds.Streaming.RestURL)}
	}

	if c.Feeds.Polling.BaseIntervalMS <= 0 || c.Feeds.Polling.BackoffIntervalMS <= 0 {
		return &domain.ConfigError{Field: "feeds.polling", Err: errors.New("intervals must be positive")}
	}
	if c.Feeds.Streaming.ReconnectDelayMS <= 0 {
		return &domain.ConfigError{Field: "feeds.streaming.reconnect_delay_ms", Err: errors.New("must be positive")}
	}
	if c.UI.NoticeTTLMS <= 0 {
		return &domain.ConfigError{Field: "ui.notice_ttl_ms", Err: errors.New("must be positive")}
	}

	if _, err := c.Location(); err != nil {
		return &domain.ConfigError{Field: "market.timezone", Err: err}
	}

	return nil
}

// Location resolves market.timezone; empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Market.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Market.Timezone)
}

func (c *Config) PollBaseInterval() time.Duration {
	return time.Duration(c.Feeds.Polling.BaseIntervalMS) * time.Millisecond
}

func (c *Config) PollBackoffInterval() time.Duration {
	return time.Duration(c.Feeds.Polling.BackoffIntervalMS) * time.Millisecond
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Feeds.Polling.TimeoutSec) * time.Second
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Feeds.Streaming.ReconnectDelayMS) * time.Millisecond
}

func (c *Config) NoticeTTL() time.Duration {
	return time.Duration(c.UI.NoticeTTLMS) * time.Millisecond
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if dsn := os.Getenv("WATCHLIST_DB_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if path := os.Getenv("WATCHLIST_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("WATCHLIST_LISTEN_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("WATCHLIST_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
