package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete run configuration. It is built once at startup and passed down
// explicitly.
type Config struct {
	Output    string `yaml:"output" validate:"required"`
	LogLevel  string `yaml:"log_level" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`

	SkipValidation bool `yaml:"skip_validation"`
	DetectCatchAll bool `yaml:"detect_catch_all"`

	// InitialVariants adds f.last and first.l candidates.
	InitialVariants bool `yaml:"initial_variants"`

	// EntryTimeout bounds one entry; 0 disables.
	EntryTimeout time.Duration `yaml:"entry_timeout" validate:"gte=0"`

	DNS       DNSConfig       `yaml:"dns"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Validator ValidatorConfig `yaml:"validator"`
	Progress  ProgressConfig  `yaml:"progress"`
}

type DNSConfig struct {
	Nameserver string        `yaml:"nameserver"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
}

type SMTPConfig struct {
	HeloName        string        `yaml:"helo_name" validate:"required,hostname_rfc1123"`
	MailFrom        string        `yaml:"mail_from" validate:"omitempty,email"`
	UseEHLO         bool          `yaml:"use_ehlo"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" validate:"gt=0"`
	ResponseTimeout time.Duration `yaml:"response_timeout" validate:"gt=0"`
	GlobalRPS       float64       `yaml:"global_rps" validate:"gte=0"`
	DomainRPS       float64       `yaml:"domain_rps" validate:"gte=0"`

	SOCKS5Proxy   string `yaml:"socks5_proxy" validate:"omitempty,hostname_port"`
	ProxyUser     string `yaml:"proxy_user"`
	ProxyPassword string `yaml:"proxy_password"`
}

type ValidatorConfig struct {
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey            string        `yaml:"api_key"`
	APIKeyHeader      string        `yaml:"api_key_header"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	PollInterval      time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxPolls          int           `yaml:"max_polls" validate:"min=1"`
	UnknownRetryDelay time.Duration `yaml:"unknown_retry_delay" validate:"gte=0"`
	AcceptCatchAll    bool          `yaml:"accept_catch_all"`
	MaxRetries        int           `yaml:"max_retries" validate:"gte=0"`
}

type ProgressConfig struct {
	Backend       string `yaml:"backend" validate:"oneof=file redis postgres"`
	Path          string `yaml:"path" validate:"required_if=Backend file"`
	RedisAddr     string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
	RedisKey      string `yaml:"redis_key"`
	DatabaseURL   string `yaml:"database_url" validate:"required_if=Backend postgres"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output:          "verified_emails.csv",
		LogLevel:        "info",
		LogFormat:       "text",
		DetectCatchAll:  true,
		InitialVariants: true,
		DNS: DNSConfig{
			Timeout: 5 * time.Second,
		},
		SMTP: SMTPConfig{
			HeloName:        "localhost",
			Port:            25,
			ConnectTimeout:  5 * time.Second,
			ResponseTimeout: 10 * time.Second,
			GlobalRPS:       10,
			DomainRPS:       5,
		},
		Validator: ValidatorConfig{
			APIKeyHeader:      "X-API-Key",
			Timeout:           30 * time.Second,
			PollInterval:      3 * time.Second,
			MaxPolls:          10,
			UnknownRetryDelay: 5 * time.Second,
			MaxRetries:        3,
		},
		Progress: ProgressConfig{
			Backend:   "file",
			Path:      "progress.json",
			RedisAddr: "localhost:6379",
			RedisKey:  "email-finder:progress",
		},
	}
}

// Load layers defaults, the optional YAML file at path and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files without overriding variables that
// are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

var validate = newValidator()

// Validate checks field constraints and the rules that span sections.
func (c Config) Validate() error {
	var problems []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}
	if !c.SkipValidation && strings.TrimSpace(c.Validator.BaseURL) == "" {
		problems = append(problems, "validator.base_url is required unless skip_validation is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}
