package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overlays environment variables onto c. Unset variables leave values untouched.
func (c *Config) ApplyEnv() error {
	var err error

	c.Output = envString("OUTPUT", c.Output)
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envString("LOG_FORMAT", c.LogFormat)
	if c.SkipValidation, err = envBool("SKIP_VALIDATION", c.SkipValidation); err != nil {
		return err
	}
	if c.DetectCatchAll, err = envBool("DETECT_CATCH_ALL", c.DetectCatchAll); err != nil {
		return err
	}
	if c.InitialVariants, err = envBool("INITIAL_VARIANTS", c.InitialVariants); err != nil {
		return err
	}
	if c.EntryTimeout, err = envDuration("ENTRY_TIMEOUT", c.EntryTimeout); err != nil {
		return err
	}

	c.DNS.Nameserver = envString("DNS_NAMESERVER", c.DNS.Nameserver)
	if c.DNS.Timeout, err = envDuration("DNS_TIMEOUT", c.DNS.Timeout); err != nil {
		return err
	}

	s := &c.SMTP
	s.HeloName = envString("SMTP_HELO_NAME", s.HeloName)
	s.MailFrom = envString("SMTP_MAIL_FROM", s.MailFrom)
	if s.UseEHLO, err = envBool("SMTP_USE_EHLO", s.UseEHLO); err != nil {
		return err
	}
	if s.Port, err = envInt("SMTP_PORT", s.Port); err != nil {
		return err
	}
	if s.ConnectTimeout, err = envDuration("SMTP_CONNECT_TIMEOUT", s.ConnectTimeout); err != nil {
		return err
	}
	if s.ResponseTimeout, err = envDuration("SMTP_RESPONSE_TIMEOUT", s.ResponseTimeout); err != nil {
		return err
	}
	if s.GlobalRPS, err = envFloat("SMTP_GLOBAL_RPS", s.GlobalRPS); err != nil {
		return err
	}
	if s.DomainRPS, err = envFloat("SMTP_DOMAIN_RPS", s.DomainRPS); err != nil {
		return err
	}
	s.SOCKS5Proxy = envString("SOCKS5_PROXY", s.SOCKS5Proxy)
	s.ProxyUser = envString("PROXY_USER", s.ProxyUser)
	s.ProxyPassword = envString("PROXY_PASS", s.ProxyPassword)

	v := &c.Validator
	v.BaseURL = envString("VALIDATOR_BASE_URL", v.BaseURL)
	v.APIKey = envString("VALIDATOR_API_KEY", v.APIKey)
	v.APIKeyHeader = envString("VALIDATOR_API_KEY_HEADER", v.APIKeyHeader)
	if v.Timeout, err = envDuration("VALIDATOR_TIMEOUT", v.Timeout); err != nil {
		return err
	}
	if v.PollInterval, err = envDuration("VALIDATOR_POLL_INTERVAL", v.PollInterval); err != nil {
		return err
	}
	if v.MaxPolls, err = envInt("VALIDATOR_MAX_POLLS", v.MaxPolls); err != nil {
		return err
	}
	if v.UnknownRetryDelay, err = envDuration("VALIDATOR_UNKNOWN_RETRY_DELAY", v.UnknownRetryDelay); err != nil {
		return err
	}
	if v.AcceptCatchAll, err = envBool("VALIDATOR_ACCEPT_CATCH_ALL", v.AcceptCatchAll); err != nil {
		return err
	}
	if v.MaxRetries, err = envInt("VALIDATOR_MAX_RETRIES", v.MaxRetries); err != nil {
		return err
	}

	p := &c.Progress
	p.Backend = envString("PROGRESS_BACKEND", p.Backend)
	p.Path = envString("PROGRESS_FILE", p.Path)
	p.RedisAddr = envString("REDIS_ADDR", p.RedisAddr)
	p.RedisPassword = envString("REDIS_PASSWORD", p.RedisPassword)
	if p.RedisDB, err = envInt("REDIS_DB", p.RedisDB); err != nil {
		return err
	}
	p.RedisKey = envString("REDIS_KEY", p.RedisKey)
	p.DatabaseURL = envString("DATABASE_URL", p.DatabaseURL)
	return nil
}

func envString(varName, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		return v
	}
	return fallback
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
