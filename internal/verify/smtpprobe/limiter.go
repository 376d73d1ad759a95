package smtpprobe

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// LimiterConfig sets session rates. Zero values fall back to the defaults.
type LimiterConfig struct {
	GlobalRPS float64
	DomainRPS float64

	// Overrides sets per-domain rates, e.g. stricter limits for large mailbox providers.
	Overrides map[string]float64
}

// DefaultOverrides are conservative rates for providers known to throttle probes.
func DefaultOverrides() map[string]float64 {
	return map[string]float64{
		"gmail.com":      2,
		"googlemail.com": 2,
		"outlook.com":    1,
		"hotmail.com":    1,
		"live.com":       1,
		"yahoo.com":      1,
	}
}

// DomainLimiter paces SMTP sessions with one global limiter and one limiter per domain.
type DomainLimiter struct {
	global    *rate.Limiter
	domainRPS float64
	overrides map[string]float64

	mu      sync.Mutex
	domains map[string]*rate.Limiter
}

func NewDomainLimiter(cfg LimiterConfig) *DomainLimiter {
	if cfg.GlobalRPS <= 0 {
		cfg.GlobalRPS = 10
	}
	if cfg.DomainRPS <= 0 {
		cfg.DomainRPS = 5
	}
	overrides := make(map[string]float64, len(cfg.Overrides))
	for d, rps := range cfg.Overrides {
		overrides[strings.ToLower(strings.TrimSpace(d))] = rps
	}
	return &DomainLimiter{
		global:    rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst(cfg.GlobalRPS)),
		domainRPS: cfg.DomainRPS,
		overrides: overrides,
		domains:   make(map[string]*rate.Limiter),
	}
}

func burst(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(rps)
}

// Wait blocks until both the global and the domain limiter allow another session.
func (l *DomainLimiter) Wait(ctx context.Context, domain string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.forDomain(domain).Wait(ctx)
}

// Rate returns the session rate applied to domain.
func (l *DomainLimiter) Rate(domain string) float64 {
	return float64(l.forDomain(domain).Limit())
}

func (l *DomainLimiter) forDomain(domain string) *rate.Limiter {
	domain = strings.ToLower(strings.TrimSpace(domain))

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.domains[domain]; ok {
		return lim
	}
	rps := l.domainRPS
	if o, ok := l.overrides[domain]; ok && o > 0 {
		rps = o
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst(rps))
	l.domains[domain] = lim
	return lim
}
