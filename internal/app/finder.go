package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shpitdev/email-finder/internal/config"
	"github.com/shpitdev/email-finder/internal/pipeline"
	"github.com/shpitdev/email-finder/internal/progress"
	"github.com/shpitdev/email-finder/internal/verify"
	"github.com/shpitdev/email-finder/internal/verify/apivalidator"
	"github.com/shpitdev/email-finder/internal/verify/candidates"
	"github.com/shpitdev/email-finder/internal/verify/mx"
	"github.com/shpitdev/email-finder/internal/verify/smtpprobe"
	localio "github.com/shpitdev/email-finder/pkg/pipeline/io/local"
	"github.com/shpitdev/email-finder/pkg/pipeline/worker"
	"github.com/shpitdev/email-finder/pkg/validationapi"
	"github.com/sirupsen/logrus"
)

// Components overrides collaborators that would otherwise be built from configuration.
// Nil fields are built.
type Components struct {
	Resolver  verify.Resolver
	Dialer    smtpprobe.Dialer
	Validator verify.Validator
	Store     progress.Store
}

// RunLocal reads entries from inputPath, searches for each entry's address and writes the
// verified records to cfg.Output. The output file is only written when at least one
// address was verified.
func RunLocal(ctx context.Context, cfg config.Config, inputPath string, comps Components, log logrus.FieldLogger) (pipeline.Report, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("run", uuid.NewString())
	runStart := time.Now()

	entries, err := localio.EntriesFile{Path: inputPath}.Load(ctx)
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("read input: %w", err)
	}
	log.WithFields(logrus.Fields{
		"input":          inputPath,
		"entries":        len(entries),
		"skipValidation": cfg.SkipValidation,
		"detectCatchAll": cfg.DetectCatchAll,
		"progress":       cfg.Progress.Backend,
	}).Info("run start")

	store := comps.Store
	if store == nil {
		store, err = progress.Open(ctx, ProgressConfig(cfg), log)
		if err != nil {
			return pipeline.Report{}, fmt.Errorf("open progress store: %w", err)
		}
		defer func() {
			_ = store.Close()
		}()
	}

	resolver := comps.Resolver
	if resolver == nil {
		resolver = NewResolver(cfg, log)
	}
	prober, err := NewProber(cfg, comps.Dialer, log)
	if err != nil {
		return pipeline.Report{}, err
	}

	deps := pipeline.Deps{
		Resolver: resolver,
		Prober:   prober,
		Store:    store,
	}
	if cfg.DetectCatchAll {
		deps.Detector = smtpprobe.NewCatchAllDetector(prober, log)
	}
	if !cfg.SkipValidation {
		deps.Validator = comps.Validator
		if deps.Validator == nil {
			v, err := NewValidator(cfg, log)
			if err != nil {
				return pipeline.Report{}, err
			}
			deps.Validator = v
		}
	}

	finder, err := pipeline.New(deps, pipeline.Options{
		SkipValidation: cfg.SkipValidation,
		DetectCatchAll: cfg.DetectCatchAll,
		Candidates:     candidates.Options{InitialVariants: cfg.InitialVariants},
		EntryTimeout:   cfg.EntryTimeout,
	}, log)
	if err != nil {
		return pipeline.Report{}, err
	}

	report, runErr := finder.Run(ctx, entries)
	log.WithFields(logrus.Fields{
		"total":            report.Total,
		"skipped":          report.Skipped,
		"processed":        report.Processed,
		"found":            report.Found,
		"notFound":         report.NotFound,
		"failed":           report.Failed,
		"checkpointErrors": report.CheckpointErrors,
		"duration":         time.Since(runStart).Round(time.Millisecond).String(),
	}).Info("search complete")

	if len(report.Records) == 0 {
		log.Info("no verified addresses; output not written")
	} else {
		if err := (localio.RecordsFile{Path: cfg.Output}).Store(ctx, report.Records); err != nil {
			return report, errors.Join(runErr, fmt.Errorf("write output: %w", err))
		}
		log.WithFields(logrus.Fields{"output": cfg.Output, "records": len(report.Records)}).Info("output written")
	}

	if runErr != nil {
		return report, fmt.Errorf("run interrupted: %w", runErr)
	}
	return report, nil
}

// ProgressConfig maps the run configuration onto the progress store settings.
func ProgressConfig(cfg config.Config) progress.Config {
	p := cfg.Progress
	return progress.Config{
		Backend:       p.Backend,
		Path:          p.Path,
		RedisAddr:     p.RedisAddr,
		RedisPassword: p.RedisPassword,
		RedisDB:       p.RedisDB,
		RedisKey:      p.RedisKey,
		DatabaseURL:   p.DatabaseURL,
	}
}

func NewResolver(cfg config.Config, log logrus.FieldLogger) *mx.Resolver {
	return mx.New(mx.Config{Nameserver: cfg.DNS.Nameserver, Timeout: cfg.DNS.Timeout}, log)
}

// NewProber builds the SMTP prober with its rate limiter. A nil dialer is built from the
// proxy settings.
func NewProber(cfg config.Config, dialer smtpprobe.Dialer, log logrus.FieldLogger) (*smtpprobe.Prober, error) {
	s := cfg.SMTP
	warnUnnamedSender(s, log)
	if dialer == nil {
		d, err := smtpprobe.NewDialer(smtpprobe.DialerConfig{
			ConnectTimeout: s.ConnectTimeout,
			SOCKS5Proxy:    s.SOCKS5Proxy,
			ProxyUser:      s.ProxyUser,
			ProxyPassword:  s.ProxyPassword,
		})
		if err != nil {
			return nil, err
		}
		dialer = d
	}
	limiter := smtpprobe.NewDomainLimiter(smtpprobe.LimiterConfig{
		GlobalRPS: s.GlobalRPS,
		DomainRPS: s.DomainRPS,
		Overrides: smtpprobe.DefaultOverrides(),
	})
	return smtpprobe.New(smtpprobe.Config{
		HeloName:        s.HeloName,
		UseEHLO:         s.UseEHLO,
		MailFrom:        s.MailFrom,
		Port:            s.Port,
		ConnectTimeout:  s.ConnectTimeout,
		ResponseTimeout: s.ResponseTimeout,
	}, dialer, limiter, log), nil
}

// warnUnnamedSender flags probe identities that many mail exchangers refuse at HELO or
// MAIL FROM. Those refusals read as "not found" and get checkpointed.
func warnUnnamedSender(s config.SMTPConfig, log logrus.FieldLogger) {
	if log == nil {
		return
	}
	helo := strings.ToLower(strings.TrimSpace(s.HeloName))
	if helo == "" || helo == "localhost" {
		log.WithField("heloName", s.HeloName).Warn("smtp.helo_name is localhost; set SMTP_HELO_NAME to a name that resolves to this host or mail servers may refuse every probe")
	}
	from := strings.ToLower(strings.TrimSpace(s.MailFrom))
	if from == "" {
		return
	}
	if _, domain, _ := strings.Cut(from, "@"); domain == "" || domain == "localhost" {
		log.WithField("mailFrom", s.MailFrom).Warn("smtp.mail_from has no routable domain; set SMTP_MAIL_FROM or mail servers may refuse every probe")
	}
}

func NewValidator(cfg config.Config, log logrus.FieldLogger) (*apivalidator.Validator, error) {
	v := cfg.Validator
	client, err := validationapi.NewClient(validationapi.Config{
		BaseURL:      v.BaseURL,
		APIKey:       v.APIKey,
		APIKeyHeader: v.APIKeyHeader,
		Timeout:      v.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return apivalidator.New(client, apivalidator.Config{
		PollInterval:      v.PollInterval,
		MaxPolls:          v.MaxPolls,
		UnknownRetryDelay: v.UnknownRetryDelay,
		AcceptCatchAll:    v.AcceptCatchAll,
		APIKey:            v.APIKey,
		Retry: worker.Options{
			MaxRetries:        v.MaxRetries,
			BackoffInitial:    500 * time.Millisecond,
			BackoffMax:        5 * time.Second,
			BackoffJitterFrac: 0.2,
		},
	}, log), nil
}

// CheckResult is the diagnostic outcome for a single address.
type CheckResult struct {
	Address    string
	MXHosts    []string
	CatchAll   bool
	Probe      verify.ProbeResult
	Validation *verify.ValidationResult
}

// Deliverable reports whether the address would be accepted by a run with the same settings.
func (r CheckResult) Deliverable() bool {
	if !r.Probe.Accepted {
		return false
	}
	if r.Validation == nil {
		return !r.CatchAll
	}
	return r.Validation.Accepted
}

// CheckAddress runs resolution, catch-all detection, the SMTP probe and, unless disabled,
// external validation for one address.
func CheckAddress(ctx context.Context, cfg config.Config, address string, comps Components, log logrus.FieldLogger) (CheckResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	address = strings.ToLower(strings.TrimSpace(address))
	_, domain, ok := strings.Cut(address, "@")
	if !ok || domain == "" {
		return CheckResult{}, fmt.Errorf("invalid address %q", address)
	}
	out := CheckResult{Address: address}

	resolver := comps.Resolver
	if resolver == nil {
		resolver = NewResolver(cfg, log)
	}
	prober, err := NewProber(cfg, comps.Dialer, log)
	if err != nil {
		return out, err
	}

	out.MXHosts = resolver.Resolve(ctx, domain)
	if cfg.DetectCatchAll && len(out.MXHosts) > 0 {
		out.CatchAll = smtpprobe.NewCatchAllDetector(prober, log).Detect(ctx, domain, out.MXHosts)
	}
	out.Probe = prober.Probe(ctx, address, out.MXHosts)
	if !out.Probe.Accepted || cfg.SkipValidation {
		return out, ctx.Err()
	}

	validator := comps.Validator
	if validator == nil {
		v, err := NewValidator(cfg, log)
		if err != nil {
			return out, err
		}
		validator = v
	}
	res := validator.Validate(ctx, address)
	out.Validation = &res
	return out, ctx.Err()
}
