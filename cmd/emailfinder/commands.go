package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shpitdev/email-finder/internal/app"
	"github.com/shpitdev/email-finder/internal/config"
	"github.com/shpitdev/email-finder/internal/verify/candidates"
	"github.com/shpitdev/email-finder/pkg/pipeline/redact"
)

// commonFlags are shared by run and check. Values only override the configuration when the
// flag is given explicitly.
type commonFlags struct {
	configPath     string
	logLevel       string
	skipValidation bool
	noCatchAll     bool
	acceptCatchAll bool
	heloName       string
	proxy          string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Optional YAML config file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (env: LOG_LEVEL)")
	fs.BoolVar(&c.skipValidation, "skip-validation", false, "Trust SMTP acceptance without the validation API (env: SKIP_VALIDATION)")
	fs.BoolVar(&c.noCatchAll, "no-catch-all", false, "Disable catch-all detection (env: DETECT_CATCH_ALL=false)")
	fs.BoolVar(&c.acceptCatchAll, "accept-catch-all", false, "Treat a catch-all verdict from the validation API as deliverable (env: VALIDATOR_ACCEPT_CATCH_ALL)")
	fs.StringVar(&c.heloName, "helo", "", "Name announced in HELO/EHLO (env: SMTP_HELO_NAME)")
	fs.StringVar(&c.proxy, "proxy", "", "SOCKS5 proxy host:port for SMTP sessions (env: SOCKS5_PROXY)")
}

func (c *commonFlags) apply(f *flag.Flag, cfg *config.Config) {
	switch f.Name {
	case "log-level":
		cfg.LogLevel = c.logLevel
	case "skip-validation":
		cfg.SkipValidation = c.skipValidation
	case "no-catch-all":
		cfg.DetectCatchAll = !c.noCatchAll
	case "accept-catch-all":
		cfg.Validator.AcceptCatchAll = c.acceptCatchAll
	case "helo":
		cfg.SMTP.HeloName = c.heloName
	case "proxy":
		cfg.SMTP.SOCKS5Proxy = c.proxy
	}
}

func runBatch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs)
	var inputPath, outputPath, progressPath, progressBackend string
	fs.StringVar(&inputPath, "input", "", "Input CSV with name and domain columns")
	fs.StringVar(&outputPath, "output", "", "Output CSV for verified addresses (env: OUTPUT, default verified_emails.csv)")
	fs.StringVar(&progressPath, "progress", "", "Progress file for resumable runs (env: PROGRESS_FILE)")
	fs.StringVar(&progressBackend, "progress-backend", "", "Progress backend: file, redis, postgres (env: PROGRESS_BACKEND)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(inputPath) == "" {
		_, _ = fmt.Fprintln(os.Stderr, "run requires --input")
		return 2
	}

	cfg, err := loadConfig(fs, &common, func(f *flag.Flag, cfg *config.Config) {
		switch f.Name {
		case "output":
			cfg.Output = outputPath
		case "progress":
			cfg.Progress.Path = progressPath
		case "progress-backend":
			cfg.Progress.Backend = progressBackend
		}
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	log, err := newLogger(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	flush := initSentry(log)
	defer flush()

	report, err := app.RunLocal(ctx, cfg, inputPath, app.Components{}, log)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			reportError("run", err)
		}
		log.WithError(errors.New(redact.Secrets(err.Error()))).Error("run failed")
		return 1
	}
	_, _ = fmt.Fprintf(os.Stdout, "processed=%d found=%d not_found=%d skipped=%d\n",
		report.Processed, report.Found, report.NotFound, report.Skipped)
	return 0
}

func runCheck(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs)
	var address string
	fs.StringVar(&address, "email", "", "Address to check")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(address) == "" {
		_, _ = fmt.Fprintln(os.Stderr, "check requires --email")
		return 2
	}

	cfg, err := loadConfig(fs, &common, nil)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	log, err := newLogger(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}

	res, err := app.CheckAddress(ctx, cfg, address, app.Components{}, log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "check failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	printCheck(os.Stdout, res)
	if !res.Deliverable() {
		return 1
	}
	return 0
}

func printCheck(w io.Writer, res app.CheckResult) {
	_, _ = fmt.Fprintf(w, "address:    %s\n", res.Address)
	_, _ = fmt.Fprintf(w, "mx:         %s\n", strings.Join(res.MXHosts, ", "))
	_, _ = fmt.Fprintf(w, "catch-all:  %t\n", res.CatchAll)
	for _, a := range res.Probe.Attempts {
		_, _ = fmt.Fprintf(w, "  %s stage=%s code=%d %s\n", a.Host, a.Stage, a.Code, a.Reason)
	}
	_, _ = fmt.Fprintf(w, "smtp:       accepted=%t %s\n", res.Probe.Accepted, res.Probe.Reason)
	if res.Validation != nil {
		_, _ = fmt.Fprintf(w, "validator:  accepted=%t verdict=%s %s\n", res.Validation.Accepted, res.Validation.Verdict, res.Validation.Reason)
	}
	_, _ = fmt.Fprintf(w, "deliverable: %t\n", res.Deliverable())
}

func runCandidates(args []string) int {
	fs := flag.NewFlagSet("candidates", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var name, domain string
	var noInitials bool
	fs.StringVar(&name, "name", "", "Full name")
	fs.StringVar(&domain, "domain", "", "Organization domain")
	fs.BoolVar(&noInitials, "no-initials", false, "Omit the f.last and first.l variants")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(domain) == "" {
		_, _ = fmt.Fprintln(os.Stderr, "candidates requires --name and --domain")
		return 2
	}
	for _, addr := range candidates.Generate(name, domain, candidates.Options{InitialVariants: !noInitials}) {
		_, _ = fmt.Fprintln(os.Stdout, addr)
	}
	return 0
}

// loadConfig layers defaults, the config file, the environment and explicitly set flags,
// then validates the result.
func loadConfig(fs *flag.FlagSet, common *commonFlags, extra func(*flag.Flag, *config.Config)) (config.Config, error) {
	cfg, err := config.Load(common.configPath)
	if err != nil {
		return config.Config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		common.apply(f, &cfg)
		if extra != nil {
			extra(f, &cfg)
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
