package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shpitdev/email-finder/internal/progress"
	"github.com/shpitdev/email-finder/internal/verify"
	"github.com/shpitdev/email-finder/internal/verify/candidates"
	"github.com/shpitdev/email-finder/pkg/pipeline/core"
	"github.com/shpitdev/email-finder/pkg/pipeline/redact"
	"github.com/shpitdev/email-finder/pkg/pipeline/schema"
	"github.com/shpitdev/email-finder/pkg/pipeline/worker"
	"github.com/sirupsen/logrus"
)

// Method labels written to the output CSV.
const (
	MethodSMTP            = "smtp"
	MethodSMTPAPI         = "smtp+api"
	MethodSMTPAPICatchAll = "smtp+api (catch-all domain)"
)

type Options struct {
	// SkipValidation trusts an SMTP acceptance on its own, except on catch-all domains.
	SkipValidation bool

	// DetectCatchAll probes each domain once with an address that cannot exist.
	DetectCatchAll bool

	Candidates candidates.Options

	// EntryTimeout bounds the work for one entry. Set to <=0 for no limit.
	EntryTimeout time.Duration
}

// Deps are the collaborators a Finder drives. Detector may be nil when catch-all detection
// is disabled; Validator may be nil when validation is skipped.
type Deps struct {
	Resolver  verify.Resolver
	Prober    verify.Prober
	Detector  verify.CatchAllDetector
	Validator verify.Validator
	Store     progress.Store
}

// Outcome is the result of searching for one entry.
type Outcome struct {
	Entry    schema.Entry
	Email    string
	Found    bool
	Method   string
	CatchAll bool
	MXHosts  []string
	Tried    int
}

// Report summarizes a run.
type Report struct {
	Total            int
	Skipped          int
	Processed        int
	Found            int
	NotFound         int
	Failed           int
	CheckpointErrors int

	Records []schema.VerifiedRecord
}

// Finder walks entries one at a time and checkpoints each completed entry.
type Finder struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time

	mxCache       map[string][]string
	catchAllCache map[string]bool
}

func New(deps Deps, opts Options, log logrus.FieldLogger) (*Finder, error) {
	if deps.Resolver == nil || deps.Prober == nil || deps.Store == nil {
		return nil, fmt.Errorf("finder requires a resolver, a prober and a progress store")
	}
	if opts.DetectCatchAll && deps.Detector == nil {
		return nil, fmt.Errorf("catch-all detection enabled without a detector")
	}
	if !opts.SkipValidation && deps.Validator == nil {
		return nil, fmt.Errorf("validation enabled without a validator")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Finder{
		deps:          deps,
		opts:          opts,
		log:           log,
		now:           time.Now,
		mxCache:       make(map[string][]string),
		catchAllCache: make(map[string]bool),
	}, nil
}

// Run processes entries not yet recorded in the progress store. A progress append failure
// is logged and counted; it does not stop the run. On cancellation the report covers the
// entries completed so far and the context error is returned.
func (f *Finder) Run(ctx context.Context, entries []schema.Entry) (Report, error) {
	report := Report{Total: len(entries)}

	done, err := f.deps.Store.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load progress: %w", err)
	}

	pending := make([]schema.Entry, 0, len(entries))
	seen := make(progress.Set, len(entries))
	for _, e := range entries {
		k := e.Key()
		if done.Has(k) || seen.Has(k) {
			report.Skipped++
			continue
		}
		seen.Add(k)
		pending = append(pending, e)
	}
	f.log.WithFields(logrus.Fields{
		"total":   report.Total,
		"pending": len(pending),
		"skipped": report.Skipped,
	}).Info("starting run")

	_, err = worker.Run(ctx, pending, core.ProcessFunc[schema.Entry, Outcome](f.findOne),
		func(res worker.Result[schema.Entry, Outcome]) error {
			f.record(ctx, &report, res)
			return nil
		},
		worker.Options{RequestTimeout: f.opts.EntryTimeout},
	)
	if err != nil {
		f.log.WithError(err).WithField("processed", report.Processed).Warn("run stopped early")
		return report, err
	}
	return report, nil
}

func (f *Finder) record(ctx context.Context, report *Report, res worker.Result[schema.Entry, Outcome]) {
	e := res.Input
	log := f.log.WithFields(logrus.Fields{"name": e.FullName, "domain": e.Domain})
	if res.Err != nil {
		report.Failed++
		log.WithError(errors.New(redact.Secrets(res.Err.Error()))).Warn("entry failed; it will be retried on the next run")
		return
	}

	out := res.Output
	report.Processed++
	rec := progress.Record{
		Name:      strings.TrimSpace(e.FullName),
		Domain:    e.Key().Domain,
		Found:     out.Found,
		Timestamp: f.now().UTC(),
	}
	if out.Found {
		report.Found++
		email := out.Email
		rec.Email = &email
		report.Records = append(report.Records, schema.VerifiedRecord{
			Name:   rec.Name,
			Domain: rec.Domain,
			Email:  out.Email,
			Method: out.Method,
		})
		log.WithFields(logrus.Fields{"email": out.Email, "method": out.Method}).Info("address verified")
	} else {
		report.NotFound++
		log.WithField("tried", out.Tried).Info("no address verified")
	}

	if err := f.deps.Store.Append(ctx, rec); err != nil {
		report.CheckpointErrors++
		log.WithError(errors.New(redact.Secrets(err.Error()))).Error("progress checkpoint failed")
	}
}

func (f *Finder) findOne(ctx context.Context, e schema.Entry) (Outcome, error) {
	out := Outcome{Entry: e}
	domain := e.Key().Domain
	log := f.log.WithFields(logrus.Fields{"name": e.FullName, "domain": domain})

	out.MXHosts = f.mxHosts(ctx, domain)
	if len(out.MXHosts) == 0 {
		log.Warn("no mail exchangers found; probing anyway")
	}
	if f.opts.DetectCatchAll && len(out.MXHosts) > 0 {
		out.CatchAll = f.isCatchAll(ctx, domain, out.MXHosts)
	}
	if out.CatchAll && f.opts.SkipValidation {
		log.Info("catch-all domain without validation; smtp acceptance is not trusted")
		return out, ctx.Err()
	}

	for _, addr := range candidates.Generate(e.FullName, domain, f.opts.Candidates) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Tried++

		pr := f.deps.Prober.Probe(ctx, addr, out.MXHosts)
		if !pr.Accepted {
			log.WithFields(logrus.Fields{"candidate": addr, "reason": pr.Reason}).Debug("smtp rejected")
			continue
		}
		if f.opts.SkipValidation {
			out.Email, out.Found, out.Method = addr, true, MethodSMTP
			return out, nil
		}

		vr := f.deps.Validator.Validate(ctx, addr)
		if !vr.Accepted {
			log.WithFields(logrus.Fields{"candidate": addr, "reason": vr.Reason}).Debug("validator rejected")
			continue
		}
		out.Email, out.Found, out.Method = addr, true, MethodSMTPAPI
		if out.CatchAll {
			out.Method = MethodSMTPAPICatchAll
		}
		return out, nil
	}
	return out, ctx.Err()
}

func (f *Finder) mxHosts(ctx context.Context, domain string) []string {
	if hosts, ok := f.mxCache[domain]; ok {
		return hosts
	}
	hosts := f.deps.Resolver.Resolve(ctx, domain)
	if ctx.Err() == nil {
		f.mxCache[domain] = hosts
	}
	return hosts
}

func (f *Finder) isCatchAll(ctx context.Context, domain string, mxHosts []string) bool {
	if v, ok := f.catchAllCache[domain]; ok {
		return v
	}
	v := f.deps.Detector.Detect(ctx, domain, mxHosts)
	if ctx.Err() == nil {
		f.catchAllCache[domain] = v
		if v {
			f.log.WithField("domain", domain).Info("domain accepts any recipient")
		}
	}
	return v
}
