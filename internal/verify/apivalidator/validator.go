package apivalidator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shpitdev/email-finder/internal/verify"
	"github.com/shpitdev/email-finder/pkg/pipeline/redact"
	"github.com/shpitdev/email-finder/pkg/pipeline/worker"
	"github.com/shpitdev/email-finder/pkg/validationapi"
	"github.com/sirupsen/logrus"
)

const (
	ReasonDeadline       = "no result before deadline"
	ReasonUnknownRetried = "verdict unknown after retry"
)

// API is the subset of the validation API client used here.
type API interface {
	Submit(ctx context.Context, address string) (validationapi.Job, error)
	Status(ctx context.Context, jobID string) (validationapi.JobResult, error)
}

type Config struct {
	// PollInterval is the wait before each status poll. Defaults to 3s.
	PollInterval time.Duration
	// MaxPolls bounds status polls per submission. Defaults to 10.
	MaxPolls int
	// UnknownRetryDelay is the wait before re-submitting an address that came back unknown.
	// Defaults to 5s.
	UnknownRetryDelay time.Duration

	AcceptCatchAll bool

	// Retry controls retries of transient submit failures.
	Retry worker.Options

	// APIKey is scrubbed from any reason that echoes it.
	APIKey string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 10
	}
	if c.UnknownRetryDelay <= 0 {
		c.UnknownRetryDelay = 5 * time.Second
	}
	return c
}

// Validator submits addresses to the external validation service and polls for a verdict.
type Validator struct {
	api API
	cfg Config
	log logrus.FieldLogger
}

var _ verify.Validator = (*Validator)(nil)

func New(api API, cfg Config, log logrus.FieldLogger) *Validator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Validator{api: api, cfg: cfg.withDefaults(), log: log}
}

// Validate never returns an error: every failure becomes a rejection with a reason.
func (v *Validator) Validate(ctx context.Context, address string) verify.ValidationResult {
	address = strings.ToLower(strings.TrimSpace(address))
	log := v.log.WithField("address", address)

	res, unknown := v.attempt(ctx, address, log)
	if !unknown {
		return res
	}

	log.WithField("delay", v.cfg.UnknownRetryDelay.String()).Debug("unknown verdict, retrying once")
	if err := sleep(ctx, v.cfg.UnknownRetryDelay); err != nil {
		return reject("", "cancelled: "+err.Error())
	}
	res, unknown = v.attempt(ctx, address, log)
	if unknown {
		return reject(res.Verdict, ReasonUnknownRetried)
	}
	return res
}

// attempt runs one submit+poll cycle. unknown is true when the service could not decide.
func (v *Validator) attempt(ctx context.Context, address string, log logrus.FieldLogger) (verify.ValidationResult, bool) {
	job, err := worker.Retry(ctx, func(c context.Context) (validationapi.Job, error) {
		return v.api.Submit(c, address)
	}, v.cfg.Retry)
	if err != nil {
		reason := v.scrub("submit: " + err.Error())
		log.WithField("reason", reason).Warn("validation submit failed")
		return reject("", reason), false
	}

	for poll := 1; poll <= v.cfg.MaxPolls; poll++ {
		if err := sleep(ctx, v.cfg.PollInterval); err != nil {
			return reject("", "cancelled: "+err.Error()), false
		}
		st, err := v.api.Status(ctx, job.ID)
		if err != nil {
			reason := v.scrub("status: " + err.Error())
			if ctx.Err() == nil && worker.IsTransient(err) {
				log.WithFields(logrus.Fields{"poll": poll, "reason": reason}).Debug("transient status error")
				continue
			}
			log.WithField("reason", reason).Warn("validation status failed")
			return reject("", reason), false
		}
		if !st.Terminal() {
			continue
		}
		return v.decide(st)
	}

	log.WithField("polls", v.cfg.MaxPolls).Warn("validation poll budget exhausted")
	return reject("", ReasonDeadline), false
}

func (v *Validator) decide(st validationapi.JobResult) (verify.ValidationResult, bool) {
	status := strings.ToLower(strings.TrimSpace(st.Status))
	verdict := strings.ToLower(strings.TrimSpace(st.Result))
	detail := v.scrub(strings.TrimSpace(st.Reason))

	if status == validationapi.StatusFailed {
		if detail == "" {
			detail = "validation job failed"
		}
		return reject(validationapi.StatusFailed, detail), false
	}

	switch verdict {
	case validationapi.VerdictValid:
		return verify.ValidationResult{Accepted: true, Verdict: verdict, Reason: withDetail("validator: valid", detail)}, false
	case validationapi.VerdictInvalid, validationapi.VerdictDisposable, validationapi.StatusFailed:
		return reject(verdict, withDetail("validator: "+verdict, detail)), false
	case validationapi.VerdictCatchAll, "catch_all", "accept_all":
		if v.cfg.AcceptCatchAll {
			return verify.ValidationResult{Accepted: true, Verdict: verdict, Reason: withDetail("validator: catch-all accepted", detail)}, false
		}
		return reject(verdict, withDetail("validator: catch-all", detail)), false
	default:
		return reject(verdict, withDetail(fmt.Sprintf("validator: %q", verdict), detail)), true
	}
}

func (v *Validator) scrub(s string) string {
	return redact.Secrets(redact.Value(s, v.cfg.APIKey))
}

func reject(verdict, reason string) verify.ValidationResult {
	return verify.ValidationResult{Verdict: verdict, Reason: reason}
}

func withDetail(reason, detail string) string {
	if detail == "" {
		return reason
	}
	return reason + " (" + detail + ")"
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
