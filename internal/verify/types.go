package verify

import (
	"context"
)

// HostAttempt records one SMTP session against one MX host.
type HostAttempt struct {
	Host   string
	Stage  string
	Code   int
	Reason string
}

// ProbeResult is the SMTP-level verdict for a single address.
type ProbeResult struct {
	Address  string
	Accepted bool
	Reason   string

	// Host and Code describe the session that produced the verdict, if any.
	Host string
	Code int

	Attempts []HostAttempt
}

// ValidationResult is the external validator's verdict for a single address.
type ValidationResult struct {
	Accepted bool
	Verdict  string
	Reason   string
}

// Resolver maps a domain to its mail exchangers, most preferred first.
// Failures yield an empty list.
type Resolver interface {
	Resolve(ctx context.Context, domain string) []string
}

// Prober checks whether any of mxHosts accepts address as a recipient.
type Prober interface {
	Probe(ctx context.Context, address string, mxHosts []string) ProbeResult
}

// CatchAllDetector reports whether a domain's mail exchangers accept any recipient.
type CatchAllDetector interface {
	Detect(ctx context.Context, domain string, mxHosts []string) bool
}

// Validator asks an independent service whether address is deliverable.
// Implementations never return errors; failures are REJECT verdicts with a reason.
type Validator interface {
	Validate(ctx context.Context, address string) ValidationResult
}
