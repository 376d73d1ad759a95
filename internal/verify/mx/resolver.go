package mx

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const fallbackNameserver = "1.1.1.1:53"

type Config struct {
	// Nameserver is host:port of the recursive resolver to query. Empty uses the first
	// server in /etc/resolv.conf, or 1.1.1.1:53 when that cannot be read.
	Nameserver string
	Timeout    time.Duration
}

// Record is a single MX answer.
type Record struct {
	Host string
	Pref uint16
}

// Resolver looks up MX records with a direct DNS query.
type Resolver struct {
	client     *dns.Client
	nameserver string
	log        logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ns := strings.TrimSpace(cfg.Nameserver)
	if ns == "" {
		ns = systemNameserver()
	} else if _, _, err := net.SplitHostPort(ns); err != nil {
		ns = net.JoinHostPort(ns, "53")
	}
	return &Resolver{
		client:     &dns.Client{Timeout: timeout},
		nameserver: ns,
		log:        log,
	}
}

func systemNameserver() string {
	cc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cc.Servers) == 0 {
		return fallbackNameserver
	}
	return net.JoinHostPort(cc.Servers[0], cc.Port)
}

// Nameserver returns the resolver address queries are sent to.
func (r *Resolver) Nameserver() string {
	return r.nameserver
}

// Resolve returns the domain's MX hosts ordered by preference. Any lookup failure yields
// an empty list.
func (r *Resolver) Resolve(ctx context.Context, domain string) []string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}
	records, err := r.Lookup(ctx, domain)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"domain": domain,
			"error":  err.Error(),
		}).Warn("mx lookup failed")
		return nil
	}
	hosts := Hosts(records)
	r.log.WithFields(logrus.Fields{
		"domain": domain,
		"hosts":  strings.Join(hosts, ","),
	}).Debug("mx resolved")
	return hosts
}

// Lookup queries the nameserver for MX records of domain, retrying over TCP when the UDP
// answer is truncated.
func (r *Resolver) Lookup(ctx context.Context, domain string) ([]Record, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.nameserver)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.nameserver, err)
	}
	if in.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: r.client.Timeout}
		in, _, err = tcp.ExchangeContext(ctx, m, r.nameserver)
		if err != nil {
			return nil, fmt.Errorf("query %s over tcp: %w", r.nameserver, err)
		}
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[in.Rcode])
	}

	var out []Record
	for _, ans := range in.Answer {
		if rr, ok := ans.(*dns.MX); ok {
			out = append(out, Record{
				Host: strings.ToLower(strings.TrimSuffix(rr.Mx, ".")),
				Pref: rr.Preference,
			})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no mx records")
	}
	return out, nil
}

// Hosts orders records by ascending preference, keeping response order among equal
// preferences. Null MX entries and duplicate hosts are dropped.
func Hosts(records []Record) []string {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		return cmp.Compare(a.Pref, b.Pref)
	})

	seen := make(map[string]struct{}, len(sorted))
	out := make([]string, 0, len(sorted))
	for _, rec := range sorted {
		host := strings.TrimSuffix(strings.TrimSpace(rec.Host), ".")
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}
