package smtpprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/email-finder/internal/verify"
	"github.com/sirupsen/logrus"
)

const (
	ReasonAllHostsFailed = "all MX hosts failed"
	ReasonNoHosts        = "no MX hosts"
)

// State is a step of the recipient-check session.
type State int

const (
	StateGreeting State = iota
	StateHello
	StateMailFrom
	StateRcptTo
	StateQuit
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "greeting"
	case StateHello:
		return "helo"
	case StateMailFrom:
		return "mail-from"
	case StateRcptTo:
		return "rcpt-to"
	case StateQuit:
		return "quit"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type Config struct {
	// HeloName is announced in HELO/EHLO. It should be a name that resolves to the
	// probing host.
	HeloName string
	UseEHLO  bool

	// MailFrom is the placeholder envelope sender.
	MailFrom string

	// Port is used for hosts given without an explicit port.
	Port int

	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.HeloName) == "" {
		c.HeloName = "localhost"
	}
	if strings.TrimSpace(c.MailFrom) == "" {
		c.MailFrom = "verify@" + c.HeloName
	}
	if c.Port <= 0 {
		c.Port = 25
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 10 * time.Second
	}
	return c
}

// Prober runs recipient checks against a domain's mail exchangers.
type Prober struct {
	cfg     Config
	dialer  Dialer
	limiter *DomainLimiter
	log     logrus.FieldLogger
}

var _ verify.Prober = (*Prober)(nil)

// New constructs a Prober. A nil dialer dials directly; a nil limiter disables pacing.
func New(cfg Config, dialer Dialer, limiter *DomainLimiter, log logrus.FieldLogger) *Prober {
	cfg = cfg.withDefaults()
	if dialer == nil {
		dialer = &net.Dialer{Timeout: cfg.ConnectTimeout}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Prober{cfg: cfg, dialer: dialer, limiter: limiter, log: log}
}

// Probe tries mxHosts in order. The first host that answers RCPT TO decides the verdict;
// hosts whose session fails earlier are recorded and skipped.
func (p *Prober) Probe(ctx context.Context, address string, mxHosts []string) verify.ProbeResult {
	res := verify.ProbeResult{Address: address}
	if len(mxHosts) == 0 {
		res.Reason = ReasonNoHosts
		return res
	}
	domain := domainOf(address)

	for _, host := range mxHosts {
		if err := ctx.Err(); err != nil {
			res.Reason = "cancelled: " + err.Error()
			return res
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, domain); err != nil {
				res.Reason = "cancelled: " + err.Error()
				return res
			}
		}

		s := p.session(ctx, host, address)
		res.Attempts = append(res.Attempts, verify.HostAttempt{
			Host:   host,
			Stage:  s.state.String(),
			Code:   s.code,
			Reason: s.reason,
		})
		entry := p.log.WithFields(logrus.Fields{
			"address": address,
			"host":    host,
			"stage":   s.state.String(),
			"code":    s.code,
		})
		if !s.definitive {
			entry.WithField("reason", s.reason).Debug("smtp session failed")
			continue
		}

		info := Classify(s.code)
		entry.WithFields(logrus.Fields{
			"accepted": s.accepted,
			"category": info.Category,
		}).Debug("smtp rcpt verdict")
		res.Accepted = s.accepted
		res.Reason = s.reason
		res.Host = host
		res.Code = s.code
		return res
	}

	res.Reason = ReasonAllHostsFailed
	return res
}

// session is the outcome of one host conversation.
type session struct {
	state      State
	code       int
	reason     string
	definitive bool
	accepted   bool
}

func (p *Prober) session(ctx context.Context, host, address string) session {
	s := session{state: StateGreeting}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	conn, err := p.dialer.DialContext(dialCtx, "tcp", hostPort(host, p.cfg.Port))
	cancel()
	if err != nil {
		s.reason = fmt.Sprintf("connect to %s: %s", host, describeErr(err))
		return s
	}
	defer func() {
		_ = conn.Close()
	}()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	tp := textproto.NewConn(conn)
	for {
		if cmd := p.command(s.state, address); cmd != "" {
			_ = conn.SetWriteDeadline(time.Now().Add(p.cfg.ResponseTimeout))
			if err := tp.PrintfLine("%s", cmd); err != nil {
				s.reason = fmt.Sprintf("send %s to %s: %s", s.state, host, describeErr(err))
				return s
			}
		}

		_ = conn.SetReadDeadline(time.Now().Add(p.cfg.ResponseTimeout))
		code, msg, err := tp.ReadResponse(0)
		if err != nil {
			var te *textproto.Error
			if errors.As(err, &te) {
				code, msg = te.Code, te.Msg
			} else {
				s.reason = p.readFailure(ctx, s.state, host, err)
				return s
			}
		}
		s.code = code
		line := strings.TrimSpace(fmt.Sprintf("%d %s", code, strings.ReplaceAll(msg, "\n", " ")))

		if s.state == StateRcptTo {
			s.definitive = true
			s.accepted = Positive(code)
			if s.accepted {
				s.reason = "accepted by host " + host
			} else {
				s.reason = line
			}
			p.quit(conn, tp)
			return s
		}
		if !Positive(code) {
			s.reason = fmt.Sprintf("%s rejected by %s: %s", s.state, host, line)
			p.quit(conn, tp)
			return s
		}
		s.state++
	}
}

func (p *Prober) command(state State, address string) string {
	switch state {
	case StateHello:
		verb := "HELO"
		if p.cfg.UseEHLO {
			verb = "EHLO"
		}
		return verb + " " + p.cfg.HeloName
	case StateMailFrom:
		return "MAIL FROM:<" + p.cfg.MailFrom + ">"
	case StateRcptTo:
		return "RCPT TO:<" + address + ">"
	default:
		return ""
	}
}

func (p *Prober) quit(conn net.Conn, tp *textproto.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = tp.PrintfLine("QUIT")
}

func (p *Prober) readFailure(ctx context.Context, state State, host string, err error) string {
	if ctx.Err() != nil {
		return fmt.Sprintf("cancelled during %s with %s", state, host)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Sprintf("timeout waiting for %s response from %s", state, host)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Sprintf("connection closed by %s during %s", host, state)
	}
	return fmt.Sprintf("read %s response from %s: %s", state, host, describeErr(err))
}

func describeErr(err error) string {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Err != nil {
		return oe.Err.Error()
	}
	return err.Error()
}

func hostPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func domainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
