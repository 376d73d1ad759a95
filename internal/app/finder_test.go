package app_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shpitdev/email-finder/internal/app"
	"github.com/shpitdev/email-finder/internal/config"
	"github.com/shpitdev/email-finder/pkg/mockvalidator"
	"github.com/shpitdev/email-finder/pkg/validationapi"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mailServer accepts RCPT for a fixed set of recipients and rejects the rest.
type mailServer struct {
	addr     string
	sessions atomic.Int32

	mu   sync.Mutex
	rcpt []string
}

func startMailServer(t *testing.T, accept ...string) *mailServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ok := make(map[string]bool, len(accept))
	for _, a := range accept {
		ok[a] = true
	}
	s := &mailServer{addr: ln.Addr().String()}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.sessions.Add(1)
			go s.serve(conn, ok)
		}
	}()
	return s
}

func (s *mailServer) serve(conn net.Conn, accept map[string]bool) {
	defer conn.Close()
	w := bufio.NewWriter(conn)
	reply := func(line string) {
		_, _ = w.WriteString(line + "\r\n")
		_ = w.Flush()
	}
	reply("220 mx.example.com ESMTP")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		switch upper := strings.ToUpper(cmd); {
		case strings.HasPrefix(upper, "HELO"), strings.HasPrefix(upper, "EHLO"):
			reply("250 mx.example.com")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			reply("250 2.1.0 ok")
		case strings.HasPrefix(upper, "RCPT TO:"):
			addr := strings.Trim(cmd[len("RCPT TO:"):], "<>")
			s.mu.Lock()
			s.rcpt = append(s.rcpt, addr)
			s.mu.Unlock()
			if accept[addr] {
				reply("250 2.1.5 ok")
			} else {
				reply("550 5.1.1 user unknown")
			}
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

type staticResolver struct{ hosts []string }

func (r staticResolver) Resolve(context.Context, string) []string { return r.hosts }

func testConfig(t *testing.T, validatorURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output = filepath.Join(dir, "verified.csv")
	cfg.Progress.Path = filepath.Join(dir, "progress.json")
	cfg.SMTP.GlobalRPS = 1000
	cfg.SMTP.DomainRPS = 1000
	cfg.SMTP.ConnectTimeout = 2 * time.Second
	cfg.SMTP.ResponseTimeout = 2 * time.Second
	cfg.Validator.BaseURL = validatorURL
	cfg.Validator.PollInterval = time.Millisecond
	cfg.Validator.UnknownRetryDelay = time.Millisecond
	return cfg
}

func writeInput(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRunLocal_EndToEndAgainstFakes(t *testing.T) {
	mail := startMailServer(t, "jane.doe@example.com", "bob@example.com")

	validator := mockvalidator.New()
	validator.SetVerdict("jane.doe@example.com", validationapi.VerdictValid)
	validator.SetPendingPolls(1)
	ts := httptest.NewServer(validator.Handler())
	defer ts.Close()

	cfg := testConfig(t, ts.URL)
	input := writeInput(t, "Full Name,Website\nJane Doe,Example.com\nBob Stone,example.com\n jane  doe ,example.com\n,example.com\n")
	comps := app.Components{Resolver: staticResolver{hosts: []string{mail.addr}}}
	log, _ := test.NewNullLogger()

	report, err := app.RunLocal(context.Background(), cfg, input, comps, log)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 1, report.NotFound)

	out, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, "name,domain,email,method\nJane Doe,example.com,jane.doe@example.com,smtp+api\n", string(out))

	b, err := os.ReadFile(cfg.Progress.Path)
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(b, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "jane.doe@example.com", records[0]["email"])
	assert.Nil(t, records[1]["email"])

	// bob@ passed SMTP but the validator said invalid.
	assert.Equal(t, 1, validator.Submissions("bob@example.com"))

	sessions := mail.sessions.Load()
	require.NoError(t, os.Remove(cfg.Output))

	again, err := app.RunLocal(context.Background(), cfg, input, comps, log)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Skipped)
	assert.Equal(t, 0, again.Processed)
	assert.Equal(t, sessions, mail.sessions.Load(), "resumed run must not open SMTP sessions")
	_, err = os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(err), "no output when nothing was verified")
}

func TestRunLocal_SkipValidation(t *testing.T) {
	mail := startMailServer(t, "ann@example.com")
	cfg := testConfig(t, "")
	cfg.SkipValidation = true

	input := writeInput(t, "name,domain\nAnn,example.com\n")
	log, _ := test.NewNullLogger()
	report, err := app.RunLocal(context.Background(), cfg, input, app.Components{
		Resolver: staticResolver{hosts: []string{mail.addr}},
	}, log)
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "smtp", report.Records[0].Method)
}

func TestRunLocal_InputErrors(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.SkipValidation = true
	log, _ := test.NewNullLogger()

	_, err := app.RunLocal(context.Background(), cfg, filepath.Join(t.TempDir(), "missing.csv"), app.Components{}, log)
	assert.ErrorContains(t, err, "read input")

	_, err = app.RunLocal(context.Background(), cfg, writeInput(t, "email\nx@example.com\n"), app.Components{}, log)
	assert.ErrorContains(t, err, "read input")
}

func TestNewProber_WarnsOnLocalhostSender(t *testing.T) {
	cfg := testConfig(t, "")
	log, hook := test.NewNullLogger()

	_, err := app.NewProber(cfg, nil, log)
	require.NoError(t, err)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "smtp.helo_name")

	hook.Reset()
	cfg.SMTP.MailFrom = "probe@localhost"
	_, err = app.NewProber(cfg, nil, log)
	require.NoError(t, err)
	assert.Len(t, hook.AllEntries(), 2)

	hook.Reset()
	cfg.SMTP.HeloName = "probe.example.net"
	cfg.SMTP.MailFrom = "verify@example.net"
	_, err = app.NewProber(cfg, nil, log)
	require.NoError(t, err)
	assert.Empty(t, hook.AllEntries())
}

func TestCheckAddress(t *testing.T) {
	mail := startMailServer(t, "jane@example.com")

	validator := mockvalidator.New()
	validator.SetVerdict("jane@example.com", validationapi.VerdictValid)
	ts := httptest.NewServer(validator.Handler())
	defer ts.Close()

	cfg := testConfig(t, ts.URL)
	log, _ := test.NewNullLogger()
	comps := app.Components{Resolver: staticResolver{hosts: []string{mail.addr}}}

	res, err := app.CheckAddress(context.Background(), cfg, "Jane@Example.com", comps, log)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", res.Address)
	assert.False(t, res.CatchAll)
	assert.True(t, res.Probe.Accepted)
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.Accepted)
	assert.True(t, res.Deliverable())

	res, err = app.CheckAddress(context.Background(), cfg, "nobody@example.com", comps, log)
	require.NoError(t, err)
	assert.False(t, res.Probe.Accepted)
	assert.Nil(t, res.Validation)
	assert.False(t, res.Deliverable())

	_, err = app.CheckAddress(context.Background(), cfg, "not-an-address", comps, log)
	assert.Error(t, err)
}
