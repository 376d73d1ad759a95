package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/shpitdev/email-finder/pkg/mockvalidator"
	"github.com/shpitdev/email-finder/pkg/validationapi"
)

func main() {
	addr := defaultString("MOCK_VALIDATOR_ADDR", ":8089")
	apiKey := defaultString("MOCK_VALIDATOR_API_KEY", "")
	keyHeader := defaultString("MOCK_VALIDATOR_API_KEY_HEADER", validationapi.DefaultAPIKeyHeader)
	defaultVerdict := defaultString("MOCK_VALIDATOR_DEFAULT_VERDICT", validationapi.VerdictInvalid)
	verdicts := defaultString("MOCK_VALIDATOR_VERDICTS", "")
	pending := defaultString("MOCK_VALIDATOR_PENDING_POLLS", "0")

	fs := flag.NewFlagSet("mock-validator", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&apiKey, "api-key", apiKey, "Require this API key (empty disables the check)")
	fs.StringVar(&keyHeader, "api-key-header", keyHeader, "Header carrying the API key")
	fs.StringVar(&defaultVerdict, "default-verdict", defaultVerdict, "Verdict for addresses without an explicit one")
	fs.StringVar(&verdicts, "verdicts", verdicts, "Comma-separated address=verdict pairs (also supports env: MOCK_VALIDATOR_VERDICTS)")
	fs.StringVar(&pending, "pending-polls", pending, "Polls that report processing before a job completes")
	_ = fs.Parse(os.Args[1:])

	pendingPolls, err := strconv.Atoi(strings.TrimSpace(pending))
	if err != nil || pendingPolls < 0 {
		_, _ = fmt.Fprintf(os.Stderr, "invalid pending polls %q\n", pending)
		os.Exit(2)
	}

	srv := mockvalidator.New()
	srv.RequireAPIKey(keyHeader, apiKey)
	srv.SetDefaultVerdict(defaultVerdict)
	srv.SetPendingPolls(pendingPolls)
	for _, pair := range splitCSV(verdicts) {
		email, verdict, ok := strings.Cut(pair, "=")
		if !ok {
			_, _ = fmt.Fprintf(os.Stderr, "invalid verdict pair %q (want address=verdict)\n", pair)
			os.Exit(2)
		}
		srv.SetVerdict(email, strings.TrimSpace(verdict))
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-validator listening on %s (default verdict=%s pending polls=%d)\n", addr, defaultVerdict, pendingPolls)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
