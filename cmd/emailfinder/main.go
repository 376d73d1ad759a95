package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shpitdev/email-finder/internal/config"
	"github.com/shpitdev/email-finder/internal/version"
	"github.com/shpitdev/email-finder/pkg/pipeline/redact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := dispatch(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func dispatch(ctx context.Context, args []string) int {
	if len(args) < 1 {
		usage(os.Stderr)
		return 2
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	switch args[0] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return 0
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
		return 0
	case "run":
		return runBatch(ctx, args[1:])
	case "check":
		return runCheck(ctx, args[1:])
	case "candidates":
		return runCandidates(args[1:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		usage(os.Stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `emailfinder: find and verify work email addresses from names and domains

Usage:
  emailfinder <command> [flags]

Commands:
  run         Search addresses for every (name, domain) row of an input CSV
  check       Probe and validate a single address
  candidates  Print the candidate addresses for a name and domain
  version     Print the version

Examples:
  emailfinder run --input people.csv --output verified.csv
  emailfinder check --email jane.doe@example.com
  emailfinder candidates --name "Jane Doe" --domain example.com

Environment (read after an optional .env file):
  VALIDATOR_BASE_URL        Validation API base URL (required unless --skip-validation)
  VALIDATOR_API_KEY         Validation API key
  VALIDATOR_API_KEY_HEADER  Header carrying the key (default X-API-Key)
  SMTP_HELO_NAME            Name announced in HELO/EHLO
  SMTP_MAIL_FROM            Envelope sender used for probes
  SOCKS5_PROXY              host:port of a SOCKS5 proxy for SMTP sessions
  PROXY_USER, PROXY_PASS    SOCKS5 credentials
  DNS_NAMESERVER            Resolver for MX queries (default: /etc/resolv.conf)
  PROGRESS_BACKEND          file, redis or postgres (default file)
  PROGRESS_FILE             Progress file path (default progress.json)
  REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
  DATABASE_URL              PostgreSQL DSN for the postgres backend
  LOG_LEVEL, LOG_FORMAT     Logging level and format (text or json)
  SENTRY_DSN                Report fatal run errors to Sentry

`)
}
