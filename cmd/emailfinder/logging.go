package main

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shpitdev/email-finder/internal/config"
	"github.com/shpitdev/email-finder/internal/version"
	"github.com/shpitdev/email-finder/pkg/pipeline/redact"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// initSentry enables error reporting when SENTRY_DSN is set. The returned flush must be
// called before exit.
func initSentry(log logrus.FieldLogger) func() {
	dsn := strings.TrimSpace(os.Getenv("SENTRY_DSN"))
	if dsn == "" {
		return func() {}
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: "email-finder@" + version.Current,
	}); err != nil {
		log.WithError(errors.New(redact.Secrets(err.Error()))).Warn("sentry disabled")
		return func() {}
	}
	return func() {
		sentry.Flush(2 * time.Second)
	}
}

func reportError(op string, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("command", op)
		sentry.CaptureException(errors.New(redact.Secrets(err.Error())))
	})
}
