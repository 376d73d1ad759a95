package smtpprobe_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shpitdev/email-finder/internal/verify"
	"github.com/shpitdev/email-finder/internal/verify/smtpprobe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	accept bool
	seen   []string
}

func (s *stubProber) Probe(_ context.Context, address string, _ []string) verify.ProbeResult {
	s.seen = append(s.seen, address)
	return verify.ProbeResult{Address: address, Accepted: s.accept}
}

func TestCatchAllDetector(t *testing.T) {
	t.Run("accepting domain is catch-all", func(t *testing.T) {
		p := &stubProber{accept: true}
		d := smtpprobe.NewCatchAllDetector(p, quietLogger())

		assert.True(t, d.Detect(context.Background(), "Example.com", []string{"mx.example.com"}))
		require.Len(t, p.seen, 1)
		assert.True(t, strings.HasSuffix(p.seen[0], "@example.com"))
		assert.True(t, strings.HasPrefix(p.seen[0], "nx-"))
	})

	t.Run("rejecting domain is not catch-all", func(t *testing.T) {
		p := &stubProber{accept: false}
		d := smtpprobe.NewCatchAllDetector(p, quietLogger())
		assert.False(t, d.Detect(context.Background(), "example.com", []string{"mx.example.com"}))
	})

	t.Run("random local parts differ", func(t *testing.T) {
		p := &stubProber{}
		d := smtpprobe.NewCatchAllDetector(p, quietLogger())
		d.Detect(context.Background(), "example.com", []string{"mx.example.com"})
		d.Detect(context.Background(), "example.com", []string{"mx.example.com"})
		require.Len(t, p.seen, 2)
		assert.NotEqual(t, p.seen[0], p.seen[1])
	})

	t.Run("no hosts skips probing", func(t *testing.T) {
		p := &stubProber{accept: true}
		d := smtpprobe.NewCatchAllDetector(p, quietLogger())
		assert.False(t, d.Detect(context.Background(), "example.com", nil))
		assert.Empty(t, p.seen)
	})
}

func TestCatchAllDetector_AgainstServer(t *testing.T) {
	srv := serveSMTP(t, script{rcptDefault: "250 accepted"})
	d := smtpprobe.NewCatchAllDetector(newProber(smtpprobe.Config{}), quietLogger())
	assert.True(t, d.Detect(context.Background(), "example.com", []string{srv.addr}))

	strict := serveSMTP(t, script{})
	assert.False(t, d.Detect(context.Background(), "example.com", []string{strict.addr}))
}
