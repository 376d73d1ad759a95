package smtpprobe

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shpitdev/email-finder/internal/verify"
	"github.com/sirupsen/logrus"
)

// CatchAllDetector flags domains whose mail exchangers accept any recipient by probing
// an address that cannot exist.
type CatchAllDetector struct {
	prober verify.Prober
	log    logrus.FieldLogger
}

var _ verify.CatchAllDetector = (*CatchAllDetector)(nil)

func NewCatchAllDetector(prober verify.Prober, log logrus.FieldLogger) *CatchAllDetector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CatchAllDetector{prober: prober, log: log}
}

func randomLocalPart() string {
	return "nx-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Detect reports true only when the bogus address is accepted. Inconclusive probes count
// as not catch-all.
func (d *CatchAllDetector) Detect(ctx context.Context, domain string, mxHosts []string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || len(mxHosts) == 0 {
		return false
	}
	addr := randomLocalPart() + "@" + domain
	res := d.prober.Probe(ctx, addr, mxHosts)
	d.log.WithFields(logrus.Fields{
		"domain":   domain,
		"catchAll": res.Accepted,
		"reason":   res.Reason,
	}).Debug("catch-all probe")
	return res.Accepted
}
