package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/sensorrelay/sensorrelay/agent/internal/config"
)

// Certificate states.
const (
	CertValid       = "valid"
	CertExpiring    = "expiring"
	CertExpired     = "expired"
	CertUnreachable = "unreachable"
)

// expiringWithin is the window in which a valid certificate is reported as
// expiring.
const expiringWithin = 30 * 24 * time.Hour

// CertStatus describes the leaf certificate served by a source endpoint.
type CertStatus struct {
	Endpoint string
	Status   string
	DaysLeft int
	Issuer   string
	NotAfter time.Time
}

// Check dials the TLS endpoint for the given source and returns a CertStatus
// describing the leaf certificate.
//
// Returns nil for non-HTTPS endpoints: there is no certificate to inspect.
// Uses a 10-second dial timeout so a slow host does not stall the scrape loop.
func Check(ctx context.Context, src config.Source) *CertStatus {
	return check(ctx, src, time.Now())
}

func check(ctx context.Context, src config.Source, now time.Time) *CertStatus {
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Endpoint: src.Endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = CertUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = CertUnreachable
		return cs
	}

	leaf := peerCerts[0]
	remaining := leaf.NotAfter.Sub(now)

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(remaining.Hours() / 24))
	cs.Status = statusFor(remaining)
	return cs
}

func statusFor(remaining time.Duration) string {
	switch {
	case remaining <= 0:
		return CertExpired
	case remaining <= expiringWithin:
		return CertExpiring
	default:
		return CertValid
	}
}
