package gateway

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/snarehq/snare/pkg/api"
)

// categorize maps a transport error onto the record error taxonomy.
func categorize(err error) api.ErrorCategory {
	if err == nil {
		return api.ErrorOther
	}

	if errors.Is(err, context.Canceled) {
		return api.ErrorCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return api.ErrorTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return api.ErrorDNS
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) || errors.As(err, &recordErr) {
		return api.ErrorTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return api.ErrorTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return api.ErrorNoConnection
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return api.ErrorUnreachable
	}

	// url.Error from net/http wraps the cause but some TLS alerts only
	// surface as text.
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:") {
		return api.ErrorTLS
	}

	return api.ErrorOther
}
