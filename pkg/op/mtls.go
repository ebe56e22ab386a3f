package op

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"net/http"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// MTLSCredential is the client identity extracted from the transport-layer
// certificate. Both fields must be set before any token-level check runs.
type MTLSCredential struct {
	CommonName string
	Thumbprint string
}

// MTLSCredentialFromRequest extracts the mTLS credential from the TLS
// connection state, or from the headers a terminating proxy forwards the
// certificate identity in.
func MTLSCredentialFromRequest(r *http.Request, commonNameHeader, thumbprintHeader string) MTLSCredential {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		cert := r.TLS.PeerCertificates[0]
		return MTLSCredential{
			CommonName: cert.Subject.CommonName,
			Thumbprint: CertThumbprint(cert),
		}
	}
	return MTLSCredential{
		CommonName: r.Header.Get(commonNameHeader),
		Thumbprint: r.Header.Get(thumbprintHeader),
	}
}

// Confirmation returns the RFC 8705 cnf claim binding issued tokens
// to this client certificate.
func (c MTLSCredential) Confirmation() *oidc.Confirmation {
	if c.Thumbprint == "" {
		return nil
	}
	return &oidc.Confirmation{X5tS256: c.Thumbprint}
}

// CertThumbprint calculates the base64url SHA-256 thumbprint of a certificate,
// the value carried in the x5t#S256 confirmation member.
func CertThumbprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
