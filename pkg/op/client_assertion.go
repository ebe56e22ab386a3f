package op

import (
	"context"
	"errors"
	"log/slog"
	"time"

	jose "github.com/go-jose/go-jose/v3"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// assertion validation sub-reasons, logged for audit but never echoed to
// the caller: the externally visible error stays a bare invalid_client.
const (
	reasonExpired       = "expired"
	reasonBadAudience   = "bad_audience"
	reasonBadLifetime   = "bad_lifetime"
	reasonBadSignature  = "bad_signature"
	reasonMissingExpiry = "missing_expiry"
	reasonNotYetValid   = "not_yet_valid"
	reasonReplay        = "replay_detected"
	reasonBadIssuer     = "bad_issuer"
	reasonUnparseable   = "unparseable"
)

// ClientAuthenticator validates private_key_jwt client assertions combined
// with the mutual-TLS certificate credential of the transport layer.
type ClientAuthenticator struct {
	Config      *Config
	ReplayCache TokenReplayCache
	Events      EventSink
	Logger      *slog.Logger
}

// clientAuthRequest accumulates the state of one authentication pass.
// It lives for a single request and is never shared.
type clientAuthRequest struct {
	assertion   string
	mtls        MTLSCredential
	trustedKeys *jose.JSONWebKeySet
	clientID    string

	payload []byte
	claims  oidc.ClientAssertionClaims
}

// Authenticate validates the client assertion and mTLS credential for clientID
// against the client's trusted keys. On success it returns the certificate
// confirmation to be embedded into issued tokens (certificate-bound access tokens).
func (a *ClientAuthenticator) Authenticate(ctx context.Context, assertion string, mtls MTLSCredential, trustedKeys *jose.JSONWebKeySet, clientID string) (*oidc.Confirmation, *oidc.Error) {
	req := &clientAuthRequest{
		assertion:   assertion,
		mtls:        mtls,
		trustedKeys: trustedKeys,
		clientID:    clientID,
	}
	chain := &Chain[*clientAuthRequest]{
		Groups: []Group[*clientAuthRequest]{
			{
				Name:        "mtls",
				CascadeStop: true,
				Steps: []Step[*clientAuthRequest]{
					{Name: "certificate common name", Check: CheckSSLClientCertCNNotFound, Run: a.checkCertCommonName},
					{Name: "certificate thumbprint", Check: CheckSSLClientCertThumbprintMissing, Run: a.checkCertThumbprint},
				},
			},
			{
				Name:        "client_assertion",
				DependsOn:   "mtls",
				CascadeStop: true,
				Steps: []Step[*clientAuthRequest]{
					{Name: "trusted keys", Check: CheckNoKeysToValidateAssertion, Run: a.checkTrustedKeys},
					{Name: "assertion presence", Check: CheckClientAssertionNotFound, Run: a.checkAssertionPresent},
					{Name: "assertion signature", Check: CheckClientAssertionInvalid, Run: a.checkAssertionToken},
					{Name: "jti presence", Check: CheckClientAssertionJTIMissing, Run: a.checkJTIPresent},
					{Name: "jti replay", Check: CheckClientAssertionReplayed, Run: a.checkReplay},
					{Name: "subject binding", Check: CheckClientAssertionSubject, Run: a.checkSubject},
					{Name: "signing algorithm", Check: CheckClientAssertionAlgorithm, Run: a.checkAlgorithm},
				},
			},
		},
		OnFailure: a.onFailure,
		OnSuccess: a.onSuccess,
		Logger:    a.Logger,
	}
	if err := chain.Run(ctx, req); err != nil {
		return nil, err
	}
	return mtls.Confirmation(), nil
}

func (a *ClientAuthenticator) onFailure(ctx context.Context, outcome Outcome) {
	if a.Events == nil {
		return
	}
	switch outcome.Check {
	case CheckSSLClientCertCNNotFound, CheckSSLClientCertThumbprintMissing:
		a.Events.Raise(EventMTLSValidationFailed, outcome.Check)
	default:
		// the transport credential held up, report that partial success
		// before the assertion failure.
		a.Events.Raise(EventMTLSValidated, CheckUnknown)
		a.Events.Raise(EventClientAuthFailed, outcome.Check)
	}
}

func (a *ClientAuthenticator) onSuccess(ctx context.Context) {
	if a.Events == nil {
		return
	}
	a.Events.Raise(EventMTLSValidated, CheckUnknown)
	a.Events.Raise(EventClientAssertionValidated, CheckUnknown)
}

func (a *ClientAuthenticator) checkCertCommonName(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	if req.mtls.CommonName == "" {
		return oidc.ErrInvalidClient().WithDescription("client certificate common name not found")
	}
	return nil
}

func (a *ClientAuthenticator) checkCertThumbprint(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	if req.mtls.Thumbprint == "" {
		return oidc.ErrInvalidClient().WithDescription("client certificate thumbprint not found")
	}
	return nil
}

func (a *ClientAuthenticator) checkTrustedKeys(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	if req.trustedKeys == nil || len(req.trustedKeys.Keys) == 0 {
		return oidc.ErrInvalidClient().WithDescription("no keys registered to validate client assertion")
	}
	return nil
}

func (a *ClientAuthenticator) checkAssertionPresent(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	if req.assertion == "" {
		return oidc.ErrInvalidClient().WithDescription("client assertion missing")
	}
	if len(req.assertion) > a.Config.maxAssertionLength() {
		return oidc.ErrInvalidClient().WithDescription("client assertion exceeds maximum length")
	}
	return nil
}

// checkAssertionToken verifies structure, signature and time claims of the
// assertion. Every failure maps to a fixed sub-reason for logging; the
// returned error carries no detail.
func (a *ClientAuthenticator) checkAssertionToken(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	payload, err := oidc.ParseToken(req.assertion, &req.claims)
	if err != nil {
		return a.invalidAssertion(ctx, reasonUnparseable, err)
	}
	req.payload = payload

	if req.claims.Issuer != req.clientID {
		return a.invalidAssertion(ctx, reasonBadIssuer, oidc.ErrIssuerInvalid)
	}
	if err := oidc.CheckAudience(req.claims.Audience, a.Config.audiences()); err != nil {
		return a.invalidAssertion(ctx, reasonBadAudience, err)
	}
	if err := oidc.CheckExpiration(req.claims.ExpiresAt.AsTime(), a.Config.clockSkew()); err != nil {
		if errors.Is(err, oidc.ErrExpirationMissing) {
			return a.invalidAssertion(ctx, reasonMissingExpiry, err)
		}
		return a.invalidAssertion(ctx, reasonExpired, err)
	}
	if err := oidc.CheckNotBefore(req.claims.NotBefore.AsTime(), a.Config.clockSkew()); err != nil {
		return a.invalidAssertion(ctx, reasonNotYetValid, err)
	}
	if err := oidc.CheckIssuedAt(req.claims.IssuedAt.AsTime(), a.Config.clockSkew()); err != nil {
		return a.invalidAssertion(ctx, reasonBadLifetime, err)
	}

	keySet := &staticKeySet{keys: req.trustedKeys}
	if err := oidc.CheckSignature(ctx, req.assertion, payload, &req.claims, a.Config.SupportedSignAlgs, keySet); err != nil {
		return a.invalidAssertion(ctx, reasonBadSignature, err)
	}
	return nil
}

func (a *ClientAuthenticator) checkJTIPresent(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	if req.claims.JWTID == "" {
		return oidc.ErrInvalidClient().WithDescription("client assertion jti missing")
	}
	return nil
}

// checkReplay inserts the jti into the replay cache atomically. It runs
// before any other jti-dependent logic so two concurrent presentations of
// the same assertion cannot both pass.
func (a *ClientAuthenticator) checkReplay(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	expiry := assertionExpiry(req.claims.ExpiresAt.AsTime(), a.Config.clockSkew())
	added, err := a.ReplayCache.TryAdd(ctx, req.claims.JWTID, expiry)
	if err != nil {
		// a cache that cannot answer fails closed
		return a.invalidAssertion(ctx, reasonReplay, err)
	}
	if !added {
		return a.invalidAssertion(ctx, reasonReplay, nil)
	}
	return nil
}

func (a *ClientAuthenticator) checkSubject(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	sub := req.claims.Subject
	if sub == "" {
		return oidc.ErrInvalidClient().WithDescription("client assertion sub missing")
	}
	if len(sub) > a.Config.maxParamLength() {
		return oidc.ErrInvalidClient().WithDescription("client assertion sub exceeds maximum length")
	}
	if sub != req.claims.Issuer || sub != req.clientID {
		return a.invalidAssertion(ctx, reasonBadIssuer, oidc.ErrSubjectInvalid)
	}
	return nil
}

func (a *ClientAuthenticator) checkAlgorithm(ctx context.Context, req *clientAuthRequest) *oidc.Error {
	if !oidc.ContainsString(a.Config.SupportedSignAlgs, req.claims.SignatureAlg) {
		return oidc.ErrInvalidClient().WithDescription("client assertion signing algorithm not allowed")
	}
	return nil
}

// invalidAssertion logs the sub-reason and returns the generic error,
// avoiding information leakage about why authentication failed.
func (a *ClientAuthenticator) invalidAssertion(ctx context.Context, reason string, cause error) *oidc.Error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "client assertion rejected", "reason", reason, "cause", cause)
	return oidc.ErrInvalidClient().WithDescription("client assertion validation failed").WithParent(cause)
}

// staticKeySet verifies a JWS against the keys registered for a client.
type staticKeySet struct {
	keys *jose.JSONWebKeySet
}

func (s *staticKeySet) VerifySignature(ctx context.Context, jws *jose.JSONWebSignature) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keyID, alg := oidc.GetKeyIDAndAlg(jws)
	key, err := oidc.FindMatchingKey(keyID, oidc.KeyUseSignature, alg, s.keys.Keys...)
	if err != nil {
		return nil, err
	}
	return jws.Verify(&key)
}

// assertionExpiry bounds the replay cache entry lifetime to the assertion's
// own validity window plus the permitted skew.
func assertionExpiry(exp time.Time, skew time.Duration) time.Time {
	return exp.Add(skew)
}
