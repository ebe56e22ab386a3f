package oidc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v3"
)

var (
	ErrParse             = errors.New("parsing of token failed")
	ErrMalformedAudience = errors.New("aud claim is neither a string nor an array of strings")
	ErrMalformedTime     = errors.New("timestamp claim is not a number")

	ErrIssuerInvalid     = errors.New("issuer does not match")
	ErrSubjectMissing    = errors.New("sub claim is missing")
	ErrSubjectInvalid    = errors.New("sub must be identical to iss")
	ErrAudience          = errors.New("audience is not valid")
	ErrExpirationMissing = errors.New("exp claim is missing")
	ErrExpired           = errors.New("token has expired")
	ErrNotYetValid       = errors.New("token is not yet valid")
	ErrIatInFuture       = errors.New("issuedAt of token is in the future")

	ErrSignatureMissing        = errors.New("token does not contain a signature")
	ErrSignatureMultiple       = errors.New("token contains multiple signatures")
	ErrSignatureUnsupportedAlg = errors.New("signature algorithm not supported")
	ErrSignatureInvalidPayload = errors.New("signature does not match payload")
)

// SignedToken is implemented by claim structs that record the verified
// signature algorithm (set by CheckSignature).
type SignedToken interface {
	SetSignatureAlg(alg string)
}

// ParseToken decodes the payload segment of a compact JWT into claims
// without verifying the signature. Callers must verify with CheckSignature
// before trusting any claim.
func ParseToken(tokenString string, claims any) ([]byte, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token contains an invalid number of segments", ErrParse)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed jwt payload: %v", ErrParse, err)
	}
	err = json.Unmarshal(payload, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return payload, nil
}

// CheckSignature parses the compact JWS, enforces the signing algorithm
// allow-list and verifies the signature against the given key set.
// On success the verified algorithm is recorded on the claims.
func CheckSignature(ctx context.Context, token string, payload []byte, claims SignedToken, supportedSigAlgs []string, set KeySet) error {
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(jws.Signatures) == 0 {
		return ErrSignatureMissing
	}
	if len(jws.Signatures) > 1 {
		return ErrSignatureMultiple
	}
	sig := jws.Signatures[0]
	if !ContainsString(supportedSigAlgs, sig.Header.Algorithm) {
		return fmt.Errorf("%w: expected %q got %q", ErrSignatureUnsupportedAlg, supportedSigAlgs, sig.Header.Algorithm)
	}

	signedPayload, err := set.VerifySignature(ctx, jws)
	if err != nil {
		return err
	}
	if !bytes.Equal(signedPayload, payload) {
		return ErrSignatureInvalidPayload
	}

	claims.SetSignatureAlg(sig.Header.Algorithm)
	return nil
}

// CheckAudience verifies that the audience claim contains the expected audience.
func CheckAudience(audience []string, validAudiences []string) error {
	for _, aud := range audience {
		if ContainsString(validAudiences, aud) {
			return nil
		}
	}
	return fmt.Errorf("%w: expected one of %q", ErrAudience, validAudiences)
}

// CheckExpiration verifies the exp claim is present and in the future,
// tolerating the given clock skew.
func CheckExpiration(expiration time.Time, offset time.Duration) error {
	if expiration.IsZero() {
		return ErrExpirationMissing
	}
	expiration = expiration.Round(time.Second)
	if !time.Now().UTC().Add(-offset).Before(expiration) {
		return ErrExpired
	}
	return nil
}

// CheckNotBefore verifies the token is already valid, tolerating the given clock skew.
// A zero nbf passes.
func CheckNotBefore(notBefore time.Time, offset time.Duration) error {
	if notBefore.IsZero() {
		return nil
	}
	notBefore = notBefore.Round(time.Second)
	if time.Now().UTC().Add(offset).Before(notBefore) {
		return ErrNotYetValid
	}
	return nil
}

// CheckIssuedAt verifies the iat claim is not in the future,
// tolerating the given clock skew. A zero iat passes.
func CheckIssuedAt(issuedAt time.Time, offset time.Duration) error {
	if issuedAt.IsZero() {
		return nil
	}
	issuedAt = issuedAt.Round(time.Second)
	now := time.Now().UTC().Add(offset).Round(time.Second)
	if issuedAt.After(now) {
		return fmt.Errorf("%w: (iat: %v, now with offset: %v)", ErrIatInFuture, issuedAt, now)
	}
	return nil
}

func ContainsString(list []string, needle string) bool {
	for _, s := range list {
		if s == needle {
			return true
		}
	}
	return false
}
