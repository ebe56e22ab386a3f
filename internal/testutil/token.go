// Package testutil helps setting up required data for testing,
// such as signed client assertions, request objects and key sets.
package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"time"

	jose "github.com/go-jose/go-jose/v3"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

const (
	SignatureAlgorithm = jose.PS256
	KeyID              = "test-key-1"
)

// KeySet holds a signing key pair and can mint client assertions and
// request objects that verify against its public key set.
type KeySet struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey

	Signer jose.Signer
}

func NewKeySet() *KeySet {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: SignatureAlgorithm,
		Key:       &jose.JSONWebKey{Key: privateKey, KeyID: KeyID},
	}, nil)
	if err != nil {
		panic(err)
	}
	return &KeySet{
		Private: privateKey,
		Public:  &privateKey.PublicKey,
		Signer:  signer,
	}
}

// WebKeySet returns the public half as the JWKS a client would register.
func (k *KeySet) WebKeySet() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       k.Public,
			KeyID:     KeyID,
			Algorithm: string(SignatureAlgorithm),
			Use:       "sig",
		}},
	}
}

// SignClaims marshals and signs arbitrary claims into a compact JWS.
func (k *KeySet) SignClaims(claims any) string {
	payload, err := json.Marshal(claims)
	if err != nil {
		panic(err)
	}
	object, err := k.Signer.Sign(payload)
	if err != nil {
		panic(err)
	}
	token, err := object.CompactSerialize()
	if err != nil {
		panic(err)
	}
	return token
}

// SignClaimsHS256 signs claims with a symmetric key. Tokens signed this way
// carry a valid signature but must be rejected by the algorithm allow-list.
func SignClaimsHS256(claims any, secret []byte) string {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		panic(err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		panic(err)
	}
	object, err := signer.Sign(payload)
	if err != nil {
		panic(err)
	}
	token, err := object.CompactSerialize()
	if err != nil {
		panic(err)
	}
	return token
}

// These variables always result in a valid assertion
// for the same test run.
var (
	ValidIssuer     = "https://op.local"
	ValidClientID   = "client-1"
	ValidAudience   = []string{"https://op.local"}
	ValidJWTID      = "jti-9876"
	ValidIssuedAt   = time.Now().Add(-time.Minute)
	ValidExpiration = ValidIssuedAt.Add(3 * time.Minute)
)

// NewClientAssertion mints a signed private_key_jwt client assertion.
func (k *KeySet) NewClientAssertion(clientID string, audience []string, jti string, expiration time.Time) string {
	return k.SignClaims(&oidc.ClientAssertionClaims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  audience,
		JWTID:     jti,
		ExpiresAt: oidc.FromTime(expiration),
		IssuedAt:  oidc.FromTime(time.Now().Add(-time.Minute)),
	})
}

// ValidClientAssertion mints an assertion from the Valid* variables.
func (k *KeySet) ValidClientAssertion() string {
	return k.NewClientAssertion(ValidClientID, ValidAudience, ValidJWTID, ValidExpiration)
}

// NewRequestObject mints a signed request object for the given request.
func (k *KeySet) NewRequestObject(request oidc.RequestObject) string {
	return k.SignClaims(&request)
}

// VerifySignature implements oidc.KeySet.
func (k *KeySet) VerifySignature(ctx context.Context, jws *jose.JSONWebSignature) (payload []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return jws.Verify(k.Public)
}
