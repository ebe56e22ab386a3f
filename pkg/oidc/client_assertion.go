package oidc

// ClientAssertionParams are the form parameters carrying a private_key_jwt
// client authentication on token, introspection, revocation and PAR requests.
type ClientAssertionParams struct {
	ClientAssertion     string `schema:"client_assertion"`
	ClientAssertionType string `schema:"client_assertion_type"`
}

// ClientAssertionClaims are the claims of a private_key_jwt client assertion.
//
// https://openid.net/specs/openid-connect-core-1_0.html#ClientAuthentication
type ClientAssertionClaims struct {
	Issuer    string   `json:"iss"`
	Subject   string   `json:"sub"`
	Audience  Audience `json:"aud"`
	JWTID     string   `json:"jti"`
	ExpiresAt Time     `json:"exp"`
	NotBefore Time     `json:"nbf"`
	IssuedAt  Time     `json:"iat"`

	// SignatureAlg is set by CheckSignature after the JWS has been verified.
	SignatureAlg string `json:"-"`
}

func (c *ClientAssertionClaims) GetIssuer() string {
	return c.Issuer
}

func (c *ClientAssertionClaims) GetAudience() []string {
	return c.Audience
}

func (c *ClientAssertionClaims) SetSignatureAlg(alg string) {
	c.SignatureAlg = alg
}
