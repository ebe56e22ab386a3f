package oidc

type IntrospectionRequest struct {
	Token         string `schema:"token"`
	TokenTypeHint string `schema:"token_type_hint"`
	ClientID      string `schema:"client_id"`
	ClientAssertionParams
}

// IntrospectionResponse implements RFC 7662, section 2.2, extended with the
// `cnf` confirmation member of RFC 8705 for certificate-bound access tokens.
//
// https://www.rfc-editor.org/rfc/rfc7662.html#section-2.2
type IntrospectionResponse struct {
	Active     bool                `json:"active"`
	Scope      SpaceDelimitedArray `json:"scope,omitempty"`
	ClientID   string              `json:"client_id,omitempty"`
	TokenType  string              `json:"token_type,omitempty"`
	Expiration Time                `json:"exp,omitempty"`
	IssuedAt   Time                `json:"iat,omitempty"`
	NotBefore  Time                `json:"nbf,omitempty"`
	Subject    string              `json:"sub,omitempty"`
	Audience   Audience            `json:"aud,omitempty"`
	Issuer     string              `json:"iss,omitempty"`
	JWTID      string              `json:"jti,omitempty"`

	// CDRArrangementID backs the arrangement the token was issued under.
	CDRArrangementID string `json:"cdr_arrangement_id,omitempty"`

	Confirmation *Confirmation `json:"cnf,omitempty"`
}

// Confirmation is the RFC 8705 `cnf` claim binding a token
// to the mTLS client certificate used to obtain it.
type Confirmation struct {
	X5tS256 string `json:"x5t#S256,omitempty"`
}
