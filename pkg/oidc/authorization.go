package oidc

import (
	"sort"
	"strings"
)

const (
	// ScopeOpenID defines the scope `openid`
	// OpenID Connect requests MUST contain the `openid` scope value
	ScopeOpenID = "openid"

	// ScopeProfile defines the scope `profile`
	ScopeProfile = "profile"

	// ScopeEmail defines the scope `email`
	ScopeEmail = "email"

	// ResponseTypeCode for the Authorization Code Flow returning a code from the Authorization Server
	ResponseTypeCode ResponseType = "code"

	// ResponseTypeCodeIDToken for the Hybrid Flow returning a code and an id_token directly
	// from the Authorization Server
	ResponseTypeCodeIDToken ResponseType = "code id_token"

	// ResponseTypeIDToken for the Implicit Flow returning id and access tokens directly
	// from the Authorization Server
	ResponseTypeIDToken ResponseType = "id_token token"

	// ResponseTypeIDTokenOnly for the Implicit Flow returning only an id token
	ResponseTypeIDTokenOnly ResponseType = "id_token"

	GrantTypeCode     GrantType = "authorization_code"
	GrantTypeHybrid   GrantType = "hybrid"
	GrantTypeImplicit GrantType = "implicit"

	// GrantTypeRefreshToken defines the grant_type `refresh_token` used for
	// the Token Request in the Refresh Token Flow
	GrantTypeRefreshToken GrantType = "refresh_token"

	// GrantTypeClientCredentials defines the grant_type `client_credentials` used for
	// machine to machine token requests
	GrantTypeClientCredentials GrantType = "client_credentials"

	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
	ResponseModeFormPost ResponseMode = "form_post"

	// ClientAssertionTypeJWTAssertion defines the client_assertion_type
	// `urn:ietf:params:oauth:client-assertion-type:jwt-bearer`
	// used for the private_key_jwt client authentication method
	ClientAssertionTypeJWTAssertion = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// ACRLoA2 is the Consumer Data Right level of assurance 2 (single factor)
	ACRLoA2 = "urn:cds.au:cdr:2"
	// ACRLoA3 is the Consumer Data Right level of assurance 3 (multi factor)
	ACRLoA3 = "urn:cds.au:cdr:3"

	// MaxSharingDuration caps the requested sharing_duration claim at one year, in seconds.
	MaxSharingDuration = 31_536_000
)

type ResponseType string

type GrantType string

type ResponseMode string

// NormalizeResponseType sorts the space-delimited parts of a response_type value
// so that e.g. `id_token code` and `code id_token` compare equal.
func NormalizeResponseType(responseType ResponseType) ResponseType {
	parts := strings.Fields(string(responseType))
	sort.Strings(parts)
	switch strings.Join(parts, " ") {
	case "code":
		return ResponseTypeCode
	case "code id_token":
		return ResponseTypeCodeIDToken
	case "id_token":
		return ResponseTypeIDTokenOnly
	case "id_token token":
		return ResponseTypeIDToken
	}
	return ResponseType(strings.Join(parts, " "))
}

// GrantTypeForResponseType maps a (normalized) response_type to the
// grant type driving the flow.
func GrantTypeForResponseType(responseType ResponseType) (GrantType, bool) {
	switch NormalizeResponseType(responseType) {
	case ResponseTypeCode:
		return GrantTypeCode, true
	case ResponseTypeCodeIDToken:
		return GrantTypeHybrid, true
	case ResponseTypeIDToken, ResponseTypeIDTokenOnly:
		return GrantTypeImplicit, true
	}
	return "", false
}

// ResponseModesForGrantType returns the response modes permitted for a grant type.
// The first entry is the default applied when the request omits response_mode.
func ResponseModesForGrantType(grantType GrantType) []ResponseMode {
	switch grantType {
	case GrantTypeCode:
		return []ResponseMode{ResponseModeQuery, ResponseModeFormPost}
	case GrantTypeHybrid, GrantTypeImplicit:
		return []ResponseMode{ResponseModeFragment, ResponseModeFormPost}
	}
	return nil
}

// RequiresIDToken reports whether the response_type issues an id_token
// directly and therefore demands an OpenID request.
func (r ResponseType) RequiresIDToken() bool {
	switch NormalizeResponseType(r) {
	case ResponseTypeCodeIDToken, ResponseTypeIDToken, ResponseTypeIDTokenOnly:
		return true
	}
	return false
}

// AuthRequest is the merged parameter set of an authorization (or pushed authorization)
// request, populated from the form body and overwritten by the signed request object.
type AuthRequest struct {
	Scopes       Scopes       `schema:"scope"`
	ResponseType ResponseType `schema:"response_type"`
	ResponseMode ResponseMode `schema:"response_mode"`
	ClientID     string       `schema:"client_id"`
	RedirectURI  string       `schema:"redirect_uri"`

	State string `schema:"state"`
	Nonce string `schema:"nonce"`

	Prompt    SpaceDelimitedArray `schema:"prompt"`
	MaxAge    *uint               `schema:"max_age"`
	UILocales Locales             `schema:"ui_locales"`
	LoginHint string              `schema:"login_hint"`
	ACRValues SpaceDelimitedArray `schema:"acr_values"`

	// IDP restricts the request to a specific upstream identity provider.
	IDP string `schema:"idp"`

	CodeChallenge       string              `schema:"code_challenge"`
	CodeChallengeMethod CodeChallengeMethod `schema:"code_challenge_method"`

	// RequestParam is the signed request object JWT. The profile mandates it,
	// so validation fails when it is absent.
	RequestParam string `schema:"request"`
	RequestURI   string `schema:"request_uri"`

	// Claims carries the profile claims member of the request object.
	Claims *ClaimsRequest `schema:"-"`
}

func (a *AuthRequest) GetRedirectURI() string {
	return a.RedirectURI
}

func (a *AuthRequest) GetResponseType() ResponseType {
	return a.ResponseType
}

func (a *AuthRequest) GetResponseMode() ResponseMode {
	return a.ResponseMode
}

func (a *AuthRequest) GetState() string {
	return a.State
}

// RequestObject are the claims of the signed request object JWT.
//
// https://openid.net/specs/openid-connect-core-1_0.html#RequestObject
type RequestObject struct {
	Issuer   string   `json:"iss"`
	Audience Audience `json:"aud"`

	Scopes       Scopes       `json:"scope"`
	ResponseType ResponseType `json:"response_type"`
	ResponseMode ResponseMode `json:"response_mode"`
	ClientID     string       `json:"client_id"`
	RedirectURI  string       `json:"redirect_uri"`
	State        string       `json:"state"`
	Nonce        string       `json:"nonce"`

	Prompt    SpaceDelimitedArray `json:"prompt"`
	MaxAge    *uint               `json:"max_age"`
	UILocales Locales             `json:"ui_locales"`
	LoginHint string              `json:"login_hint"`
	ACRValues SpaceDelimitedArray `json:"acr_values"`
	IDP       string              `json:"idp"`

	CodeChallenge       string              `json:"code_challenge"`
	CodeChallengeMethod CodeChallengeMethod `json:"code_challenge_method"`

	Claims *ClaimsRequest `json:"claims"`

	// Request and RequestURI must never appear inside a request object;
	// nested indirection is rejected outright.
	Request    string `json:"request"`
	RequestURI string `json:"request_uri"`

	SignatureAlg string `json:"-"`
}

// SetSignatureAlg records the verified signing algorithm, implementing SignedToken.
func (r *RequestObject) SetSignatureAlg(alg string) {
	r.SignatureAlg = alg
}

// ClaimsRequest is the top-level `claims` member of the request object,
// extended with the Consumer Data Right members.
type ClaimsRequest struct {
	// SharingDuration is the requested consent duration in seconds.
	// Nil defaults to 0; values above MaxSharingDuration are clamped, negatives rejected.
	SharingDuration *int64 `json:"sharing_duration"`

	// CDRArrangementID references an existing arrangement to amend instead of
	// establishing a new one.
	CDRArrangementID string `json:"cdr_arrangement_id,omitempty"`

	IDToken *IDTokenClaimsRequest `json:"id_token,omitempty"`
}

// IDTokenClaimsRequest carries the requested id_token claims, of which
// the profile only constrains `acr`.
type IDTokenClaimsRequest struct {
	ACR *ACRRequest `json:"acr,omitempty"`
}

// ACRRequest is the requested `acr` claim: a single essential value or a value set.
type ACRRequest struct {
	Essential bool     `json:"essential,omitempty"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
}

// RequestedValues returns the acr values as a set, regardless of
// whether `value` or `values` was used.
func (a *ACRRequest) RequestedValues() []string {
	if a == nil {
		return nil
	}
	if a.Value != "" {
		return []string{a.Value}
	}
	return a.Values
}

const (
	CodeChallengeMethodPlain CodeChallengeMethod = "plain"
	CodeChallengeMethodS256  CodeChallengeMethod = "S256"
)

type CodeChallengeMethod string

type CodeChallenge struct {
	Challenge string
	Method    CodeChallengeMethod
}
