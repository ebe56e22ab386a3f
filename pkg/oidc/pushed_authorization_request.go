package oidc

// RequestURIPrefix is prepended to the reference issued for a pushed authorization request.
const RequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

// PARRequest is a pushed authorization request. It carries the same parameter
// set as an authorization request plus the client authentication parameters.
type PARRequest struct {
	AuthRequest
	ClientAssertionParams
}

// PARResponse is the success response of the pushed authorization endpoint,
// returned with status 201 Created.
type PARResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}
