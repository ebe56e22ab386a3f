package oidc

const (
	// TokenTypeHintRefreshToken hints the revocation target is a refresh token.
	TokenTypeHintRefreshToken = "refresh_token"
	// TokenTypeHintAccessToken hints the revocation target is an access token.
	TokenTypeHintAccessToken = "access_token"
	// TokenTypeHintArrangement revokes a sharing arrangement by its id,
	// cascading to the refresh token grants derived from it.
	TokenTypeHintArrangement = "cdr_arrangement_id"
)

type RevocationRequest struct {
	Token         string `schema:"token"`
	TokenTypeHint string `schema:"token_type_hint"`
	ClientID      string `schema:"client_id"`
	ClientAssertionParams
}
