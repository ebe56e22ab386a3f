package op

import (
	"context"
	"encoding/json"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// readRequestObject minimally parses the signed request object without
// trusting any claim. The profile mandates signed request objects, so an
// absent or malformed `request` parameter is terminal.
func (v *AuthRequestValidator) readRequestObject(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	raw := authCtx.Request.RequestParam
	if raw == "" {
		return oidc.ErrInvalidRequest().WithDescription("signed request object required")
	}
	if len(raw) > v.Config.maxAssertionLength() {
		return oidc.ErrInvalidRequest().WithDescription("request object exceeds maximum length")
	}
	requestObject := new(oidc.RequestObject)
	payload, err := oidc.ParseToken(raw, requestObject)
	if err != nil {
		return oidc.ErrInvalidRequest().WithDescription("request object is not a well-formed JWT").WithParent(err)
	}
	// keep the raw claim map for downstream profile checks
	rawClaims := make(map[string]any)
	if err := json.Unmarshal(payload, &rawClaims); err != nil {
		return oidc.ErrInvalidRequest().WithDescription("request object is not a well-formed JWT").WithParent(err)
	}
	authCtx.RequestObject = requestObject
	authCtx.RequestObjectPayload = payload
	authCtx.RawClaims = rawClaims
	return nil
}

// loadClient resolves the client by the client_id of the raw parameters or,
// when absent as permitted for pushed requests, of the request object payload.
func (v *AuthRequestValidator) loadClient(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	clientID := authCtx.Request.ClientID
	if clientID == "" && authCtx.RequestObject != nil {
		clientID = authCtx.RequestObject.ClientID
	}
	if clientID == "" {
		return oidc.ErrInvalidRequest().WithDescription("client_id missing")
	}
	client, err := v.Clients.GetEnabledClientByID(ctx, clientID)
	if err != nil || client == nil {
		return oidc.ErrUnauthorizedClient().WithDescription("unknown client").WithParent(err)
	}
	authCtx.Request.ClientID = clientID
	authCtx.Client = client
	return nil
}

// verifyRequestObject validates the request object's signature against the
// client's trusted keys and rejects nested indirection.
func (v *AuthRequestValidator) verifyRequestObject(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	requestObject := authCtx.RequestObject
	if requestObject.Request != "" || requestObject.RequestURI != "" {
		return oidc.ErrInvalidRequest().WithDescription("request object must not contain request or request_uri")
	}
	if requestObject.ClientID != "" && requestObject.ClientID != authCtx.Request.ClientID {
		return oidc.ErrInvalidRequest().WithDescription("request object client_id mismatch")
	}
	if requestObject.Issuer != authCtx.Request.ClientID {
		return oidc.ErrInvalidRequest().WithDescription("request object issuer must be the client_id")
	}
	if err := oidc.CheckAudience(requestObject.Audience, v.Config.audiences()); err != nil {
		return oidc.ErrInvalidRequest().WithDescription("request object audience invalid").WithParent(err)
	}
	keySet := &staticKeySet{keys: authCtx.Client.TrustedKeys()}
	if err := oidc.CheckSignature(ctx, authCtx.Request.RequestParam, authCtx.RequestObjectPayload, requestObject, v.Config.SupportedSignAlgs, keySet); err != nil {
		return oidc.ErrInvalidRequest().WithDescription("request object signature invalid").WithParent(err)
	}
	mergeRequestObject(authCtx.Request, requestObject)
	return nil
}

// mergeRequestObject overwrites raw parameters with the validated request
// object claims; request object values take precedence.
func mergeRequestObject(authReq *oidc.AuthRequest, requestObject *oidc.RequestObject) {
	if len(requestObject.Scopes) > 0 {
		authReq.Scopes = requestObject.Scopes
	}
	if requestObject.ResponseType != "" {
		authReq.ResponseType = requestObject.ResponseType
	}
	if requestObject.ResponseMode != "" {
		authReq.ResponseMode = requestObject.ResponseMode
	}
	if requestObject.RedirectURI != "" {
		authReq.RedirectURI = requestObject.RedirectURI
	}
	if requestObject.State != "" {
		authReq.State = requestObject.State
	}
	if requestObject.Nonce != "" {
		authReq.Nonce = requestObject.Nonce
	}
	if len(requestObject.Prompt) > 0 {
		authReq.Prompt = requestObject.Prompt
	}
	if requestObject.MaxAge != nil {
		authReq.MaxAge = requestObject.MaxAge
	}
	if len(requestObject.UILocales) > 0 {
		authReq.UILocales = requestObject.UILocales
	}
	if requestObject.LoginHint != "" {
		authReq.LoginHint = requestObject.LoginHint
	}
	if requestObject.IDP != "" {
		authReq.IDP = requestObject.IDP
	}
	if len(requestObject.ACRValues) > 0 {
		authReq.ACRValues = requestObject.ACRValues
	}
	if requestObject.CodeChallenge != "" {
		authReq.CodeChallenge = requestObject.CodeChallenge
	}
	if requestObject.CodeChallengeMethod != "" {
		authReq.CodeChallengeMethod = requestObject.CodeChallengeMethod
	}
	if requestObject.Claims != nil {
		authReq.Claims = requestObject.Claims
	}
	authReq.RequestParam = ""
}
