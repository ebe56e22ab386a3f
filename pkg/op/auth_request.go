package op

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// AuthorizeContext accumulates the state of one authorize (or PAR) validation
// pass. It is built incrementally by successive validators, read-only once
// validation completes, and never outlives the request.
type AuthorizeContext struct {
	Request              *oidc.AuthRequest
	RequestObject        *oidc.RequestObject
	RequestObjectPayload []byte
	RawClaims            map[string]any

	Client Client

	GrantType    oidc.GrantType
	ResponseMode oidc.ResponseMode
	Scopes       []string

	CodeChallenge *oidc.CodeChallenge
	Nonce         string

	// SharingDuration is the effective consent duration in seconds,
	// defaulted and clamped per the profile.
	SharingDuration int64
	ArrangementID   string
	ACRValues       []string

	// RedirectValidated records that the redirect_uri was checked against the
	// client registration. Errors raised earlier must not be delivered by
	// redirect.
	RedirectValidated bool
}

// AuthRequestValidator validates the merged parameter set of an authorize or
// pushed authorization request against the profile's constraints.
type AuthRequestValidator struct {
	Config       *Config
	Clients      ClientStore
	Arrangements *ArrangementValidator
	Status       StatusLookup
	Events       EventSink
	Logger       *slog.Logger

	// CustomValidator is the business validation extension point, run after
	// structural validation so its rejects can still carry profile error codes.
	CustomValidator func(context.Context, *AuthorizeContext) *oidc.Error
}

// Validate runs the full authorize validation pipeline over the raw request.
// On success the populated AuthorizeContext is returned for downstream use.
func (v *AuthRequestValidator) Validate(ctx context.Context, authReq *oidc.AuthRequest) (*AuthorizeContext, *oidc.Error) {
	authCtx := &AuthorizeContext{Request: authReq}
	chain := &Chain[*AuthorizeContext]{
		Groups: []Group[*AuthorizeContext]{
			{
				Name:        "request_object",
				CascadeStop: true,
				Steps: []Step[*AuthorizeContext]{
					{Name: "read request object", Check: CheckRequestObjectMissing, Run: v.readRequestObject},
					{Name: "load client", Check: CheckClientNotFound, Run: v.loadClient},
					{Name: "verify request object", Check: CheckRequestObjectSignature, Run: v.verifyRequestObject},
				},
			},
			{
				Name:        "parameters",
				DependsOn:   "request_object",
				CascadeStop: true,
				Steps: []Step[*AuthorizeContext]{
					{Name: "redirect_uri", Check: CheckRedirectURI, Run: v.checkRedirectURI},
					{Name: "response_type and grant type", Check: CheckResponseType, Run: v.checkResponseType},
					{Name: "pkce", Check: CheckPKCE, Run: v.checkPKCE},
					{Name: "scope", Check: CheckScope, Run: v.checkScopes},
					{Name: "optional parameters", Check: CheckOptionalParameters, Run: v.checkOptionalParameters},
				},
			},
			{
				Name:        "profile",
				DependsOn:   "parameters",
				CascadeStop: true,
				Steps: []Step[*AuthorizeContext]{
					{Name: "claims object", Check: CheckProfileClaims, Run: v.checkProfileClaims},
					{Name: "software product status", Check: CheckSoftwareProductStatus, Run: v.checkSoftwareProductStatus},
					{Name: "custom validation", Check: CheckCustomValidation, Run: v.runCustomValidation},
				},
			},
		},
		OnFailure: func(ctx context.Context, outcome Outcome) {
			if v.Events != nil {
				v.Events.Raise(EventAuthorizeRequestRejected, outcome.Check)
			}
		},
		OnSuccess: func(ctx context.Context) {
			if v.Events != nil {
				v.Events.Raise(EventAuthorizeRequestValidated, CheckUnknown)
			}
		},
		Logger: v.Logger,
	}
	if err := chain.Run(ctx, authCtx); err != nil {
		if !authCtx.RedirectValidated {
			err = err.DisableRedirect()
		}
		return nil, err
	}
	return authCtx, nil
}

func (v *AuthRequestValidator) checkRedirectURI(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	uri := authCtx.Request.RedirectURI
	if uri == "" {
		return oidc.ErrInvalidRequestRedirectURI().WithDescription("redirect_uri missing")
	}
	if len(uri) > v.Config.maxParamLength() {
		return oidc.ErrInvalidRequestRedirectURI().WithDescription("redirect_uri exceeds maximum length")
	}
	parsed, err := url.Parse(uri)
	if err != nil || !parsed.IsAbs() {
		return oidc.ErrInvalidRequestRedirectURI().WithDescription("redirect_uri must be an absolute URI").WithParent(err)
	}
	if !oidc.ContainsString(authCtx.Client.RedirectURIs(), uri) {
		return oidc.ErrInvalidRequestRedirectURI().WithDescription("redirect_uri not registered for client")
	}
	authCtx.RedirectValidated = true
	return nil
}

func (v *AuthRequestValidator) checkResponseType(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	responseType := authCtx.Request.ResponseType
	if responseType == "" {
		return oidc.ErrInvalidRequest().WithDescription("response_type missing")
	}
	normalized := oidc.NormalizeResponseType(responseType)
	if !containsResponseType(authCtx.Client.ResponseTypes(), normalized) {
		return oidc.ErrUnsupportedResponseType().WithDescription("response_type not allowed for client")
	}
	grantType, ok := oidc.GrantTypeForResponseType(normalized)
	if !ok {
		return oidc.ErrUnsupportedResponseType().WithDescription("response_type not supported")
	}
	if !containsGrantType(authCtx.Client.GrantTypes(), grantType) {
		return oidc.ErrUnauthorizedClient().WithDescription("grant type not allowed for client")
	}
	modes := oidc.ResponseModesForGrantType(grantType)
	mode := authCtx.Request.ResponseMode
	if mode == "" {
		mode = modes[0]
	} else if !containsResponseMode(modes, mode) {
		return oidc.ErrInvalidRequest().WithDescription("response_mode not allowed for response_type")
	}
	authCtx.Request.ResponseType = normalized
	authCtx.GrantType = grantType
	authCtx.ResponseMode = mode
	return nil
}

func (v *AuthRequestValidator) checkPKCE(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	if authCtx.GrantType != oidc.GrantTypeCode && authCtx.GrantType != oidc.GrantTypeHybrid {
		return nil
	}
	challenge := authCtx.Request.CodeChallenge
	if challenge == "" {
		if v.Config.pkceRequired() {
			return oidc.ErrInvalidRequest().WithDescription("code_challenge required")
		}
		return nil
	}
	// RFC 7636 bounds the challenge to 43..128 characters
	if len(challenge) < 43 || len(challenge) > 128 {
		return oidc.ErrInvalidRequest().WithDescription("code_challenge length invalid")
	}
	method := authCtx.Request.CodeChallengeMethod
	if method == "" {
		method = oidc.CodeChallengeMethodS256
	}
	if method != oidc.CodeChallengeMethodS256 && method != oidc.CodeChallengeMethodPlain {
		return oidc.ErrInvalidRequest().WithDescription("code_challenge_method not supported")
	}
	authCtx.CodeChallenge = &oidc.CodeChallenge{
		Challenge: challenge,
		Method:    method,
	}
	return nil
}

func (v *AuthRequestValidator) checkScopes(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	scopes := authCtx.Request.Scopes
	if len(scopes) == 0 {
		return oidc.ErrInvalidRequest().WithDescription("scope missing")
	}
	if len(scopes.String()) > v.Config.maxParamLength() {
		return oidc.ErrInvalidRequest().WithDescription("scope exceeds maximum length")
	}
	deduplicated := make([]string, 0, len(scopes))
	seen := make(map[string]bool, len(scopes))
	openID := false
	for _, scope := range scopes {
		if seen[scope] {
			continue
		}
		seen[scope] = true
		if scope == oidc.ScopeOpenID {
			openID = true
		}
		if !oidc.ContainsString(v.Config.SupportedScopes, scope) {
			return oidc.ErrInvalidScope().WithDescription("scope %q not supported", scope)
		}
		if !authCtx.Client.IsScopeAllowed(scope) {
			return oidc.ErrInvalidScope().WithDescription("scope %q not allowed for client", scope)
		}
		deduplicated = append(deduplicated, scope)
	}
	if authCtx.Request.ResponseType.RequiresIDToken() && !openID {
		return oidc.ErrInvalidScope().WithDescription("scope openid required for the requested response_type")
	}
	if requiresIdentityScopes(deduplicated) && !authCtx.Request.ResponseType.RequiresIDToken() {
		return oidc.ErrInvalidScope().WithDescription("identity scopes require an id_token capable response_type")
	}
	authCtx.Scopes = deduplicated
	return nil
}

// requiresIdentityScopes reports whether the scope set requests identity
// claims and therefore needs an id_token capable flow.
func requiresIdentityScopes(scopes []string) bool {
	for _, scope := range scopes {
		if scope == oidc.ScopeProfile || scope == oidc.ScopeEmail {
			return true
		}
	}
	return false
}

func (v *AuthRequestValidator) checkOptionalParameters(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	req := authCtx.Request
	maxLen := v.Config.maxParamLength()
	for name, value := range map[string]string{
		"nonce":      req.Nonce,
		"login_hint": req.LoginHint,
		"prompt":     req.Prompt.String(),
		"acr_values": req.ACRValues.String(),
		"idp":        req.IDP,
	} {
		if len(value) > maxLen {
			return oidc.ErrInvalidRequest().WithDescription("%s exceeds maximum length", name)
		}
	}
	openIDRequest := oidc.ContainsString(req.Scopes, oidc.ScopeOpenID)
	nonceRequired := openIDRequest &&
		(authCtx.GrantType == oidc.GrantTypeImplicit || authCtx.GrantType == oidc.GrantTypeHybrid)
	if nonceRequired && req.Nonce == "" {
		return oidc.ErrInvalidRequest().WithDescription("nonce required for implicit and hybrid OpenID requests")
	}
	authCtx.Nonce = req.Nonce
	return nil
}

// checkProfileClaims validates the `claims` member of the request object:
// sharing_duration, cdr_arrangement_id and acr.
func (v *AuthRequestValidator) checkProfileClaims(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	claims := authCtx.Request.Claims
	if claims == nil {
		return oidc.ErrInvalidRequest().WithDescription("claims object missing from request object")
	}

	duration := int64(0)
	if claims.SharingDuration != nil {
		duration = *claims.SharingDuration
	}
	if duration < 0 {
		return oidc.ErrInvalidRequest().WithDescription("sharing_duration must not be negative")
	}
	// values above the cap are clamped, not rejected
	if cap := v.Config.sharingDurationCap(); duration > cap {
		duration = cap
	}
	authCtx.SharingDuration = duration

	if id := claims.CDRArrangementID; id != "" {
		if len(id) > v.Config.maxParamLength() || strings.ContainsAny(id, " \t\r\n") {
			return oidc.ErrInvalidRequest().WithDescription("cdr_arrangement_id is not a valid identifier")
		}
		if err := v.Arrangements.CheckOwnership(ctx, id, authCtx.Client.GetID()); err != nil {
			return err
		}
		authCtx.ArrangementID = id
	}

	if claims.IDToken != nil && claims.IDToken.ACR != nil {
		values := claims.IDToken.ACR.RequestedValues()
		if len(values) == 0 {
			return oidc.ErrInvalidRequest().WithDescription("acr claim must request at least one value")
		}
		for _, value := range values {
			if !oidc.ContainsString(v.Config.SupportedACRValues, value) {
				return oidc.ErrInvalidRequest().WithDescription("acr value %q not recognized", value)
			}
		}
		authCtx.ACRValues = values
	}
	return nil
}

func (v *AuthRequestValidator) checkSoftwareProductStatus(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	if v.Status == nil {
		return nil
	}
	softwareID := authCtx.Client.SoftwareID()
	if softwareID == "" {
		return oidc.ErrUnauthorizedClient().WithDescription("client has no registered software product")
	}
	status, err := v.Status.GetSoftwareProductStatus(ctx, softwareID)
	if err != nil {
		// a directory that cannot answer fails closed
		return oidc.ErrUnauthorizedClient().WithDescription("software product status unavailable").WithParent(err)
	}
	if status == StatusRemoved || status == StatusInactive {
		return oidc.ErrUnauthorizedClient().WithDescription("software product status is %s", status)
	}
	return nil
}

func (v *AuthRequestValidator) runCustomValidation(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error {
	if v.CustomValidator == nil {
		return nil
	}
	return v.CustomValidator(ctx, authCtx)
}

func containsResponseType(types []oidc.ResponseType, responseType oidc.ResponseType) bool {
	for _, t := range types {
		if oidc.NormalizeResponseType(t) == responseType {
			return true
		}
	}
	return false
}

func containsGrantType(types []oidc.GrantType, grantType oidc.GrantType) bool {
	for _, t := range types {
		if t == grantType {
			return true
		}
	}
	return false
}

func containsResponseMode(modes []oidc.ResponseMode, mode oidc.ResponseMode) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}
