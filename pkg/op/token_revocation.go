package op

import (
	"context"
	"log/slog"
	"net/http"

	httphelper "github.com/datarightlab/fapi-op/pkg/httphelper"
	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// RevocationValidator implements RFC 7009 token revocation, extended with
// arrangement revocation via the cdr_arrangement_id token type hint.
type RevocationValidator struct {
	Config        *Config
	Clients       ClientStore
	Authenticator *ClientAuthenticator
	Arrangements  *ArrangementValidator
	Store         ArrangementStore
	Events        EventSink
	Logger        *slog.Logger
}

// RevocationHandler serves the revocation endpoint.
func RevocationHandler(v *RevocationValidator, decoder httphelper.Decoder, cnHeader, tpHeader string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "Revocation")
		r = r.WithContext(ctx)
		defer span.End()

		req, err := parseRevocationRequest(r, decoder)
		if err != nil {
			RequestError(w, r, err, v.Logger)
			return
		}
		mtls := MTLSCredentialFromRequest(r, cnHeader, tpHeader)
		if err := v.Revoke(ctx, req, mtls); err != nil {
			RequestError(w, r, err, v.Logger)
			return
		}
		httphelper.MarshalJSON(w, struct{}{})
	}
}

func parseRevocationRequest(r *http.Request, decoder httphelper.Decoder) (*oidc.RevocationRequest, *oidc.Error) {
	if err := r.ParseForm(); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err)
	}
	req := new(oidc.RevocationRequest)
	if err := decoder.Decode(req, r.Form); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err)
	}
	return req, nil
}

// Revoke authenticates the calling client and revokes the presented token.
// Per RFC 7009 an unknown or already revoked token is a success; only client
// authentication failures and arrangement revocation failures are errors.
func (v *RevocationValidator) Revoke(ctx context.Context, req *oidc.RevocationRequest, mtls MTLSCredential) *oidc.Error {
	client, err := v.authenticate(ctx, req.ClientID, req.ClientAssertionParams, mtls)
	if err != nil {
		return err
	}
	if req.Token == "" {
		return oidc.ErrInvalidRequest().WithDescription("token missing")
	}
	if len(req.Token) > v.Config.maxParamLength() {
		return oidc.ErrInvalidRequest().WithDescription("token exceeds maximum length")
	}

	if req.TokenTypeHint == oidc.TokenTypeHintArrangement {
		return v.Arrangements.Revoke(ctx, req.Token, client.GetID())
	}

	deleted, storeErr := v.Store.DeleteRefreshTokenGrantIfOwned(ctx, req.Token, client.GetID())
	if storeErr != nil {
		if v.Events != nil {
			v.Events.Raise(EventTokenRevocationFailed, CheckTokenRevocation)
		}
		return oidc.ErrServerError().WithParent(storeErr)
	}
	if v.Events != nil {
		v.Events.Raise(EventTokenRevoked, CheckTokenRevocation)
	}
	if !deleted {
		logger := v.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.InfoContext(ctx, "revocation of unknown token treated as success",
			"client_id", client.GetID(),
			"token_type_hint", req.TokenTypeHint)
	}
	return nil
}

func (v *RevocationValidator) authenticate(ctx context.Context, clientID string, params oidc.ClientAssertionParams, mtls MTLSCredential) (Client, *oidc.Error) {
	if params.ClientAssertionType != oidc.ClientAssertionTypeJWTAssertion {
		return nil, oidc.ErrInvalidClient().WithDescription("client assertion type not supported")
	}
	if clientID == "" {
		clientID = assertionSubject(params.ClientAssertion)
	}
	client, err := v.Clients.GetEnabledClientByID(ctx, clientID)
	if err != nil || client == nil {
		return nil, oidc.ErrInvalidClient().WithDescription("client authentication failed").WithParent(err)
	}
	if _, authErr := v.Authenticator.Authenticate(ctx, params.ClientAssertion, mtls, client.TrustedKeys(), client.GetID()); authErr != nil {
		return nil, authErr
	}
	return client, nil
}
