package op

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	httphelper "github.com/datarightlab/fapi-op/pkg/httphelper"
	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// IntrospectionValidator implements RFC 7662 token introspection over the
// persisted refresh token grants.
//
// Any problem with the presented token yields {"active": false} rather than
// an error body, so callers cannot distinguish unknown, expired and foreign
// tokens. Only client authentication failures surface as errors.
type IntrospectionValidator struct {
	Config        *Config
	Clients       ClientStore
	Authenticator *ClientAuthenticator
	Store         ArrangementStore
	Events        EventSink
	Logger        *slog.Logger
}

// IntrospectionHandler serves the introspection endpoint.
func IntrospectionHandler(v *IntrospectionValidator, decoder httphelper.Decoder, cnHeader, tpHeader string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "Introspection")
		r = r.WithContext(ctx)
		defer span.End()

		req, err := parseIntrospectionRequest(r, decoder)
		if err != nil {
			RequestError(w, r, err, v.Logger)
			return
		}
		mtls := MTLSCredentialFromRequest(r, cnHeader, tpHeader)
		resp, err := v.Introspect(ctx, req, mtls)
		if err != nil {
			RequestError(w, r, err, v.Logger)
			return
		}
		httphelper.MarshalJSON(w, resp)
	}
}

func parseIntrospectionRequest(r *http.Request, decoder httphelper.Decoder) (*oidc.IntrospectionRequest, *oidc.Error) {
	if err := r.ParseForm(); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err)
	}
	req := new(oidc.IntrospectionRequest)
	if err := decoder.Decode(req, r.Form); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err)
	}
	return req, nil
}

// Introspect authenticates the calling client and reports the state of the
// presented refresh token.
func (v *IntrospectionValidator) Introspect(ctx context.Context, req *oidc.IntrospectionRequest, mtls MTLSCredential) (*oidc.IntrospectionResponse, *oidc.Error) {
	if req.ClientAssertionType != oidc.ClientAssertionTypeJWTAssertion {
		return nil, oidc.ErrInvalidClient().WithDescription("client assertion type not supported")
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = assertionSubject(req.ClientAssertion)
	}
	client, err := v.Clients.GetEnabledClientByID(ctx, clientID)
	if err != nil || client == nil {
		return nil, oidc.ErrInvalidClient().WithDescription("client authentication failed").WithParent(err)
	}
	if _, authErr := v.Authenticator.Authenticate(ctx, req.ClientAssertion, mtls, client.TrustedKeys(), client.GetID()); authErr != nil {
		return nil, authErr
	}

	resp := v.introspect(ctx, req, client, mtls)
	if v.Events != nil {
		if resp.Active {
			v.Events.Raise(EventTokenIntrospected, CheckIntrospection)
		} else {
			v.Events.Raise(EventIntrospectionFailed, CheckIntrospection)
		}
	}
	return resp, nil
}

func (v *IntrospectionValidator) introspect(ctx context.Context, req *oidc.IntrospectionRequest, client Client, mtls MTLSCredential) *oidc.IntrospectionResponse {
	inactive := &oidc.IntrospectionResponse{Active: false}
	if req.Token == "" || len(req.Token) > v.Config.maxParamLength() {
		return inactive
	}
	if req.TokenTypeHint != "" && req.TokenTypeHint != oidc.TokenTypeHintRefreshToken {
		return inactive
	}
	grant, err := v.Store.GetRefreshTokenGrant(ctx, req.Token)
	if err != nil {
		if !errors.Is(err, ErrGrantNotFound) {
			logger := v.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.ErrorContext(ctx, "refresh token grant lookup failed", "cause", err)
		}
		return inactive
	}
	if grant.ClientID != client.GetID() {
		return inactive
	}
	if !grant.Expiry.IsZero() && grant.Expiry.Before(time.Now()) {
		return inactive
	}
	return &oidc.IntrospectionResponse{
		Active:           true,
		Scope:            oidc.SpaceDelimitedArray(grant.Scopes),
		ClientID:         grant.ClientID,
		TokenType:        oidc.TokenTypeHintRefreshToken,
		Expiration:       oidc.FromTime(grant.Expiry),
		Subject:          grant.Subject,
		Issuer:           v.Config.Issuer,
		CDRArrangementID: grant.ArrangementID,
		Confirmation:     mtls.Confirmation(),
	}
}
