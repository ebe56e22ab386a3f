package op

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	httphelper "github.com/datarightlab/fapi-op/pkg/httphelper"
	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// PARValidator accepts pushed authorization requests: it runs the full
// authorize validation over the pushed parameters, authenticates the pushing
// client and stores the accepted request under a fresh request_uri.
type PARValidator struct {
	Config        *Config
	Authenticator *ClientAuthenticator
	AuthRequests  *AuthRequestValidator
	Storage       PARStorage
	Events        EventSink
	Logger        *slog.Logger
}

// PushedAuthorizationRequestHandler serves the PAR endpoint.
func PushedAuthorizationRequestHandler(v *PARValidator, decoder httphelper.Decoder, cnHeader, tpHeader string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PushedAuthorizationRequest")
		r = r.WithContext(ctx)
		defer span.End()

		req, err := parsePARRequest(r, decoder)
		if err != nil {
			RequestError(w, r, err, v.Logger)
			return
		}
		mtls := MTLSCredentialFromRequest(r, cnHeader, tpHeader)
		resp, err := v.Accept(ctx, req, mtls)
		if err != nil {
			if v.Events != nil {
				v.Events.Raise(EventPushedAuthRequestRejected, CheckUnknown)
			}
			RequestError(w, r, err, v.Logger)
			return
		}
		if v.Events != nil {
			v.Events.Raise(EventPushedAuthRequestAccepted, CheckUnknown)
		}
		httphelper.MarshalJSONWithStatus(w, resp, http.StatusCreated)
	}
}

func parsePARRequest(r *http.Request, decoder httphelper.Decoder) (*oidc.PARRequest, *oidc.Error) {
	if err := r.ParseForm(); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err)
	}
	req := new(oidc.PARRequest)
	if err := decoder.Decode(req, r.Form); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err)
	}
	return req, nil
}

// Accept validates and stores a pushed authorization request, returning the
// request_uri reference the client presents at the authorize endpoint.
func (v *PARValidator) Accept(ctx context.Context, req *oidc.PARRequest, mtls MTLSCredential) (*oidc.PARResponse, *oidc.Error) {
	// a PAR must carry its parameters by value, never by reference
	if req.RequestURI != "" {
		return nil, oidc.ErrRequestURINotSupported()
	}

	authReq := req.AuthRequest
	if authReq.ClientID == "" {
		authReq.ClientID = assertionSubject(req.ClientAssertion)
	}
	// validation merges the request object into the parameter set, so keep a
	// pristine copy to store: the authorize endpoint re-validates it on
	// consumption against the state of that moment
	stored := authReq
	authCtx, authErr := v.AuthRequests.Validate(ctx, &authReq)
	if authErr != nil {
		return nil, authErr
	}
	stored.ClientID = authCtx.Client.GetID()

	// client authentication runs after the profile validation, so a request
	// failing both surfaces the profile error
	if req.ClientAssertionType != oidc.ClientAssertionTypeJWTAssertion {
		return nil, oidc.ErrInvalidClient().WithDescription("client assertion type not supported")
	}
	if _, authErr := v.Authenticator.Authenticate(ctx, req.ClientAssertion, mtls, authCtx.Client.TrustedKeys(), authCtx.Client.GetID()); authErr != nil {
		return nil, authErr
	}

	requestURI := oidc.RequestURIPrefix + uuid.NewString()
	lifetime := v.Config.parLifetime()
	if err := v.Storage.StorePAR(ctx, requestURI, &stored, time.Now().Add(lifetime)); err != nil {
		return nil, oidc.ErrServerError().WithParent(fmt.Errorf("store request data: %w", err))
	}
	return &oidc.PARResponse{
		RequestURI: requestURI,
		ExpiresIn:  int(lifetime.Seconds()),
	}, nil
}

// assertionSubject extracts the sub claim from an unverified client assertion.
// It only bootstraps the client lookup; the assertion itself is verified by
// the ClientAuthenticator afterwards.
func assertionSubject(assertion string) string {
	claims := new(oidc.ClientAssertionClaims)
	if _, err := oidc.ParseToken(assertion, claims); err != nil {
		return ""
	}
	return claims.Subject
}
