package op

import (
	"log/slog"
	"net/http"

	httphelper "github.com/datarightlab/fapi-op/pkg/httphelper"
	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// ErrAuthRequest is the subset of the authorization request needed to
// deliver an error back to the client via redirect.
type ErrAuthRequest interface {
	GetRedirectURI() string
	GetResponseType() oidc.ResponseType
	GetResponseMode() oidc.ResponseMode
	GetState() string
}

// AuthRequestError writes the error of an authorization request. When the
// request carries a validated redirect_uri the error is delivered by redirect,
// in the query or fragment depending on the response mode. Errors flagged as
// redirect-disabled and requests without a usable redirect_uri receive a plain
// HTTP error instead, so an unvalidated redirect target is never used.
func AuthRequestError(w http.ResponseWriter, r *http.Request, authReq ErrAuthRequest, err error, encoder httphelper.Encoder, logger *slog.Logger) {
	e := oidc.DefaultToServerError(err, "internal error")
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(r.Context(), "authorize request failed",
		"error", string(e.ErrorType),
		"description", e.Description,
		"cause", e.Parent)

	if authReq == nil || authReq.GetRedirectURI() == "" || e.IsRedirectDisabled() {
		http.Error(w, e.Error(), statusFromError(e))
		return
	}
	e.State = authReq.GetState()
	params, encErr := httphelper.URLEncodeParams(e, encoder)
	if encErr != nil {
		http.Error(w, e.Error(), http.StatusBadRequest)
		return
	}
	url := authReq.GetRedirectURI()
	if useFragment(authReq.GetResponseType(), authReq.GetResponseMode()) {
		url += "#" + params.Encode()
	} else {
		url += "?" + params.Encode()
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// RequestError writes the error of a non-redirecting endpoint (PAR, token,
// revocation, introspection) as a JSON body.
func RequestError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	e := oidc.DefaultToServerError(err, "internal error")
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(r.Context(), "request failed",
		"error", string(e.ErrorType),
		"description", e.Description,
		"cause", e.Parent)
	httphelper.MarshalJSONWithStatus(w, e, statusFromError(e))
}

func useFragment(responseType oidc.ResponseType, responseMode oidc.ResponseMode) bool {
	if responseMode == oidc.ResponseModeQuery {
		return false
	}
	if responseMode == oidc.ResponseModeFragment {
		return true
	}
	grantType, ok := oidc.GrantTypeForResponseType(responseType)
	return ok && grantType != oidc.GrantTypeCode
}

func statusFromError(e *oidc.Error) int {
	switch {
	case e.Is(oidc.ErrInvalidClient()):
		return http.StatusUnauthorized
	case e.Is(oidc.ErrServerError()):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
