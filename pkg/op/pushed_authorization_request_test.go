package op

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zitadel/schema"

	"github.com/datarightlab/fapi-op/internal/testutil"
	"github.com/datarightlab/fapi-op/pkg/oidc"
)

type parFixture struct {
	auth    *authFixture
	par     *PARValidator
	storage *testPARStorage
}

func newPARFixture(t *testing.T) *parFixture {
	t.Helper()
	auth := newAuthFixture(t)
	storage := newTestPARStorage()
	par := &PARValidator{
		Config: auth.validator.Config,
		Authenticator: &ClientAuthenticator{
			Config:      auth.validator.Config,
			ReplayCache: newTestReplayCache(),
			Events:      auth.events,
		},
		AuthRequests: auth.validator,
		Storage:      storage,
		Events:       auth.events,
	}
	return &parFixture{auth: auth, par: par, storage: storage}
}

func (f *parFixture) newRequest(mutate func(*oidc.PARRequest)) *oidc.PARRequest {
	req := &oidc.PARRequest{
		AuthRequest: *f.auth.signedRequest(nil),
		ClientAssertionParams: oidc.ClientAssertionParams{
			ClientAssertion:     f.auth.keys.NewClientAssertion(testutil.ValidClientID, testutil.ValidAudience, uuid.NewString(), time.Now().Add(time.Minute)),
			ClientAssertionType: oidc.ClientAssertionTypeJWTAssertion,
		},
	}
	if mutate != nil {
		mutate(req)
	}
	return req
}

func TestPARValidatorAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted request returns a fresh request_uri", func(t *testing.T) {
		f := newPARFixture(t)
		resp, err := f.par.Accept(ctx, f.newRequest(nil), validMTLS())
		require.Nil(t, err)
		assert.True(t, strings.HasPrefix(resp.RequestURI, oidc.RequestURIPrefix))
		assert.Equal(t, 90, resp.ExpiresIn)
	})

	t.Run("stored request survives re-validation on consumption", func(t *testing.T) {
		f := newPARFixture(t)
		resp, err := f.par.Accept(ctx, f.newRequest(nil), validMTLS())
		require.Nil(t, err)

		stored, consumeErr := f.storage.ConsumePAR(ctx, resp.RequestURI)
		require.NoError(t, consumeErr)
		require.NotEmpty(t, stored.RequestParam, "pristine request object must be preserved")

		_, validateErr := f.auth.validator.Validate(ctx, stored)
		assert.Nil(t, validateErr)
	})

	t.Run("request_uri parameter rejected", func(t *testing.T) {
		f := newPARFixture(t)
		req := f.newRequest(func(r *oidc.PARRequest) {
			r.RequestURI = oidc.RequestURIPrefix + "someone-elses"
		})
		_, err := f.par.Accept(ctx, req, validMTLS())
		require.NotNil(t, err)
		assert.True(t, err.Is(oidc.ErrRequestURINotSupported()))
	})

	t.Run("client_id inferred from the assertion subject", func(t *testing.T) {
		f := newPARFixture(t)
		req := f.newRequest(func(r *oidc.PARRequest) { r.ClientID = "" })
		_, err := f.par.Accept(ctx, req, validMTLS())
		assert.Nil(t, err)
	})

	t.Run("wrong assertion type rejected", func(t *testing.T) {
		f := newPARFixture(t)
		req := f.newRequest(func(r *oidc.PARRequest) {
			r.ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:saml2-bearer"
		})
		_, err := f.par.Accept(ctx, req, validMTLS())
		require.NotNil(t, err)
		assert.True(t, err.Is(oidc.ErrInvalidClient()))
	})

	t.Run("unknown client rejected", func(t *testing.T) {
		f := newPARFixture(t)
		foreign := testutil.NewKeySet()
		req := f.newRequest(func(r *oidc.PARRequest) {
			r.ClientID = "nobody"
			r.ClientAssertion = foreign.NewClientAssertion("nobody", testutil.ValidAudience, uuid.NewString(), time.Now().Add(time.Minute))
		})
		_, err := f.par.Accept(ctx, req, validMTLS())
		require.NotNil(t, err)
		assert.True(t, err.Is(oidc.ErrUnauthorizedClient()))
	})

	t.Run("profile error wins over a broken assertion", func(t *testing.T) {
		f := newPARFixture(t)
		req := f.newRequest(func(r *oidc.PARRequest) {
			r.ClientAssertion = "not-a-jwt"
		})
		req.AuthRequest = *f.auth.signedRequest(func(ro *oidc.RequestObject) {
			ro.Scopes = oidc.Scopes{oidc.ScopeOpenID, "energy:accounts.basic:read"}
		})
		_, err := f.par.Accept(ctx, req, validMTLS())
		require.NotNil(t, err)
		assert.True(t, err.Is(oidc.ErrInvalidScope()))
	})

	t.Run("valid parameters still demand client authentication", func(t *testing.T) {
		f := newPARFixture(t)
		req := f.newRequest(func(r *oidc.PARRequest) {
			r.ClientAssertion = "not-a-jwt"
		})
		_, err := f.par.Accept(ctx, req, validMTLS())
		require.NotNil(t, err)
		assert.True(t, err.Is(oidc.ErrInvalidClient()))
		assert.Empty(t, f.storage.pushed)
	})

	t.Run("invalid authorize parameters stored nothing", func(t *testing.T) {
		f := newPARFixture(t)
		req := f.newRequest(nil)
		req.AuthRequest = *f.auth.signedRequest(func(ro *oidc.RequestObject) {
			ro.RedirectURI = "https://evil.example.org/callback"
		})
		_, err := f.par.Accept(ctx, req, validMTLS())
		require.NotNil(t, err)
		assert.Empty(t, f.storage.pushed)
	})
}

func TestPushedAuthorizationRequestHandler(t *testing.T) {
	f := newPARFixture(t)
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	handler := PushedAuthorizationRequestHandler(f.par, decoder, defaultCertCNHeader, defaultCertThumbprintHeader)

	req := f.newRequest(nil)
	form := url.Values{}
	form.Set("client_id", req.ClientID)
	form.Set("request", req.RequestParam)
	form.Set("client_assertion", req.ClientAssertion)
	form.Set("client_assertion_type", req.ClientAssertionType)

	r := httptest.NewRequest(http.MethodPost, "/par", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(defaultCertCNHeader, validMTLS().CommonName)
	r.Header.Set(defaultCertThumbprintHeader, validMTLS().Thumbprint)

	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var resp oidc.PARResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, strings.HasPrefix(resp.RequestURI, oidc.RequestURIPrefix))
	assert.Equal(t, 90, resp.ExpiresIn)
	assert.True(t, f.auth.events.has(EventPushedAuthRequestAccepted))
}
