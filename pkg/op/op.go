package op

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/zitadel/schema"

	"github.com/datarightlab/fapi-op/internal/otel"
	httphelper "github.com/datarightlab/fapi-op/pkg/httphelper"
	"github.com/datarightlab/fapi-op/pkg/oidc"
)

const (
	healthEndpoint    = "/healthz"
	readinessEndpoint = "/ready"

	defaultAuthorizationEndpoint = "/authorize"
	defaultPAREndpoint           = "/par"
	defaultRevocationEndpoint    = "/revoke"
	defaultIntrospectEndpoint    = "/introspect"
	defaultArrangementEndpoint   = "/arrangements/revoke"

	// headers a terminating TLS proxy forwards the client certificate
	// identity in, consulted when the listener itself is plain HTTP
	defaultCertCNHeader         = "X-SSL-Client-CN"
	defaultCertThumbprintHeader = "X-SSL-Client-Thumbprint"
)

var tracer = otel.Tracer("github.com/datarightlab/fapi-op/pkg/op")

var defaultCORSOptions = cors.Options{
	AllowCredentials: true,
	AllowedHeaders: []string{
		"Origin",
		"Accept",
		"Accept-Language",
		"Authorization",
		"Content-Type",
		"X-Requested-With",
	},
	AllowedMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
	},
	ExposedHeaders: []string{
		"Location",
		"Content-Length",
	},
	AllowOriginFunc: func(_ string) bool {
		return true
	},
}

// AuthorizeCallback receives a request that passed the full authorize
// validation. Implementations continue with end user authentication and
// consent, which is outside the validation core.
type AuthorizeCallback func(w http.ResponseWriter, r *http.Request, authCtx *AuthorizeContext)

// Provider bundles the validators of the profile behind HTTP endpoints.
type Provider struct {
	config        *Config
	clients       ClientStore
	arrangements  ArrangementStore
	parStorage    PARStorage
	replayCache   TokenReplayCache
	status        StatusLookup
	events        EventSink
	logger        *slog.Logger
	callback      AuthorizeCallback
	customAuth    func(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error
	cnHeader      string
	tpHeader      string
	decoder       *schema.Decoder
	encoder       *schema.Encoder
	authenticator *ClientAuthenticator
	authRequests  *AuthRequestValidator
	par           *PARValidator
	revocation    *RevocationValidator
	introspection *IntrospectionValidator
}

// Option configures a Provider.
type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

func WithEventSink(sink EventSink) Option {
	return func(p *Provider) { p.events = sink }
}

func WithStatusLookup(lookup StatusLookup) Option {
	return func(p *Provider) { p.status = lookup }
}

func WithAuthorizeCallback(callback AuthorizeCallback) Option {
	return func(p *Provider) { p.callback = callback }
}

func WithCustomValidator(fn func(ctx context.Context, authCtx *AuthorizeContext) *oidc.Error) Option {
	return func(p *Provider) { p.customAuth = fn }
}

// WithClientCertHeaders overrides the proxy headers carrying the mTLS
// client certificate identity.
func WithClientCertHeaders(commonName, thumbprint string) Option {
	return func(p *Provider) {
		p.cnHeader = commonName
		p.tpHeader = thumbprint
	}
}

// NewProvider wires the validators over the given stores.
func NewProvider(
	config *Config,
	clients ClientStore,
	arrangements ArrangementStore,
	parStorage PARStorage,
	replayCache TokenReplayCache,
	opts ...Option,
) *Provider {
	p := &Provider{
		config:       config,
		clients:      clients,
		arrangements: arrangements,
		parStorage:   parStorage,
		replayCache:  replayCache,
		logger:       slog.Default(),
		cnHeader:     defaultCertCNHeader,
		tpHeader:     defaultCertThumbprintHeader,
		decoder:      schema.NewDecoder(),
		encoder:      schema.NewEncoder(),
	}
	p.decoder.IgnoreUnknownKeys(true)
	for _, opt := range opts {
		opt(p)
	}

	p.authenticator = &ClientAuthenticator{
		Config:      config,
		ReplayCache: replayCache,
		Events:      p.events,
		Logger:      p.logger,
	}
	arrangementValidator := &ArrangementValidator{
		Store:  arrangements,
		Events: p.events,
		Logger: p.logger,
	}
	p.authRequests = &AuthRequestValidator{
		Config:          config,
		Clients:         clients,
		Arrangements:    arrangementValidator,
		Status:          p.status,
		Events:          p.events,
		Logger:          p.logger,
		CustomValidator: p.customAuth,
	}
	p.par = &PARValidator{
		Config:        config,
		Authenticator: p.authenticator,
		AuthRequests:  p.authRequests,
		Storage:       parStorage,
		Events:        p.events,
		Logger:        p.logger,
	}
	p.revocation = &RevocationValidator{
		Config:        config,
		Clients:       clients,
		Authenticator: p.authenticator,
		Arrangements:  arrangementValidator,
		Store:         arrangements,
		Events:        p.events,
		Logger:        p.logger,
	}
	p.introspection = &IntrospectionValidator{
		Config:        config,
		Clients:       clients,
		Authenticator: p.authenticator,
		Store:         arrangements,
		Events:        p.events,
		Logger:        p.logger,
	}
	return p
}

func (p *Provider) Decoder() httphelper.Decoder { return p.decoder }
func (p *Provider) Encoder() httphelper.Encoder { return p.encoder }
func (p *Provider) Logger() *slog.Logger        { return p.logger }

func (p *Provider) ClientAuthenticator() *ClientAuthenticator   { return p.authenticator }
func (p *Provider) AuthRequestValidator() *AuthRequestValidator { return p.authRequests }

// CreateRouter builds the HTTP routes of the validation core.
func (p *Provider) CreateRouter(interceptors ...func(http.Handler) http.Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(cors.New(defaultCORSOptions).Handler)
	router.Use(logRequests(p.logger))
	for _, interceptor := range interceptors {
		router.Use(interceptor)
	}
	router.Get(healthEndpoint, healthHandler)
	router.Get(readinessEndpoint, healthHandler)
	router.MethodFunc(http.MethodGet, defaultAuthorizationEndpoint, p.authorizeHandler)
	router.MethodFunc(http.MethodPost, defaultAuthorizationEndpoint, p.authorizeHandler)
	router.Post(defaultPAREndpoint, PushedAuthorizationRequestHandler(p.par, p.decoder, p.cnHeader, p.tpHeader))
	router.Post(defaultRevocationEndpoint, RevocationHandler(p.revocation, p.decoder, p.cnHeader, p.tpHeader))
	router.Post(defaultIntrospectEndpoint, IntrospectionHandler(p.introspection, p.decoder, p.cnHeader, p.tpHeader))
	router.Post(defaultArrangementEndpoint, p.arrangementRevocationHandler)
	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	httphelper.MarshalJSON(w, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.InfoContext(r.Context(), "request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// authorizeHandler validates an authorization request, resolving pushed
// requests by their request_uri reference first.
func (p *Provider) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "Authorize")
	r = r.WithContext(ctx)
	defer span.End()

	if err := r.ParseForm(); err != nil {
		AuthRequestError(w, r, nil, oidc.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err), p.encoder, p.logger)
		return
	}
	authReq := new(oidc.AuthRequest)
	if err := p.decoder.Decode(authReq, r.Form); err != nil {
		AuthRequestError(w, r, nil, oidc.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err), p.encoder, p.logger)
		return
	}
	fromPushed := authReq.RequestURI != ""
	if fromPushed {
		resolved, err := p.resolvePushedRequest(ctx, authReq)
		if err != nil {
			AuthRequestError(w, r, nil, err, p.encoder, p.logger)
			return
		}
		authReq = resolved
	}
	authCtx, err := p.authRequests.Validate(ctx, authReq)
	if err != nil {
		AuthRequestError(w, r, authReq, err, p.encoder, p.logger)
		return
	}
	if authCtx.Client.RequiresPAR() && !fromPushed {
		AuthRequestError(w, r, authReq, oidc.ErrInvalidRequest().WithDescription("client must use pushed authorization requests"), p.encoder, p.logger)
		return
	}
	if p.callback == nil {
		httphelper.MarshalJSON(w, struct {
			ClientID string `json:"client_id"`
			Scope    string `json:"scope"`
		}{ClientID: authCtx.Client.GetID(), Scope: strings.Join(authCtx.Scopes, " ")})
		return
	}
	p.callback(w, r, authCtx)
}

func (p *Provider) resolvePushedRequest(ctx context.Context, authReq *oidc.AuthRequest) (*oidc.AuthRequest, *oidc.Error) {
	if !strings.HasPrefix(authReq.RequestURI, oidc.RequestURIPrefix) {
		return nil, oidc.ErrRequestURINotSupported().WithDescription("request_uri must reference a pushed authorization request")
	}
	stored, err := p.parStorage.ConsumePAR(ctx, authReq.RequestURI)
	if err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("request_uri unknown or expired").WithParent(err)
	}
	return stored, nil
}

// arrangementRevocationHandler serves the dedicated CDR arrangement
// revocation endpoint, which takes the arrangement id as a form parameter
// instead of a token type hint.
func (p *Provider) arrangementRevocationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ArrangementRevocation")
	r = r.WithContext(ctx)
	defer span.End()

	if err := r.ParseForm(); err != nil {
		RequestError(w, r, oidc.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err), p.logger)
		return
	}
	req := new(arrangementRevocationRequest)
	if err := p.decoder.Decode(req, r.Form); err != nil {
		RequestError(w, r, oidc.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err), p.logger)
		return
	}
	mtls := MTLSCredentialFromRequest(r, p.cnHeader, p.tpHeader)
	client, err := p.revocation.authenticate(ctx, req.ClientID, req.ClientAssertionParams, mtls)
	if err != nil {
		RequestError(w, r, err, p.logger)
		return
	}
	if req.CDRArrangementID == "" {
		RequestError(w, r, oidc.ErrInvalidRequest().WithDescription("cdr_arrangement_id missing"), p.logger)
		return
	}
	if err := p.authRequests.Arrangements.Revoke(ctx, req.CDRArrangementID, client.GetID()); err != nil {
		RequestError(w, r, err, p.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type arrangementRevocationRequest struct {
	CDRArrangementID string `schema:"cdr_arrangement_id"`
	ClientID         string `schema:"client_id"`
	oidc.ClientAssertionParams
}
