package op

import (
	"context"
	"errors"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v3"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// testClient is a minimal Client for validator tests.
type testClient struct {
	id            string
	redirectURIs  []string
	grantTypes    []oidc.GrantType
	responseTypes []oidc.ResponseType
	scopes        []string
	keys          *jose.JSONWebKeySet
	softwareID    string
	parOnly       bool
}

func (c *testClient) GetID() string                      { return c.id }
func (c *testClient) RedirectURIs() []string             { return c.redirectURIs }
func (c *testClient) GrantTypes() []oidc.GrantType       { return c.grantTypes }
func (c *testClient) ResponseTypes() []oidc.ResponseType { return c.responseTypes }
func (c *testClient) TrustedKeys() *jose.JSONWebKeySet   { return c.keys }
func (c *testClient) SoftwareID() string                 { return c.softwareID }
func (c *testClient) RequiresPAR() bool                  { return c.parOnly }

func (c *testClient) IsScopeAllowed(scope string) bool {
	return oidc.ContainsString(c.scopes, scope)
}

type testClientStore struct {
	clients map[string]*testClient
}

func (s *testClientStore) GetEnabledClientByID(ctx context.Context, clientID string) (Client, error) {
	client, ok := s.clients[clientID]
	if !ok {
		return nil, errors.New("client not found")
	}
	return client, nil
}

// testReplayCache is a mutex guarded insert-if-absent cache.
type testReplayCache struct {
	mu   sync.Mutex
	jtis map[string]time.Time
	err  error
}

func newTestReplayCache() *testReplayCache {
	return &testReplayCache{jtis: make(map[string]time.Time)}
}

func (c *testReplayCache) TryAdd(ctx context.Context, jti string, expiry time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if _, ok := c.jtis[jti]; ok {
		return false, nil
	}
	c.jtis[jti] = expiry
	return true, nil
}

func (c *testReplayCache) TryFind(ctx context.Context, jti string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.jtis[jti]
	return ok, nil
}

// testArrangementStore keeps arrangements and grants in maps.
type testArrangementStore struct {
	mu           sync.Mutex
	arrangements map[string]*ArrangementGrant
	grants       map[string]*RefreshTokenGrant
}

func newTestArrangementStore() *testArrangementStore {
	return &testArrangementStore{
		arrangements: make(map[string]*ArrangementGrant),
		grants:       make(map[string]*RefreshTokenGrant),
	}
}

func (s *testArrangementStore) GetArrangement(ctx context.Context, id string) (*ArrangementGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.arrangements[id]
	if !ok {
		return nil, ErrArrangementNotFound
	}
	return grant, nil
}

func (s *testArrangementStore) CreateArrangement(ctx context.Context, grant *ArrangementGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arrangements[grant.ID] = grant
	return nil
}

func (s *testArrangementStore) DeleteArrangementIfOwned(ctx context.Context, id, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.arrangements[id]
	if !ok || grant.ClientID != clientID {
		return false, nil
	}
	delete(s.arrangements, id)
	return true, nil
}

func (s *testArrangementStore) DeleteRelatedGrants(ctx context.Context, arrangementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, grant := range s.grants {
		if grant.ArrangementID == arrangementID {
			delete(s.grants, id)
		}
	}
	return nil
}

func (s *testArrangementStore) GetRefreshTokenGrant(ctx context.Context, id string) (*RefreshTokenGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[id]
	if !ok {
		return nil, ErrGrantNotFound
	}
	return grant, nil
}

func (s *testArrangementStore) CreateRefreshTokenGrant(ctx context.Context, grant *RefreshTokenGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grant.ID] = grant
	return nil
}

func (s *testArrangementStore) DeleteRefreshTokenGrantIfOwned(ctx context.Context, id, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[id]
	if !ok || grant.ClientID != clientID {
		return false, nil
	}
	delete(s.grants, id)
	return true, nil
}

// testPARStorage keeps pushed requests in a map.
type testPARStorage struct {
	mu     sync.Mutex
	pushed map[string]*oidc.AuthRequest
}

func newTestPARStorage() *testPARStorage {
	return &testPARStorage{pushed: make(map[string]*oidc.AuthRequest)}
}

func (s *testPARStorage) StorePAR(ctx context.Context, requestURI string, request *oidc.AuthRequest, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed[requestURI] = request
	return nil
}

func (s *testPARStorage) ConsumePAR(ctx context.Context, requestURI string) (*oidc.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.pushed[requestURI]
	if !ok {
		return nil, errors.New("request_uri not found")
	}
	delete(s.pushed, requestURI)
	return request, nil
}

// testStatusLookup serves fixed statuses.
type testStatusLookup map[string]ParticipantStatus

func (l testStatusLookup) GetParticipantStatus(ctx context.Context, participantID string) (ParticipantStatus, error) {
	return l.status(participantID), nil
}

func (l testStatusLookup) GetSoftwareProductStatus(ctx context.Context, softwareID string) (ParticipantStatus, error) {
	return l.status(softwareID), nil
}

func (l testStatusLookup) status(id string) ParticipantStatus {
	if status, ok := l[id]; ok {
		return status
	}
	return StatusActive
}

// eventRecorder captures raised audit events in order.
type eventRecorder struct {
	mu     sync.Mutex
	kinds  []EventKind
	checks []ValidationCheck
}

func (r *eventRecorder) Raise(kind EventKind, check ValidationCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.checks = append(r.checks, check)
}

func (r *eventRecorder) has(kind EventKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func validMTLS() MTLSCredential {
	return MTLSCredential{CommonName: "client-1", Thumbprint: "dGVzdC10aHVtYnByaW50"}
}
