// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v3"

	"github.com/datarightlab/fapi-op/pkg/oidc"
	"github.com/datarightlab/fapi-op/pkg/op"
)

// Client is a statically registered data recipient application.
type Client struct {
	ID                string
	RedirectURIList   []string
	GrantTypeList     []oidc.GrantType
	ResponseTypeList  []oidc.ResponseType
	AllowedScopes     []string
	Keys              *jose.JSONWebKeySet
	SoftwareProductID string
	PAROnly           bool
	Disabled          bool
}

var _ op.Client = (*Client)(nil)

func (c *Client) GetID() string                      { return c.ID }
func (c *Client) RedirectURIs() []string             { return c.RedirectURIList }
func (c *Client) GrantTypes() []oidc.GrantType       { return c.GrantTypeList }
func (c *Client) ResponseTypes() []oidc.ResponseType { return c.ResponseTypeList }
func (c *Client) TrustedKeys() *jose.JSONWebKeySet   { return c.Keys }
func (c *Client) SoftwareID() string                 { return c.SoftwareProductID }
func (c *Client) RequiresPAR() bool                  { return c.PAROnly }

func (c *Client) IsScopeAllowed(scope string) bool {
	for _, allowed := range c.AllowedScopes {
		if allowed == scope {
			return true
		}
	}
	return false
}

type storedPAR struct {
	request *oidc.AuthRequest
	expiry  time.Time
}

// Store is an in-memory implementation of the client, arrangement, replay,
// PAR and status storage interfaces.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*Client
	arrangements  map[string]*op.ArrangementGrant
	refreshGrants map[string]*op.RefreshTokenGrant
	jtis          map[string]time.Time
	pushed        map[string]storedPAR
	statuses      map[string]op.ParticipantStatus

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

var (
	_ op.ClientStore      = (*Store)(nil)
	_ op.ArrangementStore = (*Store)(nil)
	_ op.TokenReplayCache = (*Store)(nil)
	_ op.PARStorage       = (*Store)(nil)
	_ op.StatusLookup     = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval of one minute.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &Store{
		clients:         make(map[string]*Client),
		arrangements:    make(map[string]*op.ArrangementGrant),
		refreshGrants:   make(map[string]*op.RefreshTokenGrant),
		jtis:            make(map[string]time.Time),
		pushed:          make(map[string]storedPAR),
		statuses:        make(map[string]op.ParticipantStatus),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}
	go s.cleanupLoop()
	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Stop gracefully stops the cleanup goroutine.
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// RegisterClient adds or replaces a client registration.
func (s *Store) RegisterClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
}

func (s *Store) GetEnabledClientByID(ctx context.Context, clientID string) (op.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok || client.Disabled {
		return nil, fmt.Errorf("client %q not found or disabled", clientID)
	}
	return client, nil
}

// SetStatus records the registry status of a participant or software product.
func (s *Store) SetStatus(id string, status op.ParticipantStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
}

func (s *Store) GetParticipantStatus(ctx context.Context, participantID string) (op.ParticipantStatus, error) {
	return s.lookupStatus(participantID)
}

func (s *Store) GetSoftwareProductStatus(ctx context.Context, softwareID string) (op.ParticipantStatus, error) {
	return s.lookupStatus(softwareID)
}

func (s *Store) lookupStatus(id string) (op.ParticipantStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[id]
	if !ok {
		// unknown participants default to active so a store without registry
		// data does not lock every client out
		return op.StatusActive, nil
	}
	return status, nil
}

func (s *Store) GetArrangement(ctx context.Context, id string) (*op.ArrangementGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.arrangements[id]
	if !ok {
		return nil, op.ErrArrangementNotFound
	}
	copied := *grant
	return &copied, nil
}

func (s *Store) CreateArrangement(ctx context.Context, grant *op.ArrangementGrant) error {
	if grant == nil || grant.ID == "" {
		return fmt.Errorf("invalid arrangement grant")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *grant
	s.arrangements[grant.ID] = &copied
	return nil
}

// DeleteArrangementIfOwned checks ownership and deletes under a single lock,
// so only one concurrent revocation can succeed.
func (s *Store) DeleteArrangementIfOwned(ctx context.Context, id, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.arrangements[id]
	if !ok || grant.ClientID != clientID {
		return false, nil
	}
	delete(s.arrangements, id)
	return true, nil
}

func (s *Store) DeleteRelatedGrants(ctx context.Context, arrangementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, grant := range s.refreshGrants {
		if grant.ArrangementID == arrangementID {
			delete(s.refreshGrants, id)
		}
	}
	return nil
}

func (s *Store) GetRefreshTokenGrant(ctx context.Context, id string) (*op.RefreshTokenGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.refreshGrants[id]
	if !ok {
		return nil, op.ErrGrantNotFound
	}
	copied := *grant
	return &copied, nil
}

func (s *Store) CreateRefreshTokenGrant(ctx context.Context, grant *op.RefreshTokenGrant) error {
	if grant == nil || grant.ID == "" {
		return fmt.Errorf("invalid refresh token grant")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *grant
	s.refreshGrants[grant.ID] = &copied
	return nil
}

func (s *Store) DeleteRefreshTokenGrantIfOwned(ctx context.Context, id, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.refreshGrants[id]
	if !ok || grant.ClientID != clientID {
		return false, nil
	}
	delete(s.refreshGrants, id)
	return true, nil
}

// TryAdd inserts the jti under a write lock so only one concurrent request
// presenting the same assertion can win.
func (s *Store) TryAdd(ctx context.Context, jti string, expiry time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seen, ok := s.jtis[jti]; ok && seen.After(time.Now()) {
		return false, nil
	}
	s.jtis[jti] = expiry
	return true, nil
}

func (s *Store) TryFind(ctx context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.jtis[jti]
	return ok && expiry.After(time.Now()), nil
}

func (s *Store) StorePAR(ctx context.Context, requestURI string, request *oidc.AuthRequest, expiry time.Time) error {
	if requestURI == "" || request == nil {
		return fmt.Errorf("invalid pushed authorization request")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed[requestURI] = storedPAR{request: request, expiry: expiry}
	return nil
}

// ConsumePAR retrieves and deletes the pushed request under a single lock,
// so a request_uri is usable exactly once.
func (s *Store) ConsumePAR(ctx context.Context, requestURI string) (*oidc.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.pushed[requestURI]
	if !ok {
		return nil, fmt.Errorf("request_uri %q not found", requestURI)
	}
	delete(s.pushed, requestURI)
	if stored.expiry.Before(time.Now()) {
		return nil, fmt.Errorf("request_uri %q expired", requestURI)
	}
	return stored.request, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for jti, expiry := range s.jtis {
		if expiry.Before(now) {
			delete(s.jtis, jti)
			cleaned++
		}
	}
	for uri, stored := range s.pushed {
		if stored.expiry.Before(now) {
			delete(s.pushed, uri)
			cleaned++
		}
	}
	for id, grant := range s.arrangements {
		if !grant.Expiry.IsZero() && grant.Expiry.Before(now) {
			delete(s.arrangements, id)
			cleaned++
		}
	}
	for id, grant := range s.refreshGrants {
		if !grant.Expiry.IsZero() && grant.Expiry.Before(now) {
			delete(s.refreshGrants, id)
			cleaned++
		}
	}
	if cleaned > 0 {
		s.logger.Debug("cleaned up expired entries", "count", cleaned)
	}
}
