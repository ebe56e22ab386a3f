package op

import (
	"context"
	"time"

	jose "github.com/go-jose/go-jose/v3"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// Client is a registered data recipient application.
type Client interface {
	GetID() string
	RedirectURIs() []string
	GrantTypes() []oidc.GrantType
	ResponseTypes() []oidc.ResponseType
	IsScopeAllowed(scope string) bool
	// TrustedKeys returns the JSON Web Keys registered for the client,
	// used to verify client assertions and request objects.
	TrustedKeys() *jose.JSONWebKeySet
	// SoftwareID identifies the registered software product of the client.
	SoftwareID() string
	// RequiresPAR reports whether the client may only use pushed authorization requests.
	RequiresPAR() bool
}

// ClientStore resolves registered clients.
type ClientStore interface {
	// GetEnabledClientByID returns the client iff it exists and is enabled.
	GetEnabledClientByID(ctx context.Context, clientID string) (Client, error)
}

// ArrangementGrant is a long-lived consent binding a client to a scope set.
type ArrangementGrant struct {
	ID       string
	ClientID string
	Subject  string
	Scopes   []string
	Expiry   time.Time
}

// RefreshTokenGrant is a persisted refresh token grant derived from an arrangement.
type RefreshTokenGrant struct {
	ID            string
	ArrangementID string
	ClientID      string
	Subject       string
	Scopes        []string
	Expiry        time.Time
}

// ArrangementStore persists sharing arrangements and their dependent
// refresh token grants.
type ArrangementStore interface {
	GetArrangement(ctx context.Context, id string) (*ArrangementGrant, error)
	CreateArrangement(ctx context.Context, grant *ArrangementGrant) error
	// DeleteArrangementIfOwned atomically deletes the arrangement iff it is
	// owned by clientID and reports whether a row was deleted. The atomicity
	// closes the race between a concurrent ownership check and a concurrent
	// revocation by another caller.
	DeleteArrangementIfOwned(ctx context.Context, id, clientID string) (bool, error)
	// DeleteRelatedGrants removes every refresh token grant derived from the arrangement.
	DeleteRelatedGrants(ctx context.Context, arrangementID string) error
	GetRefreshTokenGrant(ctx context.Context, id string) (*RefreshTokenGrant, error)
	CreateRefreshTokenGrant(ctx context.Context, grant *RefreshTokenGrant) error
	// DeleteRefreshTokenGrantIfOwned atomically deletes the grant iff it is
	// owned by clientID and reports whether a row was deleted.
	DeleteRefreshTokenGrantIfOwned(ctx context.Context, id, clientID string) (bool, error)
}

// TokenReplayCache records already-seen jti values.
//
// TryAdd must be an atomic insert-if-absent: a naive check-then-insert
// lets two concurrent requests replay the same assertion.
type TokenReplayCache interface {
	// TryAdd inserts jti with the assertion's own expiry and reports whether
	// the insert happened. False means the jti was already present.
	TryAdd(ctx context.Context, jti string, expiry time.Time) (bool, error)
	// TryFind reports whether jti is present and unexpired.
	TryFind(ctx context.Context, jti string) (bool, error)
}

// ParticipantStatus is the registry status of a participant or software product.
type ParticipantStatus string

const (
	StatusActive      ParticipantStatus = "Active"
	StatusInactive    ParticipantStatus = "Inactive"
	StatusRemoved     ParticipantStatus = "Removed"
	StatusSuspended   ParticipantStatus = "Suspended"
	StatusRevoked     ParticipantStatus = "Revoked"
	StatusSurrendered ParticipantStatus = "Surrendered"
)

// StatusLookup resolves registry statuses from the ecosystem directory.
type StatusLookup interface {
	GetParticipantStatus(ctx context.Context, participantID string) (ParticipantStatus, error)
	GetSoftwareProductStatus(ctx context.Context, softwareID string) (ParticipantStatus, error)
}

// PARStorage persists pushed authorization requests under their request_uri
// until the authorize endpoint consumes them or the TTL elapses.
type PARStorage interface {
	StorePAR(ctx context.Context, requestURI string, request *oidc.AuthRequest, expiry time.Time) error
	ConsumePAR(ctx context.Context, requestURI string) (*oidc.AuthRequest, error)
}
