package op

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// Sentinel errors returned by ArrangementStore implementations.
var (
	ErrArrangementNotFound = errors.New("arrangement not found")
	ErrGrantNotFound       = errors.New("refresh token grant not found")
)

// ArrangementValidator checks and revokes sharing arrangements. Unknown and
// foreign arrangements produce the same error so callers cannot discover
// which arrangement ids exist.
type ArrangementValidator struct {
	Store  ArrangementStore
	Events EventSink
	Logger *slog.Logger
}

// CheckOwnership verifies that the arrangement exists, belongs to clientID and
// has not expired.
func (v *ArrangementValidator) CheckOwnership(ctx context.Context, arrangementID, clientID string) *oidc.Error {
	grant, err := v.Store.GetArrangement(ctx, arrangementID)
	if err != nil {
		if errors.Is(err, ErrArrangementNotFound) {
			return v.invalidArrangement(ctx, arrangementID, "unknown arrangement", EventArrangementOwnershipDenied, nil)
		}
		return oidc.ErrServerError().WithParent(err)
	}
	if grant.ClientID != clientID {
		return v.invalidArrangement(ctx, arrangementID, "arrangement owned by another client", EventArrangementOwnershipDenied, nil)
	}
	if !grant.Expiry.IsZero() && grant.Expiry.Before(time.Now()) {
		return v.invalidArrangement(ctx, arrangementID, "arrangement expired", EventArrangementOwnershipDenied, nil)
	}
	return nil
}

// Revoke deletes the arrangement and cascades to every refresh token grant
// derived from it. The delete is conditional on ownership in a single store
// operation, so two concurrent revocations (or a revocation racing an
// ownership transfer) cannot both succeed.
func (v *ArrangementValidator) Revoke(ctx context.Context, arrangementID, clientID string) *oidc.Error {
	deleted, err := v.Store.DeleteArrangementIfOwned(ctx, arrangementID, clientID)
	if err != nil {
		if v.Events != nil {
			v.Events.Raise(EventArrangementRevocationFailed, CheckArrangementRevocation)
		}
		return oidc.ErrServerError().WithParent(err)
	}
	if !deleted {
		return v.invalidArrangement(ctx, arrangementID, "arrangement not deletable by client", EventArrangementRevocationFailed, nil)
	}
	if err := v.Store.DeleteRelatedGrants(ctx, arrangementID); err != nil {
		// the arrangement itself is gone; the orphaned grants must still
		// surface as a failure to the caller
		if v.Events != nil {
			v.Events.Raise(EventArrangementRevocationFailed, CheckArrangementRevocation)
		}
		return oidc.ErrServerError().WithParent(err)
	}
	if v.Events != nil {
		v.Events.Raise(EventArrangementRevoked, CheckArrangementRevocation)
	}
	return nil
}

func (v *ArrangementValidator) invalidArrangement(ctx context.Context, arrangementID, reason string, kind EventKind, cause error) *oidc.Error {
	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "arrangement rejected",
		"arrangement_id", arrangementID,
		"reason", reason,
		"cause", cause)
	if v.Events != nil {
		v.Events.Raise(kind, CheckArrangementOwnership)
	}
	// identical wording for unknown and foreign arrangements
	return oidc.ErrInvalidRequest().WithDescription("invalid arrangement").WithParent(cause)
}
