package clientcontext

import (
	"context"

	id "sanctum/pkg/domain"
)

// LatestVersion selects the newest context snapshot in Store.GetContext.
const LatestVersion int64 = 0

// Store is the read-only view the gates consume. Writes happen upstream of
// this layer; the concrete stores expose Put methods for seeding and tests
// only, deliberately outside this interface.
//
// Transient failures surface sentinel.ErrUnavailable so callers can retry
// with backoff; a missing row is sentinel.ErrNotFound and is never retried.
type Store interface {
	GetContext(ctx context.Context, clientID id.ClientID, version int64) (*ClientContext, error)
	GetCoupleLink(ctx context.Context, coupleID id.CoupleID) (*CoupleLink, error)
}
