// internal/claims/service.go
package claims

import (
	"context"

	"github.com/google/uuid"

	"lostfound/internal/evidence"
	"lostfound/internal/platform/pagination"
)

// Service defines the interface for the claim processor.
type Service interface {
	SubmitClaim(ctx context.Context, req SubmitClaimRequest) (*Claim, error)
	RequestMoreInfo(ctx context.Context, claimID uuid.UUID, actor, message string) error
	AddEvidence(ctx context.Context, claimID uuid.UUID, actor string, subs []evidence.Submission) ([]evidence.Evidence, error)
	Decide(ctx context.Context, claimID uuid.UUID, actor string, decision Decision, reason string) (*Claim, error)
	MarkReturned(ctx context.Context, claimID uuid.UUID, actor string) (*Claim, error)

	GetClaim(ctx context.Context, id uuid.UUID) (*ClaimDetail, error)
	ListClaims(ctx context.Context, f Filter, page pagination.Request) (pagination.Page[Claim], error)
}

// Resolver arbitrates found items with more than one live claim. It never
// picks a winner on its own.
type Resolver interface {
	MarkConflicted(ctx context.Context, foundItemID uuid.UUID, actor string) error
	Resolve(ctx context.Context, foundItemID, winnerClaimID uuid.UUID, actor, reason string) (*Claim, error)
	ListConflicts(ctx context.Context, campus int, page pagination.Request) (pagination.Page[ConflictGroup], error)
}
