package claims

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lostfound/internal/actionlog"
	"lostfound/internal/apperr"
	"lostfound/internal/evidence"
	"lostfound/internal/items"
	"lostfound/internal/notify"
	"lostfound/internal/platform/pagination"
)

func TestSubmitClaimCreatesPendingClaim(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("wallet")

	c := f.submit(item.ID, "alice")
	assert.Equal(t, Pending, c.Status)
	assert.Equal(t, PriorityNormal, c.Priority)
	assert.Equal(t, item.Campus, c.Campus)

	found := f.found(item.ID)
	assert.Equal(t, items.FoundClaimed, found.Status)
	assert.Greater(t, found.Version, item.Version)

	detail, err := f.claims.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, detail.Evidence, 1)
	assert.True(t, detail.Evidence[0].Verify())
	assert.Equal(t, []actionlog.ActionType{actionlog.Submitted}, f.history(c.ID))
	assert.Equal(t, "alice", detail.ActionLog[0].Actor)
}

func TestSubmitClaimValidation(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("wallet")

	_, err := f.claims.SubmitClaim(ctx, SubmitClaimRequest{FoundItemID: item.ID, Claimant: " "})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.claims.SubmitClaim(ctx, SubmitClaimRequest{
		FoundItemID: item.ID, Claimant: "alice", Evidence: []evidence.Submission{{ImageRefs: []string{"a.png"}}},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.claims.SubmitClaim(ctx, SubmitClaimRequest{FoundItemID: uuid.New(), Claimant: "alice"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	unknownLost := uuid.New()
	_, err = f.claims.SubmitClaim(ctx, SubmitClaimRequest{FoundItemID: item.ID, LostItemID: &unknownLost, Claimant: "alice"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	lost := f.lostItem("alice", "wallet")
	_, err = f.items.CloseLostItem(ctx, lost.ID, "alice")
	require.NoError(t, err)
	_, err = f.claims.SubmitClaim(ctx, SubmitClaimRequest{FoundItemID: item.ID, LostItemID: &lost.ID, Claimant: "alice"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	unstored, err := f.items.CreateFoundItem(ctx, "finder", items.NewFoundItem{Category: "keys", Campus: 1, Title: "keys", FoundDate: jan10})
	require.NoError(t, err)
	_, err = f.claims.SubmitClaim(ctx, SubmitClaimRequest{FoundItemID: unstored.ID, Claimant: "alice"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	// nothing was written by the failed attempts
	assert.Equal(t, items.FoundStored, f.found(item.ID).Status)
	assert.Zero(t, f.logCount())
}

func TestDuplicateLiveClaimRejected(t *testing.T) {
	f := newFixture(t, time.Second)
	item := f.storedItem("wallet")
	f.submit(item.ID, "alice")

	_, err := f.claims.SubmitClaim(context.Background(), SubmitClaimRequest{FoundItemID: item.ID, Claimant: "alice"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSecondClaimConflictsBoth(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("phone")

	c1 := f.submit(item.ID, "alice")
	c2 := f.submit(item.ID, "bob")
	assert.Equal(t, Conflicted, c2.Status)
	assert.Equal(t, PriorityHigh, c2.Priority)
	assert.Equal(t, Conflicted, f.claim(c1.ID).Status)

	assert.Equal(t, []actionlog.ActionType{actionlog.Submitted, actionlog.ConflictFound}, f.history(c1.ID))
	assert.Equal(t, []actionlog.ActionType{actionlog.Submitted, actionlog.ConflictFound}, f.history(c2.ID))

	// a third claim only adds its own conflict entry
	c3 := f.submit(item.ID, "carol")
	assert.Equal(t, Conflicted, c3.Status)
	assert.Len(t, f.history(c1.ID), 2)

	groups, err := f.resolver.ListConflicts(ctx, 0, pagination.Normalize(1, 10))
	require.NoError(t, err)
	require.Len(t, groups.Items, 1)
	assert.Equal(t, item.ID, groups.Items[0].FoundItemID)
	assert.Len(t, groups.Items[0].Claims, 3)
	assert.Equal(t, 1, groups.TotalCount)

	other, err := f.resolver.ListConflicts(ctx, 2, pagination.Normalize(1, 10))
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}

func TestResolveTwoClaimScenario(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	f2 := f.storedItem("laptop")
	c1 := f.submit(f2.ID, "alice")
	c2 := f.submit(f2.ID, "bob")

	winner, err := f.resolver.Resolve(ctx, f2.ID, c1.ID, "staff", "serial number matches")
	require.NoError(t, err)
	assert.Equal(t, Approved, winner.Status)
	assert.Equal(t, "serial number matches", winner.Reason)

	loser := f.claim(c2.ID)
	assert.Equal(t, Rejected, loser.Status)
	assert.Equal(t, "superseded by approved claim", loser.Reason)
	assert.Equal(t, items.FoundClaimed, f.found(f2.ID).Status)

	assert.Equal(t, actionlog.DisputeResolved, f.history(c1.ID)[2])
	assert.Equal(t, actionlog.Rejected, f.history(c2.ID)[2])
	assert.Equal(t, []notify.Kind{notify.ClaimApproved}, f.notified.kinds(c1.ID))
	assert.Equal(t, []notify.Kind{notify.ClaimRejected}, f.notified.kinds(c2.ID))
}

func TestApprovalCascade(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("bike")
	a := f.submit(item.ID, "alice")
	b := f.submit(item.ID, "bob")
	c := f.submit(item.ID, "carol")
	before := f.logCount()

	approved, err := f.claims.Decide(ctx, a.ID, "staff", Approve, "")
	require.NoError(t, err)
	assert.Equal(t, Approved, approved.Status)
	assert.Equal(t, Rejected, f.claim(b.ID).Status)
	assert.Equal(t, Rejected, f.claim(c.ID).Status)
	assert.Equal(t, items.FoundClaimed, f.found(item.ID).Status)
	assert.Equal(t, before+3, f.logCount())
	assert.Equal(t, 1, f.winners(item.ID))

	_, err = f.claims.Decide(ctx, b.ID, "staff", Approve, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestDecisionRollsBackOnFailure(t *testing.T) {
	cases := map[string]string{
		"sibling rejection log": `
			CREATE TRIGGER fail_decision BEFORE INSERT ON action_log
			WHEN NEW.action_type = 'rejected'
			BEGIN SELECT RAISE(ABORT, 'rejection log unavailable'); END`,
		"lost item resolution": `
			CREATE TRIGGER fail_decision BEFORE UPDATE ON lost_items
			WHEN NEW.status = 'resolved'
			BEGIN SELECT RAISE(ABORT, 'lost item store unavailable'); END`,
	}
	for name, trigger := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, time.Second)
			ctx := context.Background()
			item := f.storedItem("phone")
			lost := f.lostItem("alice", "phone")
			a, err := f.claims.SubmitClaim(ctx, SubmitClaimRequest{
				FoundItemID: item.ID,
				LostItemID:  &lost.ID,
				Claimant:    "alice",
			})
			require.NoError(t, err)
			b := f.submit(item.ID, "bob")
			before := f.logCount()
			version := f.found(item.ID).Version

			_, err = f.db.ExecContext(ctx, trigger)
			require.NoError(t, err)

			_, err = f.claims.Decide(ctx, a.ID, "staff", Approve, "")
			require.Error(t, err)

			assert.Equal(t, Conflicted, f.claim(a.ID).Status)
			assert.Equal(t, Conflicted, f.claim(b.ID).Status)
			assert.Equal(t, items.FoundClaimed, f.found(item.ID).Status)
			assert.Equal(t, version, f.found(item.ID).Version)
			assert.Equal(t, 0, f.winners(item.ID))
			assert.Equal(t, before, f.logCount())
			assert.Empty(t, f.notified.kinds(a.ID))
			assert.Empty(t, f.notified.kinds(b.ID))

			stillOpen, err := f.items.GetLostItem(ctx, lost.ID)
			require.NoError(t, err)
			assert.Equal(t, items.LostOpen, stillOpen.Status)

			_, err = f.db.ExecContext(ctx, `DROP TRIGGER fail_decision`)
			require.NoError(t, err)
			_, err = f.claims.Decide(ctx, a.ID, "staff", Approve, "")
			require.NoError(t, err)
			assert.Equal(t, 1, f.winners(item.ID))
		})
	}
}

func TestWalletScenarioThroughReturn(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	l1 := f.lostItem("alice", "wallet")
	f1 := f.storedItem("wallet")

	c1, err := f.claims.SubmitClaim(ctx, SubmitClaimRequest{
		FoundItemID: f1.ID, LostItemID: &l1.ID, Claimant: "alice",
		Evidence: []evidence.Submission{{Title: "student card inside"}},
	})
	require.NoError(t, err)

	approved, err := f.claims.Decide(ctx, c1.ID, "staff", Approve, "card matches")
	require.NoError(t, err)
	assert.Equal(t, Approved, approved.Status)

	lost, err := f.items.GetLostItem(ctx, l1.ID)
	require.NoError(t, err)
	assert.Equal(t, items.LostResolved, lost.Status)

	returned, err := f.claims.MarkReturned(ctx, c1.ID, "staff")
	require.NoError(t, err)
	assert.Equal(t, Returned, returned.Status)
	assert.Equal(t, items.FoundReturned, f.found(f1.ID).Status)

	again, err := f.claims.MarkReturned(ctx, c1.ID, "staff")
	require.NoError(t, err)
	assert.Equal(t, Returned, again.Status)

	assert.Equal(t, []actionlog.ActionType{actionlog.Submitted, actionlog.Approved, actionlog.Returned}, f.history(c1.ID))
	assert.Equal(t, []notify.Kind{notify.ClaimApproved, notify.ClaimReturned}, f.notified.kinds(c1.ID))
}

func TestMarkReturnedRequiresApproval(t *testing.T) {
	f := newFixture(t, time.Second)
	item := f.storedItem("keys")
	c := f.submit(item.ID, "alice")

	_, err := f.claims.MarkReturned(context.Background(), c.ID, "staff")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.claims.MarkReturned(context.Background(), uuid.New(), "staff")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRejectLastLiveClaimRestocksItem(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("scarf")
	c := f.submit(item.ID, "alice")

	rejected, err := f.claims.Decide(ctx, c.ID, "staff", Reject, "wrong colour")
	require.NoError(t, err)
	assert.Equal(t, Rejected, rejected.Status)
	assert.Equal(t, "wrong colour", rejected.Reason)
	assert.Equal(t, items.FoundStored, f.found(item.ID).Status)
	assert.Equal(t, []notify.Kind{notify.ClaimRejected}, f.notified.kinds(c.ID))

	_, err = f.claims.Decide(ctx, c.ID, "staff", Reject, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	// the item can be claimed again
	next := f.submit(item.ID, "alice")
	assert.Equal(t, Pending, next.Status)
}

func TestRejectOneConflictedClaimKeepsOther(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("watch")
	c1 := f.submit(item.ID, "alice")
	c2 := f.submit(item.ID, "bob")

	_, err := f.claims.Decide(ctx, c1.ID, "staff", Reject, "")
	require.NoError(t, err)
	assert.Equal(t, Conflicted, f.claim(c2.ID).Status)
	assert.Equal(t, items.FoundClaimed, f.found(item.ID).Status)

	// approving the remaining conflicted claim goes through dispute resolution
	won, err := f.claims.Decide(ctx, c2.ID, "staff", Approve, "")
	require.NoError(t, err)
	assert.Equal(t, Approved, won.Status)
	assert.Equal(t, actionlog.DisputeResolved, f.history(c2.ID)[len(f.history(c2.ID))-1])
}

func TestSubmitAfterWinnerRejected(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("bag")
	c := f.submit(item.ID, "alice")
	_, err := f.claims.Decide(ctx, c.ID, "staff", Approve, "")
	require.NoError(t, err)

	_, err = f.claims.SubmitClaim(ctx, SubmitClaimRequest{FoundItemID: item.ID, Claimant: "mallory"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestDecideValidation(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("bag")
	c := f.submit(item.ID, "alice")

	_, err := f.claims.Decide(ctx, c.ID, "", Approve, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = f.claims.Decide(ctx, c.ID, "staff", Decision("maybe"), "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = f.claims.Decide(ctx, uuid.New(), "staff", Approve, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRequestMoreInfo(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("glasses")
	c := f.submit(item.ID, "alice")

	err := f.claims.RequestMoreInfo(ctx, c.ID, "staff", " ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	require.NoError(t, f.claims.RequestMoreInfo(ctx, c.ID, "staff", "Which brand?"))
	assert.Equal(t, Pending, f.claim(c.ID).Status)
	assert.Equal(t, []actionlog.ActionType{actionlog.Submitted, actionlog.InfoRequested}, f.history(c.ID))
	assert.Equal(t, []notify.Kind{notify.InfoRequested}, f.notified.kinds(c.ID))

	_, err = f.claims.Decide(ctx, c.ID, "staff", Reject, "")
	require.NoError(t, err)
	err = f.claims.RequestMoreInfo(ctx, c.ID, "staff", "Anything else?")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAddEvidence(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("camera")
	c := f.submit(item.ID, "alice")

	added, err := f.claims.AddEvidence(ctx, c.ID, "alice", []evidence.Submission{{Title: "receipt", ImageRefs: []string{"r.png"}}})
	require.NoError(t, err)
	require.Len(t, added, 1)

	_, err = f.claims.AddEvidence(ctx, c.ID, "bob", []evidence.Submission{{Title: "mine"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = f.claims.AddEvidence(ctx, c.ID, "alice", nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	detail, err := f.claims.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Evidence, 2)
}

func TestResolveRequiresConflictedWinner(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("umbrella")
	other := f.storedItem("umbrella")
	c := f.submit(item.ID, "alice")
	o1 := f.submit(other.ID, "bob")
	f.submit(other.ID, "carol")

	_, err := f.resolver.Resolve(ctx, item.ID, c.ID, "staff", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument, "pending winner")

	_, err = f.resolver.Resolve(ctx, item.ID, o1.ID, "staff", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument, "claim on another item")

	_, err = f.resolver.Resolve(ctx, item.ID, uuid.New(), "staff", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument, "unknown claim")

	_, err = f.resolver.Resolve(ctx, uuid.New(), o1.ID, "staff", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "unknown item")

	assert.Zero(t, f.winners(other.ID))
}

func TestMarkConflicted(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	item := f.storedItem("hat")

	require.NoError(t, f.resolver.MarkConflicted(ctx, item.ID, "staff"))
	assert.Equal(t, items.FoundStored, f.found(item.ID).Status)

	c := f.submit(item.ID, "alice")
	require.NoError(t, f.resolver.MarkConflicted(ctx, item.ID, "staff"))
	assert.Equal(t, Conflicted, f.claim(c.ID).Status)
	version := f.found(item.ID).Version

	require.NoError(t, f.resolver.MarkConflicted(ctx, item.ID, "staff"))
	assert.Equal(t, version, f.found(item.ID).Version)
	assert.Equal(t, []actionlog.ActionType{actionlog.Submitted, actionlog.ConflictFound}, f.history(c.ID))

	err := f.resolver.MarkConflicted(ctx, uuid.New(), "staff")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDecideBusyWhileItemLocked(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()
	item := f.storedItem("ring")
	c := f.submit(item.ID, "alice")

	release, err := f.locks.Acquire(ctx, item.ID)
	require.NoError(t, err)
	defer release()

	_, err = f.claims.Decide(ctx, c.ID, "staff", Approve, "")
	assert.ErrorIs(t, err, apperr.ErrBusy)
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, Pending, f.claim(c.ID).Status)
}

func TestListClaimsFilters(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	a := f.storedItem("pen")
	b := f.storedItem("mug")
	f.submit(a.ID, "alice")
	f.submit(b.ID, "bob")
	f.submit(b.ID, "carol")

	page, err := f.claims.ListClaims(ctx, Filter{Status: Pending}, pagination.Normalize(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)

	page, err = f.claims.ListClaims(ctx, Filter{FoundItemID: b.ID}, pagination.Normalize(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	assert.True(t, page.HasNext)
	assert.Equal(t, PriorityHigh, page.Items[0].Priority)
}
