package claims

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"lostfound/internal/actionlog"
	"lostfound/internal/evidence"
	"lostfound/internal/items"
	"lostfound/internal/notify"
	"lostfound/internal/platform/db"
	"lostfound/internal/platform/lock"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) kinds(claimID uuid.UUID) []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Kind
	for _, n := range r.sent {
		if n.ClaimID == claimID {
			out = append(out, n.Kind)
		}
	}
	return out
}

type fixture struct {
	t        testing.TB
	db       *db.DB
	locks    *lock.Keyed
	items    items.Service
	claims   Service
	resolver Resolver
	notified *recordingNotifier
}

func newFixture(t testing.TB, lockTimeout time.Duration) *fixture {
	t.Helper()
	d := db.NewTestDB(t)
	locks := lock.NewKeyed(lockTimeout)
	rec := &recordingNotifier{}
	return &fixture{
		t:        t,
		db:       d,
		locks:    locks,
		items:    items.NewService(d, locks, nil, zerolog.Nop()),
		claims:   NewService(d, locks, rec, nil, zerolog.Nop()),
		resolver: NewResolver(d, locks, rec, nil, zerolog.Nop()),
		notified: rec,
	}
}

var jan10 = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func (f *fixture) storedItem(category string) *items.FoundItem {
	f.t.Helper()
	ctx := context.Background()
	item, err := f.items.CreateFoundItem(ctx, "finder", items.NewFoundItem{
		Category: category, Campus: 1, Title: category, FoundDate: jan10,
	})
	require.NoError(f.t, err)
	item, err = f.items.StoreFoundItem(ctx, item.ID, "staff", "Shelf A")
	require.NoError(f.t, err)
	return item
}

func (f *fixture) lostItem(owner, category string) *items.LostItem {
	f.t.Helper()
	item, err := f.items.CreateLostItem(context.Background(), owner, items.NewLostItem{
		Category: category, Campus: 1, Title: category, LostDate: jan10,
	})
	require.NoError(f.t, err)
	return item
}

func (f *fixture) submit(foundID uuid.UUID, claimant string) *Claim {
	f.t.Helper()
	c, err := f.claims.SubmitClaim(context.Background(), SubmitClaimRequest{
		FoundItemID: foundID,
		Claimant:    claimant,
		Evidence:    []evidence.Submission{{Title: "it is mine", Description: claimant + " knows the contents"}},
	})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) claim(id uuid.UUID) *Claim {
	f.t.Helper()
	c, err := NewRepository(f.db).Get(context.Background(), id)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) found(id uuid.UUID) *items.FoundItem {
	f.t.Helper()
	item, err := f.items.GetFoundItem(context.Background(), id)
	require.NoError(f.t, err)
	return item
}

func (f *fixture) history(claimID uuid.UUID) []actionlog.ActionType {
	f.t.Helper()
	entries, err := actionlog.NewStore(f.db).ListByClaim(context.Background(), claimID)
	require.NoError(f.t, err)
	out := make([]actionlog.ActionType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ActionType)
	}
	return out
}

func (f *fixture) logCount() int {
	f.t.Helper()
	var n int
	require.NoError(f.t, f.db.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM action_log`))
	return n
}

func (f *fixture) winners(foundID uuid.UUID) int {
	f.t.Helper()
	all, err := NewRepository(f.db).ListByItem(context.Background(), foundID)
	require.NoError(f.t, err)
	n := 0
	for _, c := range all {
		if c.Status.Winning() {
			n++
		}
	}
	return n
}
