package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lostfound/internal/apperr"
)

func insertFoundItem(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO found_items (id, reporter, category, campus, title, found_date, status, created_at, updated_at)
		VALUES (?, 'staff', 'Wallet', 1, 'wallet', ?, 'stored', ?, ?)`), id, now, now, now)
	return err
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := NewTestDB(t)
	require.NoError(t, d.Migrate(zerolog.Nop()))

	version, dirty, err := d.MigrationVersion(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	d := NewTestDB(t)
	ctx := context.Background()
	id := uuid.New()

	boom := errors.New("boom")
	err := d.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertFoundItem(ctx, tx, id); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, d.GetContext(ctx, &n, `SELECT COUNT(*) FROM found_items`))
	assert.Equal(t, 0, n)
}

func TestSingleWinnerIndexClassifiedAsConflict(t *testing.T) {
	d := NewTestDB(t)
	ctx := context.Background()
	item := uuid.New()
	require.NoError(t, insertFoundItem(ctx, d, item))

	insertClaim := func(q sqlx.ExtContext, status string) error {
		now := time.Now().UTC()
		_, err := q.ExecContext(ctx, q.Rebind(`
			INSERT INTO claims (id, found_item_id, claimant, campus, status, submitted_at, updated_at)
			VALUES (?, ?, 'student', 1, ?, ?, ?)`), uuid.New(), item, status, now, now)
		return err
	}

	require.NoError(t, insertClaim(d, "approved"))
	require.NoError(t, insertClaim(d, "rejected"))

	err := d.WithTx(ctx, func(tx *sqlx.Tx) error { return insertClaim(tx, "returned") })
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestAppendOnlyTablesRejectChanges(t *testing.T) {
	dialects := map[string]func(testing.TB) *DB{
		"sqlite":   NewTestDB,
		"postgres": NewPostgresTestDB,
	}
	for name, open := range dialects {
		t.Run(name, func(t *testing.T) {
			d := open(t)
			ctx := context.Background()
			item, claim := uuid.New(), uuid.New()
			now := time.Now().UTC()
			require.NoError(t, insertFoundItem(ctx, d, item))
			_, err := d.ExecContext(ctx, d.Rebind(`
				INSERT INTO claims (id, found_item_id, claimant, campus, status, submitted_at, updated_at)
				VALUES (?, ?, 'student', 1, 'pending', ?, ?)`), claim, item, now, now)
			require.NoError(t, err)
			_, err = d.ExecContext(ctx, d.Rebind(`
				INSERT INTO action_log (claim_id, action_type, actor, campus, created_at)
				VALUES (?, 'submitted', 'student', 1, ?)`), claim, now)
			require.NoError(t, err)
			_, err = d.ExecContext(ctx, d.Rebind(`
				INSERT INTO evidence (id, claim_id, title, digest, created_at)
				VALUES (?, ?, 'mine', 'digest', ?)`), uuid.New(), claim, now)
			require.NoError(t, err)

			_, err = d.ExecContext(ctx, d.Rebind(`UPDATE action_log SET actor = 'mallory' WHERE claim_id = ?`), claim)
			assert.Error(t, err)
			_, err = d.ExecContext(ctx, d.Rebind(`DELETE FROM action_log WHERE claim_id = ?`), claim)
			assert.Error(t, err)
			_, err = d.ExecContext(ctx, d.Rebind(`UPDATE evidence SET title = 'forged' WHERE claim_id = ?`), claim)
			assert.Error(t, err)

			var actors []string
			require.NoError(t, d.SelectContext(ctx, &actors, d.Rebind(`SELECT actor FROM action_log WHERE claim_id = ?`), claim))
			assert.Equal(t, []string{"student"}, actors)
			var title string
			require.NoError(t, d.GetContext(ctx, &title, d.Rebind(`SELECT title FROM evidence WHERE claim_id = ?`), claim))
			assert.Equal(t, "mine", title)
		})
	}
}

func TestStringListRoundTrip(t *testing.T) {
	var l StringList
	require.NoError(t, l.Scan(`["a.jpg","b.jpg"]`))
	assert.Equal(t, StringList{"a.jpg", "b.jpg"}, l)

	require.NoError(t, l.Scan(nil))
	assert.Empty(t, l)

	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}
