package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"archsync/internal/session"
	"archsync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var _ session.VersionStore = (*store.Store)(nil)

func TestBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordBatch(ctx, store.Batch{
			ID:        id,
			Session:   "s1",
			StartedAt: base.Add(time.Duration(i) * time.Second),
			Edits:     i + 1,
			Files:     []string{"file:///x.ol"},
		}))
	}
	require.NoError(t, s.RecordBatch(ctx, store.Batch{ID: "d", Session: "s1", StartedAt: base.Add(time.Hour), Error: "save failed"}))

	batches, err := s.RecentBatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "d", batches[0].ID)
	assert.Equal(t, "save failed", batches[0].Error)
	assert.Empty(t, batches[0].Files)
	assert.Equal(t, "c", batches[1].ID)
	assert.Equal(t, 3, batches[1].Edits)
	assert.Equal(t, []string{"file:///x.ol"}, batches[1].Files)
	assert.True(t, batches[1].StartedAt.Equal(base.Add(2*time.Second)))

	n, err := s.PruneBatches(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	batches, err = s.RecentBatches(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestMarkVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mark := func(session, uri string, version int32) bool {
		t.Helper()
		fresh, err := s.MarkVersion(ctx, session, uri, version, 2)
		require.NoError(t, err)
		return fresh
	}

	assert.True(t, mark("s1", "a", 1))
	assert.False(t, mark("s1", "a", 1))
	assert.False(t, mark("s1", "a", 0))
	assert.True(t, mark("s1", "a", 3))

	assert.True(t, mark("s1", "b", 1))
	assert.True(t, mark("s1", "c", 1))
	// "a" was the least recently recorded and is forgotten
	assert.True(t, mark("s1", "a", 1))
	assert.False(t, mark("s1", "c", 1))

	// sessions do not share versions
	assert.True(t, mark("s2", "c", 1))
}

func TestSessionUsesStore(t *testing.T) {
	s := newTestStore(t)
	sess := session.New("arch.json", 6, s)
	ctx := context.Background()

	assert.True(t, sess.IsNewVersion(ctx, "file:///a.ol", 4))
	assert.False(t, sess.IsNewVersion(ctx, "file:///a.ol", 4))

	fresh, err := s.MarkVersion(ctx, sess.ID, "file:///a.ol", 4, 6)
	require.NoError(t, err)
	assert.False(t, fresh, "the session recorded through the store")
}
