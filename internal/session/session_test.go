package session_test

import (
	"context"
	"errors"
	"testing"

	"archsync/internal/session"

	"github.com/stretchr/testify/assert"
)

func TestInterceptHoldResetsOnError(t *testing.T) {
	var i session.Intercept
	fail := func() (err error) {
		defer i.Hold(session.Batch)()
		assert.True(t, i.Active())
		return errors.New("save failed")
	}
	assert.Error(t, fail())
	assert.False(t, i.Active())
}

func TestInterceptHoldResetsOnPanic(t *testing.T) {
	var i session.Intercept
	func() {
		defer func() { recover() }()
		defer i.Hold(session.Single)()
		panic("boom")
	}()
	assert.False(t, i.Active())
}

func TestInterceptKinds(t *testing.T) {
	var i session.Intercept
	i.Set(session.Batch)
	i.Set(session.Single)
	i.Reset(session.Batch)
	assert.True(t, i.Active(), "single still held")
	i.Clear()
	assert.False(t, i.Active())
	assert.Equal(t, "single", session.Single.String())
}

func TestSwapData(t *testing.T) {
	s := session.New("arch.json", 0, nil)
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.SwapData("a"))
	assert.False(t, s.SwapData("a"))
	assert.True(t, s.SwapData("b"))
	assert.Equal(t, "b", s.LastData())
}

func TestIsNewVersion(t *testing.T) {
	ctx := context.Background()
	s := session.New("arch.json", 2, nil)
	assert.True(t, s.IsNewVersion(ctx, "a", 1))
	assert.False(t, s.IsNewVersion(ctx, "a", 1))
	assert.False(t, s.IsNewVersion(ctx, "a", 0))
	assert.True(t, s.IsNewVersion(ctx, "a", 2))

	assert.True(t, s.IsNewVersion(ctx, "b", 1))
	assert.True(t, s.IsNewVersion(ctx, "c", 1))
	// "a" was evicted to make room for "c"
	assert.True(t, s.IsNewVersion(ctx, "a", 1))
}

type failingStore struct{}

func (failingStore) MarkVersion(ctx context.Context, session, uri string, version int32, keep int) (bool, error) {
	return false, errors.New("disk full")
}

func TestIsNewVersionFallsBackToMemory(t *testing.T) {
	s := session.New("arch.json", 6, failingStore{})
	assert.True(t, s.IsNewVersion(context.Background(), "a", 1))
	assert.False(t, s.IsNewVersion(context.Background(), "a", 1))
}
