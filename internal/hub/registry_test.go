package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Registry: one watcher per project, refcounted by subscribers
// =============================================================================

const testQuiet = 20 * time.Millisecond

func newTestRegistry(t *testing.T) (*Registry, *Broadcaster, *watcherFarm) {
	t.Helper()
	farm := &watcherFarm{}
	bc := NewBroadcaster(nil, nil)
	r := NewRegistry(RegistryConfig{
		Broadcaster: bc,
		NewWatcher:  farm.factory,
		QuietPeriod: testQuiet,
	})
	t.Cleanup(func() { _ = r.Shutdown() })
	return r, bc, farm
}

func TestRegistry_ConnectedFrameFirst(t *testing.T) {
	r, _, farm := newTestRegistry(t)
	c := newRecConn()

	require.NoError(t, r.Subscribe("p1", "/repo/.git", c))
	assert.Equal(t, []string{KindConnected}, c.kinds())
	assert.Equal(t, ConnectedFrame{ProjectID: "p1"}, c.snapshot()[0])
	assert.True(t, r.Active("p1"))
	assert.Equal(t, "/repo/.git", farm.last().gitDir)
}

func TestRegistry_OneWatcherPerProject(t *testing.T) {
	r, bc, farm := newTestRegistry(t)

	var wg sync.WaitGroup
	conns := make([]*recConn, 25)
	for i := range conns {
		conns[i] = newRecConn()
		wg.Add(1)
		go func(c *recConn) {
			defer wg.Done()
			assert.NoError(t, r.Subscribe("p1", "/repo/.git", c))
		}(conns[i])
	}
	wg.Wait()

	assert.Equal(t, 1, farm.count(), "concurrent subscribers share one watcher")
	assert.Equal(t, 25, bc.Count(ProjectTopic("p1")))
	for _, c := range conns {
		assert.Equal(t, 1, c.countKind(KindConnected))
	}
}

func TestRegistry_BurstProducesOneChangePerSubscriber(t *testing.T) {
	r, _, farm := newTestRegistry(t)
	a, b := newRecConn(), newRecConn()
	require.NoError(t, r.Subscribe("p1", "/repo/.git", a))
	require.NoError(t, r.Subscribe("p1", "/repo/.git", b))

	w := farm.last()
	for i := 0; i < 15; i++ {
		w.emit("/repo/.git/index")
	}

	eventually(t, func() bool { return a.countKind(KindGitChange) == 1 && b.countKind(KindGitChange) == 1 },
		"each subscriber gets one git-change")
	quietFor(t, 4*testQuiet, func() bool { return a.countKind(KindGitChange) > 1 }, "burst collapses")

	assert.Equal(t, []string{KindConnected, KindGitChange}, a.kinds())
	change := a.snapshot()[1].(GitChangeFrame)
	assert.Equal(t, "p1", change.ProjectID)
	assert.False(t, change.Timestamp.IsZero())
}

func TestRegistry_ProjectsAreIndependent(t *testing.T) {
	r, _, farm := newTestRegistry(t)
	a, b := newRecConn(), newRecConn()
	require.NoError(t, r.Subscribe("a", "/a/.git", a))
	wa := farm.last()
	require.NoError(t, r.Subscribe("b", "/b/.git", b))
	assert.Equal(t, 2, farm.count())

	wa.emit("/a/.git/HEAD")
	eventually(t, func() bool { return a.countKind(KindGitChange) == 1 }, "a settles")
	quietFor(t, 3*testQuiet, func() bool { return b.countKind(KindGitChange) > 0 }, "b hears nothing")
}

func TestRegistry_AttachFailure(t *testing.T) {
	r, bc, farm := newTestRegistry(t)
	farm.watchErr = errors.New("no such directory")
	c := newRecConn()

	err := r.Subscribe("p1", "/missing/.git", c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttach)
	assert.False(t, r.Active("p1"), "no session after attach failure")
	assert.Equal(t, 0, bc.Count(ProjectTopic("p1")))

	require.Equal(t, []string{KindError}, c.kinds())
	assert.Contains(t, c.snapshot()[0].(ErrorFrame).Message, "no such directory")

	// A later subscribe retries from scratch.
	farm.watchErr = nil
	c2 := newRecConn()
	require.NoError(t, r.Subscribe("p1", "/repo/.git", c2))
	assert.True(t, r.Active("p1"))
}

func TestRegistry_LastUnsubscribeTearsDown(t *testing.T) {
	r, bc, farm := newTestRegistry(t)
	a, b := newRecConn(), newRecConn()
	require.NoError(t, r.Subscribe("p1", "/repo/.git", a))
	require.NoError(t, r.Subscribe("p1", "/repo/.git", b))
	w := farm.last()

	r.Unsubscribe("p1", a)
	assert.True(t, r.Active("p1"), "one subscriber left")
	assert.Equal(t, 0, w.stopCount())

	r.Unsubscribe("p1", b)
	assert.False(t, r.Active("p1"))
	assert.Equal(t, 1, w.stopCount())
	assert.Equal(t, 0, bc.Count(ProjectTopic("p1")))

	// Unknown conn and double unsubscribe are no-ops.
	r.Unsubscribe("p1", b)
	r.Unsubscribe("nope", newRecConn())
	assert.Equal(t, 1, w.stopCount())
}

func TestRegistry_NoLateSettleAfterTeardown(t *testing.T) {
	r, _, farm := newTestRegistry(t)
	c := newRecConn()
	require.NoError(t, r.Subscribe("p1", "/repo/.git", c))

	farm.last().emit("/repo/.git/index")
	// Let the run loop schedule the settle, then leave inside the quiet period.
	eventually(t, func() bool {
		s := r.Sessions()
		return len(s) == 1 && s[0].SettlePending
	}, "settle pending")
	r.Unsubscribe("p1", c)

	writes := c.writes.Load()
	quietFor(t, 4*testQuiet, func() bool { return c.writes.Load() != writes }, "no write after teardown")
}

func TestRegistry_ResubscribeStartsFreshWatcher(t *testing.T) {
	r, _, farm := newTestRegistry(t)
	c := newRecConn()
	require.NoError(t, r.Subscribe("p1", "/repo/.git", c))
	r.Unsubscribe("p1", c)

	c2 := newRecConn()
	require.NoError(t, r.Subscribe("p1", "/repo/.git", c2))
	assert.Equal(t, 2, farm.count())

	farm.last().emit("/repo/.git/HEAD")
	eventually(t, func() bool { return c2.countKind(KindGitChange) == 1 }, "new session delivers")
}

func TestRegistry_WatcherFailureExpiresSession(t *testing.T) {
	r, bc, farm := newTestRegistry(t)
	a, b := newRecConn(), newRecConn()
	require.NoError(t, r.Subscribe("p1", "/repo/.git", a))
	require.NoError(t, r.Subscribe("p1", "/repo/.git", b))
	w := farm.last()

	w.crash(errors.New("watched path removed"))

	eventually(t, func() bool { return !r.Active("p1") }, "session expires")
	for _, c := range []*recConn{a, b} {
		assert.Equal(t, []string{KindConnected, KindError}, c.kinds())
		assert.True(t, c.isClosed(), "streams closed after error frame")
	}
	assert.Equal(t, 1, w.stopCount())
	assert.Equal(t, 0, bc.Count(ProjectTopic("p1")))
}

func TestRegistry_DeadSubscriberIsReaped(t *testing.T) {
	r, _, farm := newTestRegistry(t)
	// Accepts the connected frame, then the peer is gone.
	c := newFailingConn(1)
	require.NoError(t, r.Subscribe("p1", "/repo/.git", c))
	w := farm.last()

	w.emit("/repo/.git/HEAD")

	eventually(t, func() bool { return !r.Active("p1") }, "session reaped once its only subscriber fails")
	assert.True(t, c.isClosed())
	assert.Equal(t, 1, w.stopCount())
}

func TestRegistry_ConnectedWriteFailure(t *testing.T) {
	r, bc, farm := newTestRegistry(t)
	c := newFailingConn(0)

	require.Error(t, r.Subscribe("p1", "/repo/.git", c))
	assert.False(t, r.Active("p1"))
	assert.Equal(t, 0, bc.Count(ProjectTopic("p1")))
	assert.Equal(t, 1, farm.last().stopCount())
}

func TestRegistry_Sessions(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Subscribe("b", "/b/.git", newRecConn()))
	require.NoError(t, r.Subscribe("a", "/a/.git", newRecConn()))
	require.NoError(t, r.Subscribe("a", "/a/.git", newRecConn()))

	got := r.Sessions()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ProjectID)
	assert.Equal(t, 2, got[0].Subscribers)
	assert.Equal(t, "active", got[0].State)
	assert.Equal(t, "b", got[1].ProjectID)
	assert.Equal(t, "/b/.git", got[1].GitDir)
}

func TestRegistry_Shutdown(t *testing.T) {
	r, _, farm := newTestRegistry(t)
	require.NoError(t, r.Subscribe("a", "/a/.git", newRecConn()))
	require.NoError(t, r.Subscribe("b", "/b/.git", newRecConn()))

	require.NoError(t, r.Shutdown())
	assert.Empty(t, r.Sessions())
	for _, w := range farm.created {
		assert.Equal(t, 1, w.stopCount())
	}

	c := newRecConn()
	assert.ErrorIs(t, r.Subscribe("c", "/c/.git", c), ErrShuttingDown)
	assert.Equal(t, []string{KindError}, c.kinds())

	// Idempotent.
	require.NoError(t, r.Shutdown())
}
