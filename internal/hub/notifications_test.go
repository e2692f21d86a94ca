package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/dashhub/internal/ports"
)

// =============================================================================
// Notifications: store first, then broadcast on the global topic
// =============================================================================

func newTestNotifications() (*Notifications, *memStore, *Broadcaster) {
	store := &memStore{}
	bc := NewBroadcaster(nil, nil)
	return NewNotifications(store, bc, nil, nil), store, bc
}

// join subscribes c and delivers the backlog to it ahead of live frames,
// as the stream handler does.
func join(t *testing.T, h *Notifications, c Conn, lastEventID int64) {
	t.Helper()
	backlog, err := h.Subscribe(context.Background(), c, lastEventID)
	require.NoError(t, err)
	for _, f := range backlog {
		require.NoError(t, c.Write(f))
	}
}

func sample(project, severity string) ports.NewNotification {
	return ports.NewNotification{
		ProjectID: project,
		Type:      "plan_completed",
		Severity:  severity,
		Title:     "Plan finished",
		Message:   "All tasks done",
	}
}

func TestNotifications_SubscribeSendsCountFirst(t *testing.T) {
	h, store, _ := newTestNotifications()
	ctx := context.Background()
	_, err := store.Create(ctx, sample("p1", ports.SeverityInfo))
	require.NoError(t, err)
	_, err = store.Create(ctx, sample("p1", ports.SeverityInfo))
	require.NoError(t, err)

	c := newRecConn()
	join(t, h, c, 0)
	require.Equal(t, []string{KindCount}, c.kinds())
	assert.Equal(t, CountFrame{Count: 2}, c.snapshot()[0])
	assert.Equal(t, 1, h.Subscribers())
}

func TestNotifications_PublishStoresThenBroadcasts(t *testing.T) {
	h, store, _ := newTestNotifications()
	ctx := context.Background()
	a, b := newRecConn(), newRecConn()
	join(t, h, a, 0)
	join(t, h, b, 0)

	rec, err := h.Publish(ctx, sample("p1", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, ports.SeverityInfo, rec.Severity, "severity defaults to info")

	for _, c := range []*recConn{a, b} {
		require.Equal(t, []string{KindCount, KindNotification}, c.kinds())
		nf := c.snapshot()[1].(NotificationFrame)
		assert.Equal(t, rec.ID, nf.Notification.ID)
		assert.Equal(t, "1", nf.EventID())
	}

	stored, err := store.Notification(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plan finished", stored.Title)
}

func TestNotifications_StoreFailureMeansNoBroadcast(t *testing.T) {
	h, store, _ := newTestNotifications()
	ctx := context.Background()
	c := newRecConn()
	join(t, h, c, 0)

	store.failCreate = errors.New("disk full")
	_, err := h.Publish(ctx, sample("p1", ports.SeverityError))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, []string{KindCount}, c.kinds(), "nothing broadcast when the store fails")
}

func TestNotifications_Validation(t *testing.T) {
	h, store, _ := newTestNotifications()
	ctx := context.Background()

	tests := []struct {
		name string
		in   ports.NewNotification
	}{
		{"missing project", ports.NewNotification{Type: "x", Title: "t"}},
		{"missing type", ports.NewNotification{ProjectID: "p", Title: "t"}},
		{"missing title", ports.NewNotification{ProjectID: "p", Type: "x", Title: "   "}},
		{"bad severity", ports.NewNotification{ProjectID: "p", Type: "x", Title: "t", Severity: "fatal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Publish(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalidNotification)
		})
	}
	n, _ := store.UnreadCount(ctx)
	assert.Equal(t, 0, n)

	rec, err := h.Publish(ctx, sample("p1", "WARNING"))
	require.NoError(t, err)
	assert.Equal(t, ports.SeverityWarning, rec.Severity)
}

func TestNotifications_ReplayAfterLastEventID(t *testing.T) {
	h, _, _ := newTestNotifications()
	ctx := context.Background()
	// Published while nobody is listening.
	for i := 0; i < 3; i++ {
		_, err := h.Publish(ctx, sample("p1", ports.SeverityInfo))
		require.NoError(t, err)
	}

	c := newRecConn()
	join(t, h, c, 1)
	require.Equal(t, []string{KindCount, KindNotification, KindNotification}, c.kinds())
	frames := c.snapshot()
	assert.Equal(t, CountFrame{Count: 3}, frames[0])
	assert.Equal(t, int64(2), frames[1].(NotificationFrame).Notification.ID)
	assert.Equal(t, int64(3), frames[2].(NotificationFrame).Notification.ID)
}

func TestNotifications_BacklogLargerThanStreamBuffer(t *testing.T) {
	h, _, _ := newTestNotifications()
	ctx := context.Background()
	missed := DefaultStreamBuffer + 8
	for i := 0; i < missed+1; i++ {
		_, err := h.Publish(ctx, sample("p1", ports.SeverityInfo))
		require.NoError(t, err)
	}

	s := NewStream(GlobalTopic, 0)
	backlog, err := h.Subscribe(ctx, s, 1)
	require.NoError(t, err)
	require.Len(t, backlog, missed+1)
	assert.Equal(t, CountFrame{Count: missed + 1}, backlog[0])
	assert.Equal(t, int64(2), backlog[1].(NotificationFrame).Notification.ID)
	assert.Equal(t, int64(missed+1), backlog[missed].(NotificationFrame).Notification.ID)

	assert.Equal(t, 1, h.Subscribers())
	assert.False(t, s.Closed())

	// Live frames still reach the stream's own queue.
	rec, err := h.Publish(ctx, sample("p1", ports.SeverityInfo))
	require.NoError(t, err)
	f := <-s.Frames()
	assert.Equal(t, rec.ID, f.(NotificationFrame).Notification.ID)
}

func TestNotifications_SubscribeCountFailure(t *testing.T) {
	h, store, _ := newTestNotifications()
	store.failCount = errors.New("locked")
	c := newRecConn()

	_, err := h.Subscribe(context.Background(), c, 0)
	require.Error(t, err)
	assert.Equal(t, 0, h.Subscribers(), "failed subscribe leaves no member behind")
}

func TestNotifications_PollUnread(t *testing.T) {
	h, _, _ := newTestNotifications()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := h.Publish(ctx, sample("p1", ports.SeverityInfo))
		require.NoError(t, err)
	}
	require.NoError(t, h.MarkRead(ctx, 3))

	got, err := h.PollUnread(ctx, 1)
	require.NoError(t, err)
	var ids []int64
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []int64{2, 4}, ids)

	all, err := h.PollUnread(ctx, -5)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestNotifications_StateChangesPushCount(t *testing.T) {
	h, _, _ := newTestNotifications()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.Publish(ctx, sample("p1", ports.SeverityInfo))
		require.NoError(t, err)
	}
	c := newRecConn()
	join(t, h, c, 0)

	require.NoError(t, h.MarkRead(ctx, 1))
	require.NoError(t, h.Dismiss(ctx, 2))
	n, err := h.MarkAllRead(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var counts []int
	for _, f := range c.snapshot() {
		if cf, ok := f.(CountFrame); ok {
			counts = append(counts, cf.Count)
		}
	}
	assert.Equal(t, []int{3, 2, 1, 0}, counts)

	assert.ErrorIs(t, h.MarkRead(ctx, 99), ports.ErrNotFound)
	assert.ErrorIs(t, h.Dismiss(ctx, 99), ports.ErrNotFound)
}

func TestNotifications_Unsubscribe(t *testing.T) {
	h, _, _ := newTestNotifications()
	ctx := context.Background()
	c := newRecConn()
	join(t, h, c, 0)
	h.Unsubscribe(c)
	h.Unsubscribe(c)

	_, err := h.Publish(ctx, sample("p1", ports.SeverityInfo))
	require.NoError(t, err)
	assert.Equal(t, []string{KindCount}, c.kinds())
}

// TestHub_EndToEnd walks a dashboard session: a project stream sees one
// git-change for a burst, disconnecting stops the watcher, and a global
// notification reaches every global subscriber while being stored unread.
func TestHub_EndToEnd(t *testing.T) {
	ctx := context.Background()
	farm := &watcherFarm{}
	bc := NewBroadcaster(nil, nil)
	reg := NewRegistry(RegistryConfig{Broadcaster: bc, NewWatcher: farm.factory, QuietPeriod: 300 * time.Millisecond})
	defer reg.Shutdown()
	store := &memStore{}
	notes := NewNotifications(store, bc, nil, nil)

	proj := newRecConn()
	require.NoError(t, reg.Subscribe("proj-1", "/work/proj-1/.git", proj))
	assert.Equal(t, []string{KindConnected}, proj.kinds())

	w := farm.last()
	w.emit("/work/proj-1/.git/index")
	time.Sleep(100 * time.Millisecond)
	w.emit("/work/proj-1/.git/refs/heads/main")

	require.Eventually(t, func() bool { return proj.countKind(KindGitChange) == 1 }, 2*time.Second, 10*time.Millisecond)
	quietFor(t, 400*time.Millisecond, func() bool { return proj.countKind(KindGitChange) > 1 }, "two close signals settle once")

	reg.Unsubscribe("proj-1", proj)
	assert.Equal(t, 1, w.stopCount())
	assert.False(t, reg.Active("proj-1"))

	g1, g2 := newRecConn(), newRecConn()
	join(t, notes, g1, 0)
	join(t, notes, g2, 0)

	rec, err := notes.Publish(ctx, ports.NewNotification{
		ProjectID: "proj-1",
		Type:      "build_failed",
		Severity:  ports.SeverityError,
		Title:     "Build failed",
	})
	require.NoError(t, err)

	for _, c := range []*recConn{g1, g2} {
		require.Equal(t, []string{KindCount, KindNotification}, c.kinds())
		assert.Equal(t, rec.ID, c.snapshot()[1].(NotificationFrame).Notification.ID)
	}
	unread, err := store.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}
