package hub

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/corey/dashhub/internal/ports"
)

// Notifications is the global feed: every published notification is stored
// first and broadcast second, on GlobalTopic. There is no watcher and no
// debounce.
type Notifications struct {
	store   ports.NotificationStore
	bc      *Broadcaster
	logger  *zap.Logger
	metrics ports.Metrics
}

// NewNotifications creates the global notification hub.
func NewNotifications(store ports.NotificationStore, bc *Broadcaster, logger *zap.Logger, metrics ports.Metrics) *Notifications {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Notifications{
		store:   store,
		bc:      bc,
		logger:  logger.Named("notifications"),
		metrics: metrics,
	}
}

// Publish validates and stores n, then pushes it to every global subscriber.
// If the store fails nothing is broadcast: subscribers never hear about a
// notification that was not durably recorded.
func (h *Notifications) Publish(ctx context.Context, n ports.NewNotification) (*ports.Notification, error) {
	n, err := normalize(n)
	if err != nil {
		return nil, err
	}
	rec, err := h.store.Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	h.metrics.ObserveNotification(rec.Severity)
	delivered := h.bc.Publish(GlobalTopic, NotificationFrame{Notification: *rec})
	h.logger.Debug("notification published",
		zap.Int64("id", rec.ID),
		zap.String("project", rec.ProjectID),
		zap.String("severity", rec.Severity),
		zap.Int("subscribers", delivered),
	)
	return rec, nil
}

// Subscribe adds conn to the global feed and returns its backlog: a count
// frame with the current unread total, followed by the unread notifications
// the client missed (id > lastEventID) when it reconnects with a
// Last-Event-ID. The backlog is not written to conn, whose queue is bounded;
// the caller delivers it first and then drains conn.
//
// conn is added before the count is read, so a notification published in
// between is queued on conn, never lost. Backlog and live frames may overlap;
// clients key notifications by id.
func (h *Notifications) Subscribe(ctx context.Context, conn Conn, lastEventID int64) ([]Frame, error) {
	h.bc.Add(GlobalTopic, conn)

	count, err := h.store.UnreadCount(ctx)
	if err != nil {
		h.bc.Remove(GlobalTopic, conn)
		return nil, fmt.Errorf("unread count: %w", err)
	}
	backlog := []Frame{CountFrame{Count: count}}

	if lastEventID <= 0 {
		return backlog, nil
	}
	missed, err := h.store.UnreadSince(ctx, lastEventID)
	if err != nil {
		// The client can still catch up through PollUnread.
		h.logger.Warn("replay failed", zap.Int64("since", lastEventID), zap.Error(err))
		return backlog, nil
	}
	for _, n := range missed {
		backlog = append(backlog, NotificationFrame{Notification: n})
	}
	return backlog, nil
}

// Unsubscribe removes conn from the global feed. No-op if absent.
func (h *Notifications) Unsubscribe(conn Conn) {
	h.bc.Remove(GlobalTopic, conn)
}

// Subscribers returns the number of open global streams.
func (h *Notifications) Subscribers() int {
	return h.bc.Count(GlobalTopic)
}

// PollUnread is the non-streaming fallback: unread notifications with
// id > sinceID, oldest first. It reads the same store as the stream, so
// polling and streaming never disagree about what exists.
func (h *Notifications) PollUnread(ctx context.Context, sinceID int64) ([]ports.Notification, error) {
	if sinceID < 0 {
		sinceID = 0
	}
	return h.store.UnreadSince(ctx, sinceID)
}

// List returns a filtered page of notifications and the total match count.
func (h *Notifications) List(ctx context.Context, f ports.ListFilter) ([]ports.Notification, int, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return h.store.List(ctx, f)
}

// UnreadSummary returns unread counts by project and severity.
func (h *Notifications) UnreadSummary(ctx context.Context) (*ports.UnreadSummary, error) {
	return h.store.UnreadSummary(ctx)
}

// MarkRead flags one notification as read and pushes the new unread count.
func (h *Notifications) MarkRead(ctx context.Context, id int64) error {
	if err := h.store.MarkRead(ctx, id); err != nil {
		return err
	}
	h.publishCount(ctx)
	return nil
}

// MarkAllRead flags every unread notification (optionally of one project)
// as read and pushes the new unread count.
func (h *Notifications) MarkAllRead(ctx context.Context, projectID string) (int, error) {
	n, err := h.store.MarkAllRead(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		h.publishCount(ctx)
	}
	return n, nil
}

// Dismiss flags one notification as dismissed and pushes the new unread count.
func (h *Notifications) Dismiss(ctx context.Context, id int64) error {
	if err := h.store.Dismiss(ctx, id); err != nil {
		return err
	}
	h.publishCount(ctx)
	return nil
}

func (h *Notifications) publishCount(ctx context.Context) {
	if h.bc.Count(GlobalTopic) == 0 {
		return
	}
	count, err := h.store.UnreadCount(ctx)
	if err != nil {
		h.logger.Warn("unread count failed", zap.Error(err))
		return
	}
	h.bc.Publish(GlobalTopic, CountFrame{Count: count})
}

// normalize trims fields, defaults severity to info, and rejects records the
// dashboard cannot display.
func normalize(n ports.NewNotification) (ports.NewNotification, error) {
	n.ProjectID = strings.TrimSpace(n.ProjectID)
	n.Type = strings.TrimSpace(n.Type)
	n.Title = strings.TrimSpace(n.Title)
	n.Severity = strings.ToLower(strings.TrimSpace(n.Severity))

	var missing []string
	if n.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if n.Type == "" {
		missing = append(missing, "type")
	}
	if n.Title == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return n, fmt.Errorf("%w: missing required fields: %s", ErrInvalidNotification, strings.Join(missing, ", "))
	}
	if n.Severity == "" {
		n.Severity = ports.SeverityInfo
	}
	if !ports.ValidSeverity(n.Severity) {
		return n, fmt.Errorf("%w: unknown severity %q", ErrInvalidNotification, n.Severity)
	}
	return n, nil
}
