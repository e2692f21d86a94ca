package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/corey/dashhub/internal/hub"
	"github.com/corey/dashhub/internal/ports"
)

// recentUnread is how many unread notifications GET /api/notifications/unread returns.
const recentUnread = 20

// ListResult is the body of GET /api/notifications.
type ListResult struct {
	Notifications []ports.Notification `json:"notifications"`
	Total         int                  `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

// UnreadResult is the body of GET /api/notifications/unread.
type UnreadResult struct {
	Notifications []ports.Notification `json:"notifications"`
	Total         int                  `json:"total"`
	ByProject     map[string]int       `json:"byProject"`
	BySeverity    map[string]int       `json:"bySeverity"`
}

// PollResult is the body of GET /api/notifications/poll.
type PollResult struct {
	Notifications []ports.Notification `json:"notifications"`
	LastID        int64                `json:"lastId"` // pass back as ?since= on the next poll
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ports.ListFilter{
		ProjectID:  q.Get("project"),
		UnreadOnly: q.Get("unread") == "true",
		Severity:   q.Get("severity"),
		Search:     q.Get("search"),
		Limit:      intParam(q.Get("limit"), 100),
		Offset:     intParam(q.Get("offset"), 0),
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	list, total, err := s.notes.List(r.Context(), f)
	if err != nil {
		s.storeFailure(w, "list notifications", err)
		return
	}
	if list == nil {
		list = []ports.Notification{}
	}
	respondJSON(w, http.StatusOK, ListResult{Notifications: list, Total: total, Limit: f.Limit, Offset: f.Offset})
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var in ports.NewNotification
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, err := s.notes.Publish(r.Context(), in)
	if errors.Is(err, hub.ErrInvalidNotification) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.storeFailure(w, "create notification", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "notification": n})
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sum, err := s.notes.UnreadSummary(ctx)
	if err != nil {
		s.storeFailure(w, "unread summary", err)
		return
	}
	recent, _, err := s.notes.List(ctx, ports.ListFilter{UnreadOnly: true, Limit: recentUnread})
	if err != nil {
		s.storeFailure(w, "unread list", err)
		return
	}
	if recent == nil {
		recent = []ports.Notification{}
	}
	respondJSON(w, http.StatusOK, UnreadResult{
		Notifications: recent,
		Total:         sum.Total,
		ByProject:     sum.ByProject,
		BySeverity:    sum.BySeverity,
	})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since")
			return
		}
		since = v
	}

	list, err := s.notes.PollUnread(r.Context(), since)
	if err != nil {
		s.storeFailure(w, "poll notifications", err)
		return
	}
	res := PollResult{Notifications: list, LastID: since}
	if res.Notifications == nil {
		res.Notifications = []ports.Notification{}
	}
	if n := len(list); n > 0 {
		res.LastID = list[n-1].ID
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := notificationID(w, r)
	if !ok {
		return
	}
	s.finishMutation(w, id, "mark read", s.notes.MarkRead(r.Context(), id))
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := notificationID(w, r)
	if !ok {
		return
	}
	s.finishMutation(w, id, "dismiss", s.notes.Dismiss(r.Context(), id))
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID string `json:"project_id"`
	}
	// Body is optional.
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, err := s.notes.MarkAllRead(r.Context(), body.ProjectID)
	if err != nil {
		s.storeFailure(w, "mark all read", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}

func (s *Server) finishMutation(w http.ResponseWriter, id int64, op string, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		s.storeFailure(w, op, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) storeFailure(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, zap.Error(err))
	respondError(w, http.StatusInternalServerError, op+" failed")
}

func notificationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid notification ID")
		return 0, false
	}
	return id, true
}

// intParam parses a query value, returning def when it is absent or malformed.
func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
