package web

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/corey/dashhub/internal/hub"
	"github.com/corey/dashhub/internal/ports"
)

// handleGitWatch streams debounced .git changes for one project.
func (s *Server) handleGitWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	project, err := s.projects.Project(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	if err != nil {
		s.logger.Error("project lookup", zap.String("project", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "project lookup failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream := hub.NewStream(hub.ProjectTopic(id), s.streamBuf)
	defer stream.Close()

	err = s.registry.Subscribe(id, filepath.Join(project.Path, ".git"), stream)
	if errors.Is(err, hub.ErrShuttingDown) {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.beginSSE(ctx, w)
	if err != nil {
		// The stream holds the error frame; deliver it and end.
		stream.Close()
		s.pump(ctx, w, flusher, stream)
		return
	}
	defer s.registry.Unsubscribe(id, stream)

	s.logger.Debug("watch stream open", zap.String("project", id), zap.String("conn", stream.ID()))
	s.pump(ctx, w, flusher, stream)
}

// handleNotificationStream streams the global notification feed. A browser
// reconnecting after a drop sends Last-Event-ID; the unread notifications
// it missed are replayed.
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream := hub.NewStream(hub.GlobalTopic, s.streamBuf)
	defer stream.Close()

	backlog, err := s.notes.Subscribe(ctx, stream, lastEventID(r))
	if err != nil {
		s.logger.Warn("notification subscribe", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer s.notes.Unsubscribe(stream)

	// The backlog can be longer than the stream buffer, so it goes straight
	// to the response ahead of anything queued since Subscribe.
	s.beginSSE(ctx, w)
	for _, f := range backlog {
		if !s.writeFrame(w, f) {
			return
		}
	}
	s.pump(ctx, w, flusher, stream)
}

// lastEventID reads the SSE reconnection id from the Last-Event-ID header,
// falling back to a lastEventId query parameter for clients that cannot set
// headers. Missing or malformed values mean 0.
func lastEventID(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func (s *Server) beginSSE(ctx context.Context, w http.ResponseWriter) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("disable write deadline for SSE", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

// pump copies frames from stream to the response until the client leaves or
// the hub closes the stream. Frames queued before Close are still delivered.
func (s *Server) pump(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, stream *hub.Stream) {
	flusher.Flush()

	heartbeat := time.NewTicker(s.keepAlive)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write(hub.KeepAlive); err != nil {
				s.logger.Debug("sse keep-alive write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		case f := <-stream.Frames():
			if !s.writeFrame(w, f) {
				return
			}
			flusher.Flush()
		case <-stream.Done():
			for {
				select {
				case f := <-stream.Frames():
					if !s.writeFrame(w, f) {
						return
					}
				default:
					flusher.Flush()
					return
				}
			}
		}
	}
}

func (s *Server) writeFrame(w http.ResponseWriter, f hub.Frame) bool {
	data, err := hub.EncodeSSE(f)
	if err != nil {
		s.logger.Error("encode frame", zap.Error(err))
		return true
	}
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("sse write failed", zap.String("kind", f.Kind()), zap.Error(err))
		return false
	}
	return true
}
