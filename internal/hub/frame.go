package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/corey/dashhub/internal/ports"
)

// Frame kinds. Project-stream frames carry their kind in a "type" JSON
// field; global-stream frames use it as the SSE event name.
const (
	KindConnected    = "connected"
	KindGitChange    = "git-change"
	KindError        = "error"
	KindCount        = "count"
	KindNotification = "notification"
)

// KeepAlive is an SSE comment line. Browsers ignore it; proxies see traffic.
var KeepAlive = []byte(": keep-alive\n\n")

// Frame is one discrete message pushed over a stream. The concrete types
// below are the only implementations.
type Frame interface {
	// Kind identifies the variant.
	Kind() string
	// Event is the SSE "event:" name, empty for unnamed data messages.
	Event() string
	// EventID is the SSE "id:" value, empty when the frame has none.
	EventID() string
}

// ConnectedFrame is the first frame on a project watch stream.
type ConnectedFrame struct {
	ProjectID string
}

func (ConnectedFrame) Kind() string    { return KindConnected }
func (ConnectedFrame) Event() string   { return "" }
func (ConnectedFrame) EventID() string { return "" }

func (f ConnectedFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		ProjectID string `json:"projectId"`
	}{KindConnected, f.ProjectID})
}

// GitChangeFrame announces that a project's .git metadata settled after a change.
type GitChangeFrame struct {
	ProjectID string
	Timestamp time.Time
}

func (GitChangeFrame) Kind() string    { return KindGitChange }
func (GitChangeFrame) Event() string   { return "" }
func (GitChangeFrame) EventID() string { return "" }

func (f GitChangeFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		ProjectID string `json:"projectId"`
		Timestamp int64  `json:"timestamp"` // unix millis
	}{KindGitChange, f.ProjectID, f.Timestamp.UnixMilli()})
}

// ErrorFrame reports a watch failure to project subscribers.
type ErrorFrame struct {
	ProjectID string
	Message   string
}

func (ErrorFrame) Kind() string    { return KindError }
func (ErrorFrame) Event() string   { return "" }
func (ErrorFrame) EventID() string { return "" }

func (f ErrorFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		ProjectID string `json:"projectId,omitempty"`
		Error     string `json:"error"`
	}{KindError, f.ProjectID, f.Message})
}

// CountFrame carries the current unread notification total.
type CountFrame struct {
	Count int `json:"count"`
}

func (CountFrame) Kind() string    { return KindCount }
func (CountFrame) Event() string   { return KindCount }
func (CountFrame) EventID() string { return "" }

// NotificationFrame carries one full notification record. Its SSE id is the
// notification id, so reconnecting browsers report it as Last-Event-ID.
type NotificationFrame struct {
	Notification ports.Notification
}

func (NotificationFrame) Kind() string  { return KindNotification }
func (NotificationFrame) Event() string { return KindNotification }

func (f NotificationFrame) EventID() string {
	return strconv.FormatInt(f.Notification.ID, 10)
}

func (f NotificationFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Notification)
}

// EncodeSSE renders f in the text/event-stream wire format.
func EncodeSSE(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Kind(), err)
	}
	var buf bytes.Buffer
	if id := f.EventID(); id != "" {
		buf.WriteString("id: ")
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	if ev := f.Event(); ev != "" {
		buf.WriteString("event: ")
		buf.WriteString(ev)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
