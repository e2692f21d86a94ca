package hub

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/dashhub/internal/ports"
)

// =============================================================================
// Frame wire format
// =============================================================================

func TestEncodeSSE_ProjectFrames(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{
			name:  "connected",
			frame: ConnectedFrame{ProjectID: "p1"},
			want:  "data: {\"type\":\"connected\",\"projectId\":\"p1\"}\n\n",
		},
		{
			name:  "git-change",
			frame: GitChangeFrame{ProjectID: "p1", Timestamp: ts},
			want:  "data: {\"type\":\"git-change\",\"projectId\":\"p1\",\"timestamp\":1700000000123}\n\n",
		},
		{
			name:  "error",
			frame: ErrorFrame{ProjectID: "p1", Message: "gone"},
			want:  "data: {\"type\":\"error\",\"projectId\":\"p1\",\"error\":\"gone\"}\n\n",
		},
		{
			name:  "count",
			frame: CountFrame{Count: 7},
			want:  "event: count\ndata: {\"count\":7}\n\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeSSE(tt.frame)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, string(got)); diff != "" {
				t.Errorf("EncodeSSE mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeSSE_NotificationCarriesID(t *testing.T) {
	n := ports.Notification{
		ID:        42,
		ProjectID: "p1",
		Type:      "plan_completed",
		Severity:  ports.SeveritySuccess,
		Title:     "Plan done",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	got, err := EncodeSSE(NotificationFrame{Notification: n})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(got), "\n\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id: 42", lines[0])
	assert.Equal(t, "event: notification", lines[1])
	require.True(t, strings.HasPrefix(lines[2], "data: "))

	var decoded ports.Notification
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &decoded))
	if diff := cmp.Diff(n, decoded); diff != "" {
		t.Errorf("notification payload mismatch (-want +got):\n%s", diff)
	}
}

func TestTopicKind(t *testing.T) {
	assert.Equal(t, TopicKindGlobal, GlobalTopic.Kind())
	assert.Equal(t, TopicKindProject, ProjectTopic("abc").Kind())
	assert.Equal(t, Topic("project:abc"), ProjectTopic("abc"))
}

func TestStream_WriteAndClose(t *testing.T) {
	s := NewStream(GlobalTopic, 2)
	require.NoError(t, s.Write(CountFrame{Count: 1}))
	require.NoError(t, s.Write(CountFrame{Count: 2}))
	assert.ErrorIs(t, s.Write(CountFrame{Count: 3}), ErrSlowConsumer)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.Write(CountFrame{Count: 4}), ErrConnClosed)

	<-s.Done()
	// Queued frames survive Close.
	assert.Equal(t, CountFrame{Count: 1}, <-s.Frames())
	assert.Equal(t, CountFrame{Count: 2}, <-s.Frames())
}
