package bbolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/corey/dashhub/internal/ports"
)

// Notification keys are 8-byte big-endian ids so bbolt's byte-ordered
// cursor walks them in id order.
func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func encodeNotification(n *ports.Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification %d: %w", n.ID, err)
	}
	return data, nil
}

// decodeNotification unmarshals a stored value. The data slice belongs to
// the transaction; json.Unmarshal copies what it keeps.
func decodeNotification(data []byte) (*ports.Notification, error) {
	var n ports.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	return &n, nil
}

func encodeProject(p ports.Project) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal project %s: %w", p.ID, err)
	}
	return data, nil
}

func decodeProject(data []byte) (*ports.Project, error) {
	var p ports.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal project: %w", err)
	}
	return &p, nil
}
