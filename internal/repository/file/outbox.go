package file

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"onisai/internal/domain"
)

// Outbox appends notifications as JSON lines for the delivery collaborator
// to pick up.
type Outbox struct {
	mu   sync.Mutex
	path string
}

// NewOutbox creates an outbox stored at path.
func NewOutbox(path string) *Outbox {
	return &Outbox{path: path}
}

// Send appends one notification.
func (o *Outbox) Send(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return appendLine(o.path, string(data))
}

// Pending returns every notification in the outbox, oldest first.
func (o *Outbox) Pending(ctx context.Context) ([]domain.Notification, error) {
	o.mu.Lock()
	lines, err := readLines(o.path)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Notification, 0, len(lines))
	for _, ln := range lines {
		var n domain.Notification
		if err := json.Unmarshal([]byte(ln), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
