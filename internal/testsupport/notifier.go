package testsupport

import (
	"context"
	"sync"

	"github.com/angelmondragon/venuepay-backend/internal/emails"
)

// SentNotification is one notification captured by RecordingNotifier.
type SentNotification struct {
	To       emails.Recipient
	Template emails.TemplateType
	Data     emails.Data
}

// RecordingNotifier captures notifications instead of delivering them.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []SentNotification

	// Err, when set, fails synchronous sends without recording them.
	Err error
}

func (n *RecordingNotifier) Send(_ context.Context, to emails.Recipient, templateType emails.TemplateType, data emails.Data) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, SentNotification{To: to, Template: templateType, Data: data})
	return nil
}

func (n *RecordingNotifier) SendAsync(ctx context.Context, to emails.Recipient, templateType emails.TemplateType, data emails.Data) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, SentNotification{To: to, Template: templateType, Data: data})
}

// Sent returns a copy of everything captured so far.
func (n *RecordingNotifier) Sent() []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SentNotification, len(n.sent))
	copy(out, n.sent)
	return out
}
