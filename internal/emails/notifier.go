package emails

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/venuepay-backend/pkg/email"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
)

// Recipient identifies who a notification goes to.
type Recipient struct {
	Email string
	Name  string
}

// Notifier renders templates and delivers them through the mail sender.
type Notifier struct {
	renderer *Renderer
	sender   email.Sender
	logg     *logger.Logger

	wg sync.WaitGroup
}

// NewNotifier wires a renderer to a sender.
func NewNotifier(renderer *Renderer, sender email.Sender, logg *logger.Logger) (*Notifier, error) {
	if renderer == nil {
		return nil, fmt.Errorf("email renderer required")
	}
	if sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	return &Notifier{renderer: renderer, sender: sender, logg: logg}, nil
}

// Send renders templateType and delivers it synchronously.
func (n *Notifier) Send(ctx context.Context, to Recipient, templateType TemplateType, data Data) error {
	if strings.TrimSpace(to.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email required")
	}
	rendered, err := n.renderer.Render(templateType, data)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, email.Message{
		ToEmail:    to.Email,
		ToName:     to.Name,
		Subject:    rendered.Subject,
		HTML:       rendered.HTML,
		Text:       rendered.Text,
		Categories: []string{email.CategoryPayment, strings.ToLower(string(templateType))},
	})
}

// SendAsync delivers in the background, detached from ctx cancellation.
// Failures are logged and never reported to the caller.
func (n *Notifier) SendAsync(ctx context.Context, to Recipient, templateType TemplateType, data Data) {
	detached := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.Send(detached, to, templateType, data); err != nil && n.logg != nil {
			logCtx := n.logg.WithFields(detached, map[string]any{
				"template": string(templateType),
				"to":       to.Email,
			})
			n.logg.Error(logCtx, "async email delivery failed", err)
		}
	}()
}

// Wait blocks until in-flight async deliveries finish. Used on shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
