// Package email delivers rendered messages through SendGrid.
package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/venuepay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
)

const (
	defaultBaseURL  = "https://api.sendgrid.com"
	mailSendPath    = "/v3/mail/send"
	CategoryPayment = "payments"
)

// Message is a fully rendered email ready for delivery.
type Message struct {
	ToEmail    string
	ToName     string
	Subject    string
	HTML       string
	Text       string
	Categories []string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendgridSender posts messages to the SendGrid v3 mail send API.
type SendgridSender struct {
	apiKey   string
	baseURL  string
	from     *mail.Email
	sandbox  bool
	tracking bool
}

// Option customizes a SendgridSender.
type Option func(*SendgridSender)

// WithBaseURL points the sender at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(s *SendgridSender) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewSendgridSender builds a sender from configuration.
func NewSendgridSender(cfg config.SendgridConfig, opts ...Option) (*SendgridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, fmt.Errorf("sendgrid from email is required")
	}
	s := &SendgridSender{
		apiKey:  cfg.APIKey,
		baseURL: defaultBaseURL,
		from:    mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
		sandbox: cfg.SandboxMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send delivers msg, retrying on rate limiting.
func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email recipient required")
	}

	request := sendgrid.GetRequest(s.apiKey, mailSendPath, s.baseURL)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(s.build(msg))

	response, err := sendgrid.MakeRequestRetryWithContext(ctx, request)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send email")
	}
	if response.StatusCode >= http.StatusMultipleChoices {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("sendgrid responded %d", response.StatusCode)).
			WithDetails(map[string]any{"body": response.Body})
	}
	return nil
}

func (s *SendgridSender) build(msg Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(s.from)
	m.Subject = msg.Subject

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail(msg.ToName, msg.ToEmail))
	m.AddPersonalizations(personalization)

	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}

	m.SetTrackingSettings(&mail.TrackingSettings{
		SubscriptionTracking: &mail.SubscriptionTrackingSetting{Enable: &s.tracking},
	})
	if s.sandbox {
		m.SetMailSettings(&mail.MailSettings{SandboxMode: mail.NewSetting(true)})
	}
	if len(msg.Categories) > 0 {
		m.AddCategories(msg.Categories...)
	}
	return m
}

// LogSender writes messages to the log instead of delivering them. It backs
// local development when no SendGrid key is configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if s.logg == nil {
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"to":      msg.ToEmail,
		"subject": msg.Subject,
	})
	s.logg.Info(ctx, "email delivery skipped (log sender)")
	return nil
}

// NewFromConfig returns a SendgridSender when an API key is configured and a
// LogSender otherwise.
func NewFromConfig(cfg config.SendgridConfig, logg *logger.Logger) (Sender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return NewLogSender(logg), nil
	}
	return NewSendgridSender(cfg)
}
