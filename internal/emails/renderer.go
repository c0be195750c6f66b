// Package emails renders the payment notification templates and hands them to
// the mail transport.
package emails

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/angelmondragon/venuepay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
)

// TemplateType keys a notification template.
type TemplateType string

const (
	TemplatePaymentLink       TemplateType = "PAYMENT_LINK"
	TemplateSecondPaymentLink TemplateType = "SECOND_PAYMENT_LINK"
	TemplatePaymentReminder   TemplateType = "PAYMENT_REMINDER"
	TemplateStageUpcoming     TemplateType = "STAGE_UPCOMING"
	TemplateStageOverdue      TemplateType = "STAGE_OVERDUE"
)

var templateFiles = map[TemplateType]string{
	TemplatePaymentLink:       "payment_link.md",
	TemplateSecondPaymentLink: "second_payment_link.md",
	TemplatePaymentReminder:   "payment_reminder.md",
	TemplateStageUpcoming:     "stage_upcoming.md",
	TemplateStageOverdue:      "stage_overdue.md",
}

//go:embed templates/*.md
var embedded embed.FS

// Data is the value every template executes against.
type Data struct {
	CustomerName     string
	VenueName        string
	ProposalTitle    string
	StageDescription string
	Amount           decimal.Decimal
	Currency         string
	PaymentURL       string
	EventDate        time.Time
	DueDate          time.Time
	ExpiresAt        time.Time
}

// Rendered is a template executed into deliverable parts.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer parses templates lazily and caches them until ClearCache.
type Renderer struct {
	fsys    fs.FS
	printer *message.Printer

	mu    sync.RWMutex
	cache map[TemplateType]*template.Template
}

// NewRenderer builds a renderer over fsys. A nil fsys uses the templates
// compiled into the binary.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	if fsys == nil {
		sub, err := fs.Sub(embedded, "templates")
		if err != nil {
			return nil, fmt.Errorf("open embedded templates: %w", err)
		}
		fsys = sub
	}
	return &Renderer{
		fsys:    fsys,
		printer: message.NewPrinter(language.English),
		cache:   make(map[TemplateType]*template.Template),
	}, nil
}

// NewRendererFromConfig reads templates from cfg.TemplatesDir when set and
// falls back to the compiled-in set otherwise.
func NewRendererFromConfig(cfg config.SendgridConfig) (*Renderer, error) {
	if cfg.TemplatesDir == "" {
		return NewRenderer(nil)
	}
	info, err := os.Stat(cfg.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("email templates dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("email templates dir %s is not a directory", cfg.TemplatesDir)
	}
	return NewRenderer(os.DirFS(cfg.TemplatesDir))
}

// ReloadOn clears the template cache every time reload fires, until ctx ends.
func (r *Renderer) ReloadOn(ctx context.Context, reload <-chan os.Signal, logg *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-reload:
			if !ok {
				return
			}
			r.ClearCache()
			if logg != nil {
				logg.Info(logg.WithField(ctx, "signal", fmt.Sprint(sig)), "email templates reloaded")
			}
		}
	}
}

// Render executes templateType against data.
func (r *Renderer) Render(templateType TemplateType, data Data) (*Rendered, error) {
	tmpl, err := r.lookup(templateType)
	if err != nil {
		return nil, err
	}

	var subject, body, markup bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("render %s subject", templateType))
	}
	if err := tmpl.ExecuteTemplate(&body, "body", data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("render %s body", templateType))
	}
	// The HTML part is built from markdown, so customer text must not be able
	// to open tags or links there.
	if err := tmpl.ExecuteTemplate(&markup, "body", data.markdownSafe()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("render %s body", templateType))
	}

	return &Rendered{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    toHTML(strings.TrimSpace(markup.String())),
		Text:    strings.TrimSpace(body.String()),
	}, nil
}

// markdownSafe returns a copy with every free-text field escaped for markdown.
func (d Data) markdownSafe() Data {
	d.CustomerName = escapeMarkdown(d.CustomerName)
	d.VenueName = escapeMarkdown(d.VenueName)
	d.ProposalTitle = escapeMarkdown(d.ProposalTitle)
	d.StageDescription = escapeMarkdown(d.StageDescription)
	d.Currency = escapeMarkdown(d.Currency)
	return d
}

// markdownSpecials is every byte the markdown parser honours a backslash
// escape for. Escaping ':' also stops bare URLs from being autolinked.
const markdownSpecials = "\\`*_{}[]()#+-.!:|&<>~^$"

// escapeMarkdown collapses whitespace onto one line and backslash-escapes
// markdown syntax so the value renders as literal text.
func escapeMarkdown(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r < utf8.RuneSelf && strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ClearCache drops every parsed template so the next Render re-reads them.
func (r *Renderer) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[TemplateType]*template.Template)
	r.mu.Unlock()
}

func (r *Renderer) cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *Renderer) lookup(templateType TemplateType) (*template.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.cache[templateType]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	file, known := templateFiles[templateType]
	if !known {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown email template %q", templateType))
	}

	raw, err := fs.ReadFile(r.fsys, file)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("read template %s", file))
	}
	tmpl, err = template.New(file).Funcs(r.funcs()).Parse(string(raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("parse template %s", file))
	}

	r.mu.Lock()
	r.cache[templateType] = tmpl
	r.mu.Unlock()
	return tmpl, nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"money":    r.formatMoney,
		"date":     formatDate,
		"datetime": formatDateTime,
	}
}

func (r *Renderer) formatMoney(amount decimal.Decimal, currency string) string {
	value, _ := amount.Round(2).Float64()
	return r.printer.Sprintf("%s %.2f", strings.ToUpper(currency), value)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "TBD"
	}
	return t.UTC().Format("January 2, 2006")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "TBD"
	}
	return t.UTC().Format("January 2, 2006 15:04 MST")
}

func toHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank | html.SkipHTML})
	return string(markdown.ToHTML([]byte(md), p, renderer))
}
