package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/venuepay-backend/internal/emails"
	"github.com/angelmondragon/venuepay-backend/pkg/config"
	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	"github.com/angelmondragon/venuepay-backend/pkg/metrics"
)

type notifier interface {
	Send(ctx context.Context, to emails.Recipient, templateType emails.TemplateType, data emails.Data) error
}

// Result summarizes one dispatch pass.
type Result struct {
	Upcoming int `json:"upcoming"`
	Overdue  int `json:"overdue"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func (r *Result) add(other Result) {
	r.Upcoming += other.Upcoming
	r.Overdue += other.Overdue
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

type ServiceParams struct {
	Repo     Repository
	Notifier notifier
	Config   config.RemindersConfig
	Frontend config.FrontendConfig
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

// Service dispatches stage reminders.
type Service struct {
	repo     Repository
	notifier notifier
	cfg      config.RemindersConfig
	frontend config.FrontendConfig
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reminder repo required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	cfg := params.Config
	if cfg.UpcomingThresholdDays <= 0 {
		cfg.UpcomingThresholdDays = 7
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 24 * time.Hour
	}
	return &Service{
		repo:     params.Repo,
		notifier: params.Notifier,
		cfg:      cfg,
		frontend: params.Frontend,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Dispatch runs the upcoming and overdue passes. Both always run; their
// errors are combined.
func (s *Service) Dispatch(ctx context.Context, now time.Time) (Result, error) {
	var total Result
	upcoming, upErr := s.DispatchUpcoming(ctx, now)
	total.add(upcoming)
	overdue, overErr := s.DispatchOverdue(ctx, now)
	total.add(overdue)
	return total, multierr.Combine(upErr, overErr)
}

// DispatchUpcoming reminds about PENDING stages due within the threshold window.
func (s *Service) DispatchUpcoming(ctx context.Context, now time.Time) (Result, error) {
	now = now.UTC()
	until := now.Add(time.Duration(s.cfg.UpcomingThresholdDays) * 24 * time.Hour)
	targets, err := s.repo.FindUpcoming(ctx, now, until)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scan upcoming stages")
	}
	return s.dispatch(ctx, now, targets, enums.ReminderTypeUpcoming)
}

// DispatchOverdue reminds about unpaid stages whose due date has passed.
func (s *Service) DispatchOverdue(ctx context.Context, now time.Time) (Result, error) {
	now = now.UTC()
	targets, err := s.repo.FindOverdue(ctx, now)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scan overdue stages")
	}
	return s.dispatch(ctx, now, targets, enums.ReminderTypeOverdue)
}

func (s *Service) dispatch(ctx context.Context, now time.Time, targets []StageTarget, reminderType enums.ReminderType) (Result, error) {
	var (
		res  Result
		errs error
	)
	since := now.Add(-s.cfg.DedupWindow)
	for _, target := range targets {
		stageCtx := s.logg.WithStageID(ctx, target.StageID.String())
		recent, err := s.repo.SentSince(stageCtx, target.StageID, reminderType, since)
		if err != nil {
			res.Failed++
			errs = multierr.Append(errs, fmt.Errorf("stage %s: dedup check: %w", target.StageID, err))
			continue
		}
		if recent {
			res.Skipped++
			continue
		}
		if err := s.remind(stageCtx, now, target, reminderType); err != nil {
			res.Failed++
			s.logg.Error(stageCtx, "payment reminder failed", err)
			errs = multierr.Append(errs, fmt.Errorf("stage %s: %w", target.StageID, err))
			continue
		}
		if reminderType == enums.ReminderTypeOverdue {
			res.Overdue++
		} else {
			res.Upcoming++
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"reminder_type": string(reminderType),
		"candidates":    len(targets),
		"sent":          res.Upcoming + res.Overdue,
		"skipped":       res.Skipped,
		"failed":        res.Failed,
	})
	s.logg.Info(logCtx, "payment reminder pass complete")
	return res, errs
}

// remind sends first and writes the audit row only after a successful send.
func (s *Service) remind(ctx context.Context, now time.Time, target StageTarget, reminderType enums.ReminderType) error {
	templateType := emails.TemplateStageUpcoming
	if reminderType == enums.ReminderTypeOverdue {
		templateType = emails.TemplateStageOverdue
	}
	err := s.notifier.Send(ctx, emails.Recipient{Email: target.CustomerEmail, Name: target.CustomerName}, templateType, emails.Data{
		CustomerName:     target.CustomerName,
		ProposalTitle:    target.ProposalTitle,
		StageDescription: target.Description,
		Amount:           target.Amount,
		Currency:         string(target.Currency),
		PaymentURL:       s.paymentURL(target),
		DueDate:          target.DueDate,
	})
	if err != nil {
		return err
	}
	if err := s.repo.Record(ctx, &models.PaymentReminder{
		PaymentStageID: target.StageID,
		Type:           reminderType,
		SentAt:         now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment reminder")
	}
	s.metrics.IncReminderSent(string(reminderType))
	return nil
}

func (s *Service) paymentURL(target StageTarget) string {
	if target.StripePaymentURL != nil && *target.StripePaymentURL != "" {
		return *target.StripePaymentURL
	}
	return s.proposalURL(target.ProposalID)
}

func (s *Service) proposalURL(proposalID uuid.UUID) string {
	if url := s.frontend.PortalURL(fmt.Sprintf("/proposals/%s/payments", proposalID)); url != "" {
		return url
	}
	return s.frontend.APIURL(fmt.Sprintf("/api/v1/proposals/%s/payment-plan", proposalID))
}
