package paymentplans

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/venuepay-backend/api/validators"
	plansvc "github.com/angelmondragon/venuepay-backend/internal/paymentplans"
	"github.com/angelmondragon/venuepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/venuepay-backend/pkg/errors"
)

const maxDescriptionLen = 255

type stageRequest struct {
	ID          *string         `json:"id,omitempty"`
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"dueDate" validate:"required"`
}

type replacePlanRequest struct {
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency" validate:"required"`
	Stages      []stageRequest  `json:"stages" validate:"required,dive"`
}

// toInput converts the wire request into service input. dueDate accepts
// RFC 3339 timestamps or plain YYYY-MM-DD dates.
func (req replacePlanRequest) toInput() (plansvc.ReplacePlanInput, error) {
	currency, err := enums.ParseCurrency(req.Currency)
	if err != nil {
		return plansvc.ReplacePlanInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	input := plansvc.ReplacePlanInput{
		TotalAmount: req.TotalAmount,
		Currency:    currency,
		Stages:      make([]plansvc.StageInput, 0, len(req.Stages)),
	}
	for i, stage := range req.Stages {
		due, err := parseDueDate(stage.DueDate)
		if err != nil {
			return plansvc.ReplacePlanInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid dueDate").
				WithDetails(map[string]any{"field": fmt.Sprintf("stages[%d].dueDate", i)})
		}
		in := plansvc.StageInput{
			Description: validators.SanitizeString(stage.Description, maxDescriptionLen),
			Amount:      stage.Amount,
			DueDate:     due,
		}
		if stage.ID != nil && *stage.ID != "" {
			id, err := uuid.Parse(*stage.ID)
			if err != nil {
				return plansvc.ReplacePlanInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid stage id").
					WithDetails(map[string]any{"field": fmt.Sprintf("stages[%d].id", i)})
			}
			in.ID = &id
		}
		input.Stages = append(input.Stages, in)
	}
	return input, nil
}

func parseDueDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
