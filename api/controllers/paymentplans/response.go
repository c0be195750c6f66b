package paymentplans

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/venuepay-backend/pkg/db/models"
)

type stageResponse struct {
	ID            uuid.UUID  `json:"id"`
	PaymentPlanID uuid.UUID  `json:"paymentPlanId"`
	Description   string     `json:"description"`
	Amount        string     `json:"amount"`
	DueDate       time.Time  `json:"dueDate"`
	Status        string     `json:"status"`
	PaymentURL    *string    `json:"paymentUrl,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

type planResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProposalID  uuid.UUID       `json:"proposalId"`
	TotalAmount string          `json:"totalAmount"`
	Currency    string          `json:"currency"`
	Stages      []stageResponse `json:"stages"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type serviceRequestResponse struct {
	ID          uuid.UUID  `json:"id"`
	ProposalID  uuid.UUID  `json:"proposalId"`
	Description string     `json:"description"`
	Amount      string     `json:"amount"`
	Status      string     `json:"status"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
}

func newStageResponse(stage *models.PaymentStage) stageResponse {
	return stageResponse{
		ID:            stage.ID,
		PaymentPlanID: stage.PaymentPlanID,
		Description:   stage.Description,
		Amount:        stage.Amount.StringFixed(2),
		DueDate:       stage.DueDate,
		Status:        string(stage.Status),
		PaymentURL:    stage.StripePaymentURL,
		PaidAt:        stage.PaidAt,
	}
}

func newPlanResponse(plan *models.PaymentPlan) planResponse {
	resp := planResponse{
		ID:          plan.ID,
		ProposalID:  plan.ProposalID,
		TotalAmount: plan.TotalAmount.StringFixed(2),
		Currency:    string(plan.Currency),
		Stages:      make([]stageResponse, 0, len(plan.Stages)),
		UpdatedAt:   plan.UpdatedAt,
	}
	for i := range plan.Stages {
		resp.Stages = append(resp.Stages, newStageResponse(&plan.Stages[i]))
	}
	return resp
}

func newServiceRequestResponse(req *models.ServiceRequest) serviceRequestResponse {
	return serviceRequestResponse{
		ID:          req.ID,
		ProposalID:  req.ProposalID,
		Description: req.Description,
		Amount:      req.Amount.StringFixed(2),
		Status:      string(req.Status),
		AcceptedAt:  req.AcceptedAt,
	}
}
