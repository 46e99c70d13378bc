//go:build !integration

package web

import (
	"context"

	"vendor-billing-engine/internal/domain/model"
	"vendor-billing-engine/internal/usecase"
)

// stubSubUC lets each test pin the behavior of the routes under test.
type stubSubUC struct {
	EnrollFunc           func(ctx context.Context, in usecase.EnrollInput) (*model.Subscription, error)
	ChangePlanFunc       func(ctx context.Context, id, newPlanID, ref string) (*model.Subscription, error)
	CancelFunc           func(ctx context.Context, id string, immediate bool, reason string) (*model.Subscription, error)
	ReactivateFunc       func(ctx context.Context, id string) (*model.Subscription, error)
	AdminExtendFunc      func(ctx context.Context, id string, days int) (*model.Subscription, error)
	AdminForceCancelFunc func(ctx context.Context, id, reason string) (*model.Subscription, error)
	GetFunc              func(ctx context.Context, id string) (*model.Subscription, []*model.Transaction, error)
}

var _ usecase.SubscriptionUseCase = (*stubSubUC)(nil)

func (s *stubSubUC) Enroll(ctx context.Context, in usecase.EnrollInput) (*model.Subscription, error) {
	return s.EnrollFunc(ctx, in)
}

func (s *stubSubUC) ChangePlan(ctx context.Context, id, newPlanID, ref string) (*model.Subscription, error) {
	return s.ChangePlanFunc(ctx, id, newPlanID, ref)
}

func (s *stubSubUC) Cancel(ctx context.Context, id string, immediate bool, reason string) (*model.Subscription, error) {
	return s.CancelFunc(ctx, id, immediate, reason)
}

func (s *stubSubUC) Reactivate(ctx context.Context, id string) (*model.Subscription, error) {
	return s.ReactivateFunc(ctx, id)
}

func (s *stubSubUC) AdminExtend(ctx context.Context, id string, days int) (*model.Subscription, error) {
	return s.AdminExtendFunc(ctx, id, days)
}

func (s *stubSubUC) AdminForceCancel(ctx context.Context, id, reason string) (*model.Subscription, error) {
	return s.AdminForceCancelFunc(ctx, id, reason)
}

func (s *stubSubUC) Get(ctx context.Context, id string) (*model.Subscription, []*model.Transaction, error) {
	return s.GetFunc(ctx, id)
}

type stubBillingUC struct {
	RunSweepFunc func(ctx context.Context, secret string) (*usecase.SweepResult, error)
}

var _ usecase.BillingUseCase = (*stubBillingUC)(nil)

func (s *stubBillingUC) RunSweep(ctx context.Context, secret string) (*usecase.SweepResult, error) {
	return s.RunSweepFunc(ctx, secret)
}

type stubWebhookUC struct {
	HandleEventFunc func(ctx context.Context, raw []byte) error
}

var _ usecase.WebhookUseCase = (*stubWebhookUC)(nil)

func (s *stubWebhookUC) HandleEvent(ctx context.Context, raw []byte) error {
	return s.HandleEventFunc(ctx, raw)
}
