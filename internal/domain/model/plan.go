package model

import (
	"time"

	"vendor-billing-engine/internal/domain"
)

type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

func (i BillingInterval) Valid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// Advance returns t moved forward by one billing interval.
func (i BillingInterval) Advance(t time.Time) time.Time {
	if i == IntervalYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// BillingPlan is one purchasable tier: prices per interval, trial length,
// and the usage limits enforced elsewhere by the limit-check endpoints.
type BillingPlan struct {
	ID           string          `yaml:"id"`
	Name         string          `yaml:"name"`
	MonthlyPrice int64           `yaml:"monthly_price"` // minor currency units
	YearlyPrice  int64           `yaml:"yearly_price"`
	TrialDays    int             `yaml:"trial_days"`
	Limits       map[string]int  `yaml:"limits"`
	Features     map[string]bool `yaml:"features"`
}

func (p *BillingPlan) IsZero() bool { return p == nil || p.ID == "" }

// Price returns the plan price for the given interval.
func (p *BillingPlan) Price(interval BillingInterval) int64 {
	if interval == IntervalYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// PlanCatalog is an immutable, versioned lookup of billing plans. It is built
// once from configuration and injected; the engine never mutates it, so a new
// catalog version replaces the whole object.
type PlanCatalog struct {
	version string
	plans   map[string]BillingPlan
}

// NewPlanCatalog validates the plan list and builds a catalog.
func NewPlanCatalog(version string, plans []BillingPlan) (*PlanCatalog, error) {
	if len(plans) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	byID := make(map[string]BillingPlan, len(plans))
	for _, p := range plans {
		if p.ID == "" || p.Name == "" || p.MonthlyPrice < 0 || p.YearlyPrice < 0 || p.TrialDays < 0 {
			return nil, domain.ErrInvalidArgument
		}
		if _, dup := byID[p.ID]; dup {
			return nil, domain.ErrInvalidArgument
		}
		byID[p.ID] = p
	}
	return &PlanCatalog{version: version, plans: byID}, nil
}

func (c *PlanCatalog) Version() string { return c.version }

// Find returns the plan for id, or ErrUnknownPlan.
func (c *PlanCatalog) Find(id string) (*BillingPlan, error) {
	p, ok := c.plans[id]
	if !ok {
		return nil, domain.ErrUnknownPlan
	}
	return &p, nil
}

// List returns all plans (copy, unordered).
func (c *PlanCatalog) List() []BillingPlan {
	out := make([]BillingPlan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	return out
}
