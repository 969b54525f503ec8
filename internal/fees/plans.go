package fees

import (
	"github.com/shopspring/decimal"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// PlanConfig is what a subscription tier grants an organization.
type PlanConfig struct {
	TeamLimit int
	FeeRate   decimal.Decimal
}

// PlanTable maps each plan to its limits and platform fee rate.
type PlanTable map[enums.Plan]PlanConfig

// DefaultPlanTable returns the production plan table.
func DefaultPlanTable() PlanTable {
	return PlanTable{
		enums.PlanFree:   {TeamLimit: 1, FeeRate: decimal.RequireFromString("0.08")},
		enums.PlanBeta:   {TeamLimit: 10, FeeRate: decimal.RequireFromString("0.03")},
		enums.PlanGrowth: {TeamLimit: 5, FeeRate: decimal.RequireFromString("0.025")},
		enums.PlanPro:    {TeamLimit: 15, FeeRate: decimal.RequireFromString("0.02")},
		enums.PlanScale:  {TeamLimit: 50, FeeRate: decimal.RequireFromString("0.015")},
	}
}

// Lookup returns the plan's config and whether the plan is known.
func (t PlanTable) Lookup(plan enums.Plan) (PlanConfig, bool) {
	cfg, ok := t[plan]
	return cfg, ok
}
