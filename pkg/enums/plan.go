package enums

import (
	"fmt"
	"strings"
)

// Plan is an organization's subscription tier.
type Plan string

const (
	PlanFree   Plan = "free"
	PlanBeta   Plan = "beta"
	PlanGrowth Plan = "growth"
	PlanPro    Plan = "pro"
	PlanScale  Plan = "scale"
)

var validPlans = []Plan{PlanFree, PlanBeta, PlanGrowth, PlanPro, PlanScale}

func (p Plan) String() string {
	return string(p)
}

func (p Plan) IsValid() bool {
	for _, candidate := range validPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlan is case-insensitive since plan names arrive in Stripe metadata.
func ParsePlan(value string) (Plan, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPlans {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan %q", value)
}
