package tariff

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceType determines the pricing formula applied to a tariff rule.
type PriceType string

const (
	PriceFixed      PriceType = "fixed"
	PricePerKg      PriceType = "per_kg"
	PricePerPackage PriceType = "per_package"
	// PriceConfig marks sentinel rows that carry per-company billing
	// configuration instead of a billable amount.
	PriceConfig PriceType = "config"
)

// Sentinel concepts encoding per-company storage billing configuration.
const (
	ConceptConfigFreeDays   = "CONFIG_FREE_DAYS"
	ConceptConfigChargeMode = "CONFIG_CHARGE_MODE"
)

// Rule is a priced tariff concept scoped to a handling company and year.
type Rule struct {
	ID              uuid.UUID        `json:"id"`
	HandlingCompany string           `json:"handling_company"`
	Year            int              `json:"year"`
	Concept         string           `json:"concept"`
	PriceType       PriceType        `json:"price_type"`
	PricePerUnit    decimal.Decimal  `json:"price_per_unit"`
	MinPrice        *decimal.Decimal `json:"min_price,omitempty"`
	WeightRangeMin  *decimal.Decimal `json:"weight_range_min,omitempty"`
	WeightRangeMax  *decimal.Decimal `json:"weight_range_max,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ConceptContains reports whether the rule concept contains the given term,
// case-insensitively. Lookups across the application are substring based.
func (r Rule) ConceptContains(term string) bool {
	return strings.Contains(strings.ToLower(r.Concept), strings.ToLower(term))
}

// IsStorage reports whether the rule prices warehouse storage.
func (r Rule) IsStorage() bool {
	return r.ConceptContains("almacenaje") || r.ConceptContains("tramo")
}

// ChargeMode is the policy for billing storage once the free period is exceeded.
type ChargeMode string

const (
	// ChargeAfterFree bills only the days beyond the free allowance.
	ChargeAfterFree ChargeMode = "after_free"
	// ChargeAllDays bills the entire stay once the free allowance is exceeded.
	ChargeAllDays ChargeMode = "all_days"
)

// BillingPolicy is the per-company storage billing configuration resolved
// from the CONFIG_FREE_DAYS and CONFIG_CHARGE_MODE sentinel rows.
type BillingPolicy struct {
	HandlingCompany string
	Year            int
	FreeStorageDays int
	Mode            ChargeMode
}

// ResolveBillingPolicy extracts the billing policy from a tariff set already
// scoped to (company, year). Missing sentinels fall back to zero free days
// and after-free charging.
func ResolveBillingPolicy(company string, year int, rules []Rule) BillingPolicy {
	policy := BillingPolicy{
		HandlingCompany: company,
		Year:            year,
		FreeStorageDays: 0,
		Mode:            ChargeAfterFree,
	}
	for _, r := range rules {
		switch r.Concept {
		case ConceptConfigFreeDays:
			policy.FreeStorageDays = int(r.PricePerUnit.IntPart())
		case ConceptConfigChargeMode:
			if r.PricePerUnit.Equal(decimal.NewFromInt(1)) {
				policy.Mode = ChargeAllDays
			}
		}
	}
	return policy
}
