package expense

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/customsway/backend-cargo/internal/tariff"
)

// Request carries the shipment facts an expense calculation works from.
type Request struct {
	HandlingCompany      string
	WeightKg             decimal.Decimal
	Packages             int
	ArrivalDate          *time.Time
	PickupDate           time.Time
	ExtraTruckLoading    bool
	ExtraExpressHandling bool
	ExtraAfterHours      bool
	ExtraWeekend         bool
	CustomConcept        string
	CustomAmount         *decimal.Decimal
}

// LineItem is one calculated expense.
type LineItem struct {
	Concept        string           `json:"concept"`
	Amount         decimal.Decimal  `json:"amount"`
	IsManual       bool             `json:"is_manual"`
	SourceTariffID *uuid.UUID       `json:"tariff_id"`
}

// Result is the outcome of one calculation pass.
type Result struct {
	Items []LineItem      `json:"expenses"`
	Total decimal.Decimal `json:"total"`
}

// ConceptQuery locates a tariff rule by ordered alternatives. Each
// alternative is a set of substrings that must all appear in the rule's
// concept; alternatives are tried in order and the first rule matching one
// wins.
type ConceptQuery [][]string

// FixedItem is a charge evaluated on every calculation.
type FixedItem struct {
	Label string
	Query ConceptQuery
	// CompanyContains gates the item to companies whose name contains
	// this substring. Empty means always evaluated.
	CompanyContains string
}

// SurchargeFlag names a request boolean that enables an optional surcharge.
type SurchargeFlag string

const (
	FlagTruckLoading    SurchargeFlag = "truck_loading"
	FlagExpressHandling SurchargeFlag = "express_handling"
	FlagAfterHours      SurchargeFlag = "after_hours"
	FlagWeekend         SurchargeFlag = "weekend"
)

// Surcharge is an opt-in charge with a fallback amount billed manually when
// the company has no matching tariff row.
type Surcharge struct {
	Flag     SurchargeFlag
	Label    string
	Query    ConceptQuery
	Fallback decimal.Decimal
}

// Fallback amounts used when a company sheet has no row for an opt-in
// surcharge. Inherited from long-standing manual billing practice; nobody
// has been able to trace where the exact figures came from.
var (
	FallbackTruckLoading    = decimal.RequireFromString("71.91")
	FallbackExpressHandling = decimal.RequireFromString("74.25")
	FallbackAfterHours      = decimal.RequireFromString("100.27")
	FallbackWeekend         = decimal.RequireFromString("148.63")
)

// Config is the concept-matching table the engine runs against. Keeping the
// keyword pairs as data means a new handling company's vocabulary is a
// config change, not a code change.
type Config struct {
	Fixed      []FixedItem
	Surcharges []Surcharge
}

// DefaultConfig returns the concept table for the Spanish handling sheets
// currently in use.
func DefaultConfig() Config {
	return Config{
		Fixed: []FixedItem{
			{Label: "Documentos", Query: ConceptQuery{{"documentos"}, {"gestión documental"}}},
			{Label: "Almacenaje", Query: ConceptQuery{{"almacenaje", "mínimo"}, {"almacenaje"}}},
			{Label: "Acceso Recinto", Query: ConceptQuery{{"acceso", "mínimo"}, {"acceso recinto"}}},
			{Label: "Tasa Energía/Mantenimiento", Query: ConceptQuery{{"tasa energía"}, {"mantenimiento"}}},
			{Label: "Extracargo Groundforce", Query: ConceptQuery{{"extracargo"}}, CompanyContains: "groundforce"},
		},
		Surcharges: []Surcharge{
			{Flag: FlagTruckLoading, Label: "Carga Camión", Query: ConceptQuery{{"carga camión"}, {"carga/descarga"}}, Fallback: FallbackTruckLoading},
			{Flag: FlagExpressHandling, Label: "Handling Express", Query: ConceptQuery{{"express", "mínimo"}, {"handling express"}}, Fallback: FallbackExpressHandling},
			{Flag: FlagAfterHours, Label: "Apertura Fuera de Horario", Query: ConceptQuery{{"apertura fuera"}}, Fallback: FallbackAfterHours},
			{Flag: FlagWeekend, Label: "Fin de Semana/Festivo", Query: ConceptQuery{{"fin de semana"}, {"festivo"}}, Fallback: FallbackWeekend},
		},
	}
}

var hundred = decimal.NewFromInt(100)

// Calculate prices a shipment against the given tariff rules. It is a pure
// function: same request and same rules always produce the same items, and
// missing tariffs simply omit their line item rather than failing.
func Calculate(req Request, rules []tariff.Rule, cfg Config) Result {
	items := []LineItem{}

	for _, fixed := range cfg.Fixed {
		if fixed.CompanyContains != "" &&
			!strings.Contains(strings.ToLower(req.HandlingCompany), fixed.CompanyContains) {
			continue
		}
		if rule, ok := findRule(rules, fixed.Query); ok {
			items = appendComputed(items, rule, fixed.Label, req)
		}
	}

	items = append(items, storageOverage(req, rules)...)

	for _, surcharge := range cfg.Surcharges {
		if !flagEnabled(req, surcharge.Flag) {
			continue
		}
		if rule, ok := findRule(rules, surcharge.Query); ok {
			items = appendComputed(items, rule, surcharge.Label, req)
			continue
		}
		items = append(items, LineItem{
			Concept:  surcharge.Label,
			Amount:   surcharge.Fallback,
			IsManual: true,
		})
	}

	if req.CustomConcept != "" && req.CustomAmount != nil {
		amount := req.CustomAmount.Round(2)
		if amount.IsPositive() {
			items = append(items, LineItem{
				Concept:  req.CustomConcept,
				Amount:   amount,
				IsManual: true,
			})
		}
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return Result{Items: items, Total: total.Round(2)}
}

// StorageDays is the whole days a shipment sat between arrival and pickup.
func StorageDays(arrival *time.Time, pickup time.Time) int {
	if arrival == nil {
		return 0
	}
	days := int(pickup.Sub(*arrival) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}

// storageOverage bills storage beyond the company's free allowance. In
// after_free mode only the overage days are billed; in all_days mode the
// whole stay is billed once the allowance is exceeded.
func storageOverage(req Request, rules []tariff.Rule) []LineItem {
	days := StorageDays(req.ArrivalDate, req.PickupDate)
	policy := tariff.ResolveBillingPolicy(req.HandlingCompany, req.PickupDate.Year(), rules)

	billable := 0
	if days > policy.FreeStorageDays {
		if policy.Mode == tariff.ChargeAllDays {
			billable = days
		} else {
			billable = days - policy.FreeStorageDays
		}
	}
	if billable == 0 {
		return nil
	}

	var storageRule *tariff.Rule
	for i, rule := range rules {
		if rule.IsStorage() && !rule.ConceptContains("mínimo") && rule.PriceType != tariff.PriceConfig {
			storageRule = &rules[i]
			break
		}
	}
	if storageRule == nil {
		return nil
	}

	billableDec := decimal.NewFromInt(int64(billable))
	var amount decimal.Decimal
	if storageRule.PriceType == tariff.PricePerKg {
		amount = req.WeightKg.Div(hundred).Mul(storageRule.PricePerUnit).Mul(billableDec)
	} else {
		amount = storageRule.PricePerUnit.Mul(billableDec)
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil
	}

	var label string
	if policy.Mode == tariff.ChargeAllDays {
		label = fmt.Sprintf("Almacenaje (%d días, período libre excedido)", billable)
	} else {
		label = fmt.Sprintf("Almacenaje Extra (%d días después de %d días libres)", billable, policy.FreeStorageDays)
	}
	id := storageRule.ID
	return []LineItem{{Concept: label, Amount: amount, SourceTariffID: &id}}
}

// appendComputed prices one tariff rule and appends the line item when the
// amount comes out positive.
func appendComputed(items []LineItem, rule tariff.Rule, label string, req Request) []LineItem {
	var amount decimal.Decimal
	switch rule.PriceType {
	case tariff.PricePerKg:
		// storage bands are quoted per 100 kg on the sheets
		if rule.IsStorage() {
			amount = req.WeightKg.Div(hundred).Mul(rule.PricePerUnit)
		} else {
			amount = req.WeightKg.Mul(rule.PricePerUnit)
		}
		if rule.MinPrice != nil && amount.LessThan(*rule.MinPrice) {
			amount = *rule.MinPrice
		}
	case tariff.PricePerPackage:
		packages := req.Packages
		if packages < 1 {
			packages = 1
		}
		amount = decimal.NewFromInt(int64(packages)).Mul(rule.PricePerUnit)
	default:
		amount = rule.PricePerUnit
	}

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return items
	}
	id := rule.ID
	return append(items, LineItem{Concept: label, Amount: amount, SourceTariffID: &id})
}

// findRule resolves a concept query against the rule set: alternatives in
// order, first rule satisfying all substrings of an alternative wins.
func findRule(rules []tariff.Rule, query ConceptQuery) (tariff.Rule, bool) {
	for _, terms := range query {
		for _, rule := range rules {
			if matchesAll(rule, terms) {
				return rule, true
			}
		}
	}
	return tariff.Rule{}, false
}

func matchesAll(rule tariff.Rule, terms []string) bool {
	for _, term := range terms {
		if !rule.ConceptContains(term) {
			return false
		}
	}
	return true
}

func flagEnabled(req Request, flag SurchargeFlag) bool {
	switch flag {
	case FlagTruckLoading:
		return req.ExtraTruckLoading
	case FlagExpressHandling:
		return req.ExtraExpressHandling
	case FlagAfterHours:
		return req.ExtraAfterHours
	case FlagWeekend:
		return req.ExtraWeekend
	}
	return false
}
