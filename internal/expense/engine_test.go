package expense

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/customsway/backend-cargo/internal/tariff"
)

func date(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(value string) *time.Time {
	t := date(value)
	return &t
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func configRules(company string, year, freeDays int, allDays bool) []tariff.Rule {
	mode := decimal.Zero
	if allDays {
		mode = decimal.NewFromInt(1)
	}
	return []tariff.Rule{
		{ID: uuid.New(), HandlingCompany: company, Year: year, Concept: tariff.ConceptConfigFreeDays, PriceType: tariff.PriceConfig, PricePerUnit: decimal.NewFromInt(int64(freeDays))},
		{ID: uuid.New(), HandlingCompany: company, Year: year, Concept: tariff.ConceptConfigChargeMode, PriceType: tariff.PriceConfig, PricePerUnit: mode},
	}
}

func storageRule(company string, year int, perDay string) tariff.Rule {
	return tariff.Rule{
		ID:              uuid.New(),
		HandlingCompany: company,
		Year:            year,
		Concept:         "Almacenaje por día",
		PriceType:       tariff.PriceFixed,
		PricePerUnit:    dec(perDay),
	}
}

func findItem(t *testing.T, items []LineItem, substr string) LineItem {
	t.Helper()
	for _, item := range items {
		if containsFold(item.Concept, substr) {
			return item
		}
	}
	t.Fatalf("no line item matching %q in %+v", substr, items)
	return LineItem{}
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && (tariff.Rule{Concept: s}).ConceptContains(substr)
}

func TestNoStorageChargeWithinFreePeriod(t *testing.T) {
	rules := append(configRules("Swissport", 2025, 3, false), storageRule("Swissport", 2025, "12.00"))
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("100"),
		ArrivalDate:     datePtr("2025-01-01"),
		PickupDate:      date("2025-01-03"),
	}
	result := Calculate(req, rules, DefaultConfig())
	for _, item := range result.Items {
		if containsFold(item.Concept, "días") {
			t.Fatalf("unexpected storage overage item: %+v", item)
		}
	}
}

func TestAfterFreeModeBillsOverageOnly(t *testing.T) {
	rules := append(configRules("Swissport", 2025, 3, false), storageRule("Swissport", 2025, "12.00"))
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("250"),
		ArrivalDate:     datePtr("2025-01-01"),
		PickupDate:      date("2025-01-10"),
	}
	result := Calculate(req, rules, DefaultConfig())
	item := findItem(t, result.Items, "Almacenaje Extra")
	if item.Concept != "Almacenaje Extra (6 días después de 3 días libres)" {
		t.Fatalf("unexpected concept %q", item.Concept)
	}
	if !item.Amount.Equal(dec("72.00")) {
		t.Fatalf("expected 72.00, got %s", item.Amount)
	}
	if item.IsManual {
		t.Fatal("tariff-priced storage must not be manual")
	}
	if item.SourceTariffID == nil {
		t.Fatal("expected source tariff id")
	}
}

func TestAllDaysModeBillsEntireStay(t *testing.T) {
	rules := append(configRules("Groundforce", 2025, 2, true), storageRule("Groundforce", 2025, "10.00"))
	req := Request{
		HandlingCompany: "Groundforce",
		WeightKg:        dec("500"),
		ArrivalDate:     datePtr("2025-02-01"),
		PickupDate:      date("2025-02-05"),
	}
	result := Calculate(req, rules, DefaultConfig())
	item := findItem(t, result.Items, "período libre excedido")
	if item.Concept != "Almacenaje (4 días, período libre excedido)" {
		t.Fatalf("unexpected concept %q", item.Concept)
	}
	if !item.Amount.Equal(dec("40.00")) {
		t.Fatalf("expected 40.00, got %s", item.Amount)
	}
}

func TestPerKgStorageBilledPerHundredKilos(t *testing.T) {
	rules := append(configRules("Swissport", 2025, 0, false), tariff.Rule{
		ID:              uuid.New(),
		HandlingCompany: "Swissport",
		Year:            2025,
		Concept:         "Tramo adicional",
		PriceType:       tariff.PricePerKg,
		PricePerUnit:    dec("2.00"),
	})
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("350"),
		ArrivalDate:     datePtr("2025-03-01"),
		PickupDate:      date("2025-03-04"),
	}
	result := Calculate(req, rules, DefaultConfig())
	// 350/100 * 2.00 * 3 days
	item := findItem(t, result.Items, "Almacenaje Extra")
	if !item.Amount.Equal(dec("21.00")) {
		t.Fatalf("expected 21.00, got %s", item.Amount)
	}
}

func TestTruckLoadingFallback(t *testing.T) {
	req := Request{
		HandlingCompany:   "Swissport",
		WeightKg:          dec("100"),
		PickupDate:        date("2025-01-10"),
		ExtraTruckLoading: true,
	}
	result := Calculate(req, nil, DefaultConfig())
	item := findItem(t, result.Items, "Carga Camión")
	if !item.Amount.Equal(dec("71.91")) {
		t.Fatalf("expected fallback 71.91, got %s", item.Amount)
	}
	if !item.IsManual {
		t.Fatal("fallback surcharge must be manual")
	}
	if item.SourceTariffID != nil {
		t.Fatal("fallback surcharge must not carry a tariff id")
	}
}

func TestSurchargePrefersTariffOverFallback(t *testing.T) {
	rules := []tariff.Rule{{
		ID:              uuid.New(),
		HandlingCompany: "Swissport",
		Year:            2025,
		Concept:         "Apertura fuera de horario laboral",
		PriceType:       tariff.PriceFixed,
		PricePerUnit:    dec("90.00"),
	}}
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("100"),
		PickupDate:      date("2025-01-10"),
		ExtraAfterHours: true,
	}
	result := Calculate(req, rules, DefaultConfig())
	item := findItem(t, result.Items, "Apertura Fuera de Horario")
	if !item.Amount.Equal(dec("90.00")) {
		t.Fatalf("expected tariff amount 90.00, got %s", item.Amount)
	}
	if item.IsManual {
		t.Fatal("tariff-priced surcharge must not be manual")
	}
}

func TestCustomExpenseAppended(t *testing.T) {
	amount := dec("25.50")
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("100"),
		PickupDate:      date("2025-01-10"),
		CustomConcept:   "Transporte especial",
		CustomAmount:    &amount,
	}
	result := Calculate(req, nil, DefaultConfig())
	item := findItem(t, result.Items, "Transporte especial")
	if !item.Amount.Equal(dec("25.50")) || !item.IsManual {
		t.Fatalf("unexpected custom item: %+v", item)
	}
}

func TestCustomExpenseRequiresBothFields(t *testing.T) {
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("100"),
		PickupDate:      date("2025-01-10"),
		CustomConcept:   "Transporte especial",
	}
	result := Calculate(req, nil, DefaultConfig())
	if len(result.Items) != 0 {
		t.Fatalf("expected no items, got %+v", result.Items)
	}
}

func TestMinPriceFloorApplied(t *testing.T) {
	minPrice := dec("30.00")
	rules := []tariff.Rule{{
		ID:              uuid.New(),
		HandlingCompany: "Swissport",
		Year:            2025,
		Concept:         "Documentos y despacho",
		PriceType:       tariff.PricePerKg,
		PricePerUnit:    dec("0.05"),
		MinPrice:        &minPrice,
	}}
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("100"),
		PickupDate:      date("2025-01-10"),
	}
	result := Calculate(req, rules, DefaultConfig())
	item := findItem(t, result.Items, "Documentos")
	// 100 * 0.05 = 5.00, floored at 30.00
	if !item.Amount.Equal(dec("30.00")) {
		t.Fatalf("expected min price 30.00, got %s", item.Amount)
	}
}

func TestPerPackageUsesAtLeastOnePackage(t *testing.T) {
	rules := []tariff.Rule{{
		ID:              uuid.New(),
		HandlingCompany: "Swissport",
		Year:            2025,
		Concept:         "Gestión documental por bulto",
		PriceType:       tariff.PricePerPackage,
		PricePerUnit:    dec("4.50"),
	}}
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("100"),
		Packages:        0,
		PickupDate:      date("2025-01-10"),
	}
	result := Calculate(req, rules, DefaultConfig())
	item := findItem(t, result.Items, "Documentos")
	if !item.Amount.Equal(dec("4.50")) {
		t.Fatalf("expected 4.50 for one package, got %s", item.Amount)
	}
}

func TestZeroAmountsNeverEmitted(t *testing.T) {
	rules := []tariff.Rule{{
		ID:              uuid.New(),
		HandlingCompany: "Swissport",
		Year:            2025,
		Concept:         "Documentos",
		PriceType:       tariff.PriceFixed,
		PricePerUnit:    decimal.Zero,
	}}
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("100"),
		PickupDate:      date("2025-01-10"),
	}
	result := Calculate(req, rules, DefaultConfig())
	if len(result.Items) != 0 {
		t.Fatalf("expected zero-priced tariff to be dropped, got %+v", result.Items)
	}
	if !result.Total.IsZero() {
		t.Fatalf("expected zero total, got %s", result.Total)
	}
}

func TestExtracargoOnlyForGroundforce(t *testing.T) {
	rules := []tariff.Rule{{
		ID:              uuid.New(),
		HandlingCompany: "Groundforce",
		Year:            2025,
		Concept:         "Extracargo general",
		PriceType:       tariff.PriceFixed,
		PricePerUnit:    dec("15.00"),
	}}
	req := Request{
		HandlingCompany: "Groundforce Madrid",
		WeightKg:        dec("100"),
		PickupDate:      date("2025-01-10"),
	}
	result := Calculate(req, rules, DefaultConfig())
	findItem(t, result.Items, "Extracargo Groundforce")

	req.HandlingCompany = "Swissport"
	result = Calculate(req, rules, DefaultConfig())
	for _, item := range result.Items {
		if containsFold(item.Concept, "Extracargo") {
			t.Fatalf("extracargo must not apply to %q", req.HandlingCompany)
		}
	}
}

func TestCalculationIsIdempotent(t *testing.T) {
	rules := append(configRules("Swissport", 2025, 3, false),
		storageRule("Swissport", 2025, "12.00"),
		tariff.Rule{ID: uuid.New(), HandlingCompany: "Swissport", Year: 2025, Concept: "Documentos", PriceType: tariff.PriceFixed, PricePerUnit: dec("18.40")})
	amount := dec("25.50")
	req := Request{
		HandlingCompany:   "Swissport",
		WeightKg:          dec("250"),
		Packages:          3,
		ArrivalDate:       datePtr("2025-01-01"),
		PickupDate:        date("2025-01-10"),
		ExtraTruckLoading: true,
		CustomConcept:     "Transporte especial",
		CustomAmount:      &amount,
	}
	first := Calculate(req, rules, DefaultConfig())
	second := Calculate(req, rules, DefaultConfig())
	if len(first.Items) != len(second.Items) {
		t.Fatalf("item count differs: %d vs %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		a, b := first.Items[i], second.Items[i]
		if a.Concept != b.Concept || !a.Amount.Equal(b.Amount) || a.IsManual != b.IsManual {
			t.Fatalf("item %d differs: %+v vs %+v", i, a, b)
		}
	}
	if !first.Total.Equal(second.Total) {
		t.Fatalf("totals differ: %s vs %s", first.Total, second.Total)
	}
}

func TestTotalIsSumOfRoundedItems(t *testing.T) {
	rules := []tariff.Rule{
		{ID: uuid.New(), HandlingCompany: "Swissport", Year: 2025, Concept: "Documentos", PriceType: tariff.PricePerKg, PricePerUnit: dec("0.0333")},
		{ID: uuid.New(), HandlingCompany: "Swissport", Year: 2025, Concept: "Acceso recinto", PriceType: tariff.PricePerKg, PricePerUnit: dec("0.0444")},
	}
	req := Request{
		HandlingCompany: "Swissport",
		WeightKg:        dec("100"),
		PickupDate:      date("2025-01-10"),
	}
	result := Calculate(req, rules, DefaultConfig())
	// 3.33 + 4.44, each rounded before summing
	if !result.Total.Equal(dec("7.77")) {
		t.Fatalf("expected 7.77, got %s", result.Total)
	}
}
