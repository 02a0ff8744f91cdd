package tariff

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Extraction holds the billing configuration scraped from a tariff sheet's
// text. This is a brittle keyword scan over already-extracted text, not
// document understanding; Confidence reflects how the values were obtained.
type Extraction struct {
	FreeStorageDays *int       `json:"free_storage_days"`
	ChargeMode      ChargeMode `json:"storage_charge_mode,omitempty"`
	Confidence      string     `json:"confidence"`
	Matches         []string   `json:"matches"`
	Candidates      []Rule     `json:"candidates,omitempty"`
}

// Spanish phrasings for free storage allowances found in handling tariff sheets.
var freeDayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*d[íi]as?\s*(?:libres?|gratis|gratuitos?|franquicia|sin\s*cargo)`),
	regexp.MustCompile(`(?i)franquicia\s*(?:de\s*)?(\d+)\s*d[íi]as?`),
	regexp.MustCompile(`(?i)primeros?\s*(\d+)\s*d[íi]as?\s*(?:sin\s*cargo|gratis|gratuitos?)`),
	regexp.MustCompile(`(?i)(\d+)\s*free\s*days?`),
	regexp.MustCompile(`(?i)almacenaje\s*(?:gratuito|libre|sin\s*cargo)\s*(?:durante\s*)?(\d+)\s*d[íi]as?`),
	regexp.MustCompile(`(?i)d[íi]as?\s*(?:de\s*)?(?:carencia|cortes[íi]a|gracia)[:\s]*(\d+)`),
	regexp.MustCompile(`(?i)periodo\s*(?:de\s*)?(?:almacenaje\s*)?gratuito[:\s]*(\d+)`),
}

var afterFreeMarkers = []string{"a partir del día", "desde el día", "transcurrido", "excedido el plazo"}
var allDaysMarkers = []string{"totalidad de los días", "todos los días", "desde el primer día"}

var conceptKeywords = []*regexp.Regexp{
	regexp.MustCompile(`(?i)almacenaje`),
	regexp.MustCompile(`(?i)handling`),
	regexp.MustCompile(`(?i)despacho`),
	regexp.MustCompile(`(?i)manipulaci[oó]n`),
	regexp.MustCompile(`(?i)carga`),
	regexp.MustCompile(`(?i)descarga`),
	regexp.MustCompile(`(?i)documentaci[oó]n`),
	regexp.MustCompile(`(?i)inspecci[oó]n`),
	regexp.MustCompile(`(?i)apertura`),
	regexp.MustCompile(`(?i)express`),
	regexp.MustCompile(`(?i)fuera.?horario`),
	regexp.MustCompile(`(?i)festivo`),
	regexp.MustCompile(`(?i)urgente`),
}

var pricePattern = regexp.MustCompile(`(\d+[.,]\d{2})\s*€?`)
var weightRangePattern = regexp.MustCompile(`(?i)(\d+)\s*[-–]\s*(\d+)\s*kg`)

// Extract scans extracted tariff-sheet text for the free-storage-day
// allowance, the charge mode, and candidate tariff rows. Known companies
// provide defaults when the text is inconclusive.
func Extract(text, company string) Extraction {
	result := Extraction{Matches: []string{}}
	normalized := strings.ToLower(text)

	for _, pattern := range freeDayPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			result.Matches = append(result.Matches, match[0])
			num, err := strconv.Atoi(match[1])
			// plausible allowances only; tariff sheets quote other day counts too
			if err == nil && num >= 1 && num <= 10 {
				days := num
				result.FreeStorageDays = &days
			}
		}
	}

	for _, marker := range afterFreeMarkers {
		if strings.Contains(normalized, marker) {
			result.ChargeMode = ChargeAfterFree
			break
		}
	}
	if result.ChargeMode == "" {
		for _, marker := range allDaysMarkers {
			if strings.Contains(normalized, marker) {
				result.ChargeMode = ChargeAllDays
				break
			}
		}
	}

	applyCompanyDefaults(&result, company)

	switch {
	case len(result.Matches) > 0:
		result.Confidence = "high"
	case result.FreeStorageDays != nil:
		result.Confidence = "medium"
	default:
		result.Confidence = "low"
	}

	result.Candidates = scanCandidates(text)
	return result
}

// Known contractual behaviour used when a sheet does not state its own terms.
func applyCompanyDefaults(result *Extraction, company string) {
	lower := strings.ToLower(company)
	switch {
	case strings.Contains(lower, "swissport"):
		if result.ChargeMode == "" {
			result.ChargeMode = ChargeAfterFree
		}
		if result.FreeStorageDays == nil {
			days := 3
			result.FreeStorageDays = &days
		}
	case strings.Contains(lower, "groundforce"):
		if result.ChargeMode == "" {
			result.ChargeMode = ChargeAllDays
		}
		if result.FreeStorageDays == nil {
			days := 2
			result.FreeStorageDays = &days
		}
	}
}

// scanCandidates picks out lines that look like tariff table rows: a known
// concept keyword next to a price, or a weight-range storage band.
func scanCandidates(text string) []Rule {
	var candidates []Rule
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		for _, keyword := range conceptKeywords {
			if !keyword.MatchString(line) {
				continue
			}
			prices := pricePattern.FindAllString(line, -1)
			if len(prices) > 0 {
				concept := strings.TrimSpace(pricePattern.ReplaceAllString(line, ""))
				price, err := parsePrice(prices[0])
				if err == nil && concept != "" {
					if len(concept) > 100 {
						concept = concept[:100]
					}
					candidates = append(candidates, Rule{
						Concept:      concept,
						PriceType:    PriceFixed,
						PricePerUnit: price,
					})
				}
			}
			break
		}

		if rangeMatch := weightRangePattern.FindStringSubmatch(line); rangeMatch != nil {
			prices := pricePattern.FindAllString(line, -1)
			if len(prices) == 0 {
				continue
			}
			price, err := parsePrice(prices[0])
			if err != nil {
				continue
			}
			rule := Rule{
				Concept:      "Almacenaje por peso",
				PriceType:    PricePerKg,
				PricePerUnit: price,
			}
			if len(prices) > 1 {
				if minPrice, err := parsePrice(prices[1]); err == nil {
					rule.MinPrice = &minPrice
				}
			}
			if lo, err := decimal.NewFromString(rangeMatch[1]); err == nil {
				rule.WeightRangeMin = &lo
			}
			if hi, err := decimal.NewFromString(rangeMatch[2]); err == nil {
				rule.WeightRangeMax = &hi
			}
			candidates = append(candidates, rule)
		}
	}
	return candidates
}

func parsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "€"))
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	return decimal.NewFromString(cleaned)
}
