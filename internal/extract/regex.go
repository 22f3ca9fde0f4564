package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
	"github.com/shopspring/decimal"
)

const money = `\$\s*([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]{2})?|[0-9]+(?:\.[0-9]{2})?)`

type amountPattern struct {
	regex  *regexp.Regexp
	weight float64
}

// Amount phrases in order of trust; the first match wins.
var amountPatterns = []amountPattern{
	{
		regex:  regexp.MustCompile(`(?i)(?:amount|balance|total|payment)\s+(?:due|owed)\b[^$\n]{0,20}` + money),
		weight: 40,
	},
	{
		regex:  regexp.MustCompile(`(?i)(?:total|charged|billed|renews?\s+(?:at|for)|will\s+be\s+charged)[^$\n]{0,20}` + money),
		weight: 35,
	},
	{
		regex:  regexp.MustCompile(money),
		weight: 20,
	},
}

const datePattern = `([A-Z][a-z]{2,8}\.?\s+\d{1,2},?\s+\d{4}|\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2})`

var dueDateRegex = regexp.MustCompile(`(?i)(?:due|payable|renews?|will\s+be\s+charged|payment\s+date|autopay\s+date)\s*(?:date)?\s*(?:on|by|is)?\s*:?\s*` + datePattern)

var dateLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02",
}

var frequencyPatterns = []struct {
	regex *regexp.Regexp
	freq  model.Frequency
}{
	{regexp.MustCompile(`(?i)\b(weekly|every\s+week|per\s+week)\b`), model.FrequencyWeekly},
	{regexp.MustCompile(`(?i)\b(quarterly|every\s+(3|three)\s+months|per\s+quarter)\b`), model.FrequencyQuarterly},
	{regexp.MustCompile(`(?i)\b(annual|annually|yearly|every\s+year|per\s+year)\b|/\s*yr\b`), model.FrequencyYearly},
	{regexp.MustCompile(`(?i)\b(monthly|every\s+month|per\s+month)\b|/\s*mo(nth)?\b`), model.FrequencyMonthly},
}

var billKeywordRegex = regexp.MustCompile(`(?i)\b(bill|invoice|statement|amount\s+due|payment\s+due|receipt|subscription|renewal|autopay|your\s+plan)\b`)

var subjectMerchantRegex = regexp.MustCompile(`(?i)^(?:re:\s*|fwd?:\s*)*your\s+(.+?)\s+(?:bill|statement|invoice|receipt|subscription|payment|membership)\b`)

// RegexStrategy extracts bill fields with ordered compiled patterns.
// Confidence grows with the number of corroborating signals found.
type RegexStrategy struct {
	keywordWeight   float64
	dueDateWeight   float64
	frequencyWeight float64
	merchantWeight  float64
	maxConfidence   float64
}

var _ service.BillExtractor = (*RegexStrategy)(nil)

// NewRegexStrategy creates the default regex strategy.
func NewRegexStrategy() *RegexStrategy {
	return &RegexStrategy{
		keywordWeight:   20,
		dueDateWeight:   20,
		frequencyWeight: 10,
		merchantWeight:  5,
		maxConfidence:   95,
	}
}

// Extract implements service.BillExtractor.
func (s *RegexStrategy) Extract(ctx context.Context, subject, _ string, body string) (*service.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := subject + "\n" + body
	ext := &service.Extraction{}
	var score float64

	for _, p := range amountPatterns {
		m := p.regex.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, ok := parseAmount(m[1])
		if !ok {
			continue
		}
		ext.Amount = &amount
		score += p.weight
		break
	}

	hasKeyword := billKeywordRegex.MatchString(text)
	if ext.Amount == nil && !hasKeyword {
		return nil, nil //nolint:nilnil // Not a bill is a valid result
	}
	if hasKeyword {
		score += s.keywordWeight
	}

	if m := dueDateRegex.FindStringSubmatch(text); m != nil {
		if due, ok := parseDate(m[1]); ok {
			ext.DueDate = &due
			score += s.dueDateWeight
		}
	}

	for _, fp := range frequencyPatterns {
		if fp.regex.MatchString(text) {
			ext.Frequency = fp.freq
			score += s.frequencyWeight
			break
		}
	}

	if m := subjectMerchantRegex.FindStringSubmatch(strings.TrimSpace(subject)); m != nil {
		ext.Merchant = strings.TrimSpace(m[1])
		score += s.merchantWeight
	}

	if score > s.maxConfidence {
		score = s.maxConfidence
	}
	ext.Confidence = score
	return ext, nil
}

func parseAmount(raw string) (float64, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	return d.Round(2).InexactFloat64(), true
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.Join(strings.Fields(raw), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
