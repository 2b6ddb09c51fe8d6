package local

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/entity"
)

var (
	reTotalLine = regexp.MustCompile(`(?i)\b(grand\s+total|amount\s+due|total)\b[^\d]*(\d{1,3}(?:,\d{3})*\.\d{2}|\d+\.\d{2})`)
	reLineItem  = regexp.MustCompile(`^(.{2,60}?)\s+(\d{1,3}(?:\.\d+)?)\s*[x@]\s*(\d+\.\d{2})\s*$`)
	reCurrWord  = regexp.MustCompile(`(?i)\b(USD|EUR|GBP|CAD|AUD|INR|JPY)\b`)
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006",
}

// parsed is what the regex pass recovered from OCR text, before confidence
// blending.
type parsed struct {
	fields      map[string]entity.FieldValue
	lineItems   []entity.LineItem
	fieldScores map[string]float32
}

// parseText pulls structured fields out of free OCR text with regex
// heuristics. It never fails; absent fields are simply omitted and the
// caller decides what the resulting confidence means.
func parseText(text string, kind constants.DocumentKind) parsed {
	p := parsed{
		fields:      map[string]entity.FieldValue{},
		fieldScores: map[string]float32{},
	}
	lines := strings.Split(text, "\n")

	if merchant := firstContentLine(lines); merchant != "" {
		p.fields["merchant_name"] = entity.StringField(merchant)
		p.fieldScores["merchant_name"] = 0.55
	}

	if d, ok := findDate(text); ok {
		p.fields["transaction_date"] = entity.FieldValue{Type: entity.FieldDate, Date: d}
		p.fieldScores["transaction_date"] = 0.7
	}

	if amt, ok := findTotal(text); ok {
		p.fields["total_amount"] = entity.NumberField(amt)
		p.fieldScores["total_amount"] = 0.65
	}

	if cur, ok := findCurrency(text); ok {
		p.fields["currency"] = entity.StringField(cur)
		p.fieldScores["currency"] = 0.6
	}

	if kind == constants.KindReceipt {
		p.lineItems = findLineItems(lines)
	}
	return p
}

func firstContentLine(lines []string) string {
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if len(l) >= 3 && !reAmount.MatchString(l) {
			return l
		}
	}
	return ""
}

func findDate(text string) (string, bool) {
	m := reDate.FindString(strings.ToLower(text))
	if m == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, m); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// findTotal prefers a labelled total line; the largest amount on the page
// is the fallback, since receipts print the total below the items.
func findTotal(text string) (float64, bool) {
	if m := reTotalLine.FindStringSubmatch(text); m != nil {
		if v, err := parseAmount(m[2]); err == nil {
			return v, true
		}
	}
	var best float64
	found := false
	for _, m := range reAmount.FindAllString(text, -1) {
		v, err := parseAmount(m)
		if err != nil {
			continue
		}
		if !found || v > best {
			best = v
			found = true
		}
	}
	return best, found
}

func findCurrency(text string) (string, bool) {
	if m := reCurrWord.FindString(text); m != "" {
		return strings.ToUpper(m), true
	}
	for sym, code := range currencySymbols {
		if strings.Contains(text, sym) {
			return code, true
		}
	}
	return "", false
}

func findLineItems(lines []string) []entity.LineItem {
	var items []entity.LineItem
	for _, l := range lines {
		m := reLineItem.FindStringSubmatch(strings.TrimSpace(l))
		if m == nil {
			continue
		}
		qty, err1 := strconv.ParseFloat(m[2], 64)
		price, err2 := parseAmount(m[3])
		if err1 != nil || err2 != nil || qty <= 0 {
			continue
		}
		items = append(items, entity.LineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    qty,
			UnitPrice:   price,
			LineTotal:   qty * price,
			Confidence:  0.5,
		})
	}
	return items
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
