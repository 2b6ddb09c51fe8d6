package extract

import (
	"regexp"
	"strings"
)

// Normalizer cleans up merchant/provider names before they are stored.
// Semantic normalization (chain aliases, canonical retailer ids) belongs to
// whoever consumes the extracted data; implementations here only make the
// raw OCR string presentable.
type Normalizer interface {
	NormalizeMerchant(name string) string
}

var (
	reStoreNumber = regexp.MustCompile(`\s+#?\d{3,6}\s*$`)
	reSpaces      = regexp.MustCompile(`\s{2,}`)
)

var legalSuffixes = []string{" llc", " inc", " inc.", " ltd", " ltd.", " co.", " corp", " corp."}

// RegexNormalizer is the default hook: trims store numbers and legal
// suffixes, collapses whitespace.
type RegexNormalizer struct{}

func (RegexNormalizer) NormalizeMerchant(name string) string {
	s := strings.TrimSpace(name)
	s = reStoreNumber.ReplaceAllString(s, "")
	lower := strings.ToLower(s)
	for _, suf := range legalSuffixes {
		if strings.HasSuffix(lower, suf) {
			s = strings.TrimSpace(s[:len(s)-len(suf)])
			break
		}
	}
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var _ Normalizer = RegexNormalizer{}
