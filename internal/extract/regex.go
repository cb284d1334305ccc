package extract

import (
	"regexp"
)

// Currency-adjacent numeric tokens, marker before or after the number.
var (
	markerFirstRe = regexp.MustCompile(`(₺|\$|€|£|TL|TRY|USD|EUR|GBP)\s*([0-9][0-9.,]*)`)
	markerAfterRe = regexp.MustCompile(`([0-9][0-9.,]*)\s*(₺|\$|€|£|TL|TRY|USD|EUR|GBP)`)
)

// regexStrategy is the last resort: find a currency-adjacent numeric token
// anywhere in the raw HTML. Weak by construction, hence the low confidence.
type regexStrategy struct{}

func (regexStrategy) Matches(string) bool { return true }

func (regexStrategy) Extract(html, _ string) *Result {
	res := regexResult(html)
	if res == nil {
		return nil
	}
	res.Confidence = confidenceRegex
	res.Source = SourceRegex
	return res
}

// regexResult scans text for a price next to a currency marker. Confidence
// and source are left for the caller to fill, so site adapters can reuse the
// scan for their DOM regions.
func regexResult(text string) *Result {
	if m := markerFirstRe.FindStringSubmatch(text); m != nil {
		if price, ok := parseAmount(m[2]); ok {
			return &Result{Price: price, Currency: currencyFromMarker(m[1])}
		}
	}
	if m := markerAfterRe.FindStringSubmatch(text); m != nil {
		if price, ok := parseAmount(m[1]); ok {
			return &Result{Price: price, Currency: currencyFromMarker(m[2])}
		}
	}
	return nil
}
