package extract

import (
	"strconv"
	"strings"
)

// parseAmount converts a localized numeric token into a float. When both
// separators appear the right-most one is the decimal point; a lone comma
// followed by exactly two digits is a decimal comma, otherwise commas group
// thousands. Dots mirror the same rule.
func parseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Trim(s, ".,")
	if s == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// currencyFromMarker maps a currency marker adjacent to a price token onto an
// ISO code. Unknown markers leave the currency unset.
func currencyFromMarker(marker string) string {
	switch strings.ToUpper(strings.TrimSpace(marker)) {
	case "₺", "TL", "TRY":
		return "TRY"
	case "$", "USD":
		return "USD"
	case "€", "EUR":
		return "EUR"
	case "£", "GBP":
		return "GBP"
	default:
		return ""
	}
}

// normalizeCurrency keeps only plausible ISO-ish codes from page metadata.
func normalizeCurrency(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return ""
	}
	if c := currencyFromMarker(code); c != "" {
		return c
	}
	if len(code) == 3 {
		return code
	}
	return ""
}
