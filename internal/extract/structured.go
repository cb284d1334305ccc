package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// structuredStrategy reads machine-authored offer blocks (JSON-LD) embedded
// in the page. These are the most trustworthy static source short of a
// site-specific adapter.
type structuredStrategy struct{}

func (structuredStrategy) Matches(string) bool { return true }

func (structuredStrategy) Extract(html, _ string) *Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var result *Result
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return true
		}
		if price, currency, ok := offerFromJSONLD(payload); ok {
			result = &Result{
				Price:      price,
				Currency:   currency,
				Confidence: confidenceStructured,
				Source:     SourceStructured,
			}
			return false
		}
		return true
	})
	return result
}

// offerFromJSONLD walks a JSON-LD document looking for an offer price. It
// accepts Product nodes with nested offers, bare Offer nodes, and @graph
// arrays.
func offerFromJSONLD(node any) (float64, string, bool) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if price, currency, ok := offerFromJSONLD(item); ok {
				return price, currency, ok
			}
		}
	case map[string]any:
		if price, currency, ok := priceFromOffer(v); ok {
			return price, currency, ok
		}
		for _, key := range []string{"offers", "@graph", "mainEntity"} {
			if child, exists := v[key]; exists {
				if price, currency, ok := offerFromJSONLD(child); ok {
					return price, currency, ok
				}
			}
		}
	}
	return 0, "", false
}

func priceFromOffer(obj map[string]any) (float64, string, bool) {
	for _, key := range []string{"price", "lowPrice"} {
		raw, exists := obj[key]
		if !exists {
			continue
		}
		price, ok := numericValue(raw)
		if !ok {
			continue
		}
		currency := ""
		if c, exists := obj["priceCurrency"]; exists {
			if s, isStr := c.(string); isStr {
				currency = normalizeCurrency(s)
			}
		}
		return price, currency, true
	}
	if spec, exists := obj["priceSpecification"]; exists {
		return offerFromJSONLD(spec)
	}
	return 0, "", false
}

// numericValue accepts JSON numbers and numeric strings, both common in the
// wild for JSON-LD prices.
func numericValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		if v > 0 {
			return v, true
		}
	case string:
		return parseAmount(v)
	case json.Number:
		if f, err := v.Float64(); err == nil && f > 0 {
			return f, true
		}
	}
	return 0, false
}
