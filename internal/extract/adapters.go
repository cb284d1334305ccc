package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// siteAdapter describes one retailer's price markup. The registry is data,
// not a class hierarchy: every adapter shares the same extraction flow and
// differs only in its match key and DOM regions.
type siteAdapter struct {
	name      string
	match     string // domain substring
	selectors []string
}

// defaultAdapters targets the retailers this pipeline tracks most.
var defaultAdapters = []siteAdapter{
	{
		name:  "migros",
		match: "migros",
		selectors: []string{
			".price-new", ".amount", "#sale-price",
			`[data-testid="price"]`, ".single-price-amount",
		},
	},
	{
		name:  "sokmarket",
		match: "sokmarket",
		selectors: []string{
			".CPriceBox-module_price__1OYKD", ".price__amount",
			`[class*="PriceText"]`, ".product-price",
		},
	},
	{
		name:  "a101",
		match: "a101",
		selectors: []string{
			".current-price", ".price", `[data-testid="product-price"]`,
		},
	},
	{
		name:  "carrefoursa",
		match: "carrefour",
		selectors: []string{
			".item-price", ".priceLineThrough + .price", ".js-variant-price",
		},
	},
}

// hydrationPriceKeys are the keys searched inside embedded page-state blobs.
var hydrationPriceKeys = map[string]bool{
	"price":        true,
	"currentPrice": true,
	"salePrice":    true,
	"finalPrice":   true,
	"amount":       true,
}

// adapterStrategy selects a site adapter from the registry by domain
// substring. Each adapter checks its DOM regions first, then the generic
// meta scan, then a recursive search over embedded hydration data.
type adapterStrategy struct {
	registry []siteAdapter
}

func (s adapterStrategy) Matches(pageURL string) bool {
	return s.pick(pageURL) != nil
}

func (s adapterStrategy) pick(pageURL string) *siteAdapter {
	host := strings.ToLower(pageURL)
	for i := range s.registry {
		if strings.Contains(host, s.registry[i].match) {
			return &s.registry[i]
		}
	}
	return nil
}

func (s adapterStrategy) Extract(html, pageURL string) *Result {
	adapter := s.pick(pageURL)
	if adapter == nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	if res := adapter.fromSelectors(doc); res != nil {
		return res
	}
	if res := priceFromMetaTags(doc, confidenceAdapterMeta, fmt.Sprintf("adapter_meta:%s", adapter.name)); res != nil {
		return res
	}
	return adapter.fromHydrationState(doc)
}

func (a *siteAdapter) fromSelectors(doc *goquery.Document) *Result {
	var result *Result
	for _, selector := range a.selectors {
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := strings.TrimSpace(sel.Text())
			if text == "" {
				return true
			}
			if res := regexResult(text); res != nil {
				result = &Result{
					Price:      res.Price,
					Currency:   res.Currency,
					Confidence: confidenceAdapterSelector,
					Source:     fmt.Sprintf("adapter:%s", a.name),
				}
				return false
			}
			if price, ok := parseAmount(text); ok {
				result = &Result{
					Price:      price,
					Confidence: confidenceAdapterSelector,
					Source:     fmt.Sprintf("adapter:%s", a.name),
				}
				return false
			}
			return true
		})
		if result != nil {
			return result
		}
	}
	return nil
}

// fromHydrationState digs through inline script JSON (framework hydration
// blobs such as __NEXT_DATA__ or window.__STATE__ assignments) for a
// positive number under a known price key.
func (a *siteAdapter) fromHydrationState(doc *goquery.Document) *Result {
	var result *Result
	doc.Find("script:not([src])").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		blob := extractJSONBlob(sel.Text())
		if blob == "" {
			return true
		}
		var payload any
		if err := json.Unmarshal([]byte(blob), &payload); err != nil {
			return true
		}
		if price, ok := findHydrationPrice(payload); ok {
			result = &Result{
				Price:      price,
				Confidence: confidenceAdapterState,
				Source:     fmt.Sprintf("adapter_state:%s", a.name),
			}
			return false
		}
		return true
	})
	return result
}

// extractJSONBlob pulls the widest {...} span out of a script body, covering
// both pure-JSON scripts and `window.X = {...};` assignments.
func extractJSONBlob(script string) string {
	start := strings.Index(script, "{")
	end := strings.LastIndex(script, "}")
	if start < 0 || end <= start {
		return ""
	}
	return script[start : end+1]
}

func findHydrationPrice(node any) (float64, bool) {
	switch v := node.(type) {
	case map[string]any:
		for key, value := range v {
			if hydrationPriceKeys[key] {
				if price, ok := numericValue(value); ok {
					return price, true
				}
			}
		}
		for _, value := range v {
			if price, ok := findHydrationPrice(value); ok {
				return price, true
			}
		}
	case []any:
		for _, item := range v {
			if price, ok := findHydrationPrice(item); ok {
				return price, true
			}
		}
	}
	return 0, false
}
