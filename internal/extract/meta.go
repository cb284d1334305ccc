package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// priceMetaSelectors cover the meta tags e-commerce platforms commonly emit.
var priceMetaSelectors = []string{
	`meta[property="product:price:amount"]`,
	`meta[property="og:price:amount"]`,
	`meta[property="product:sale_price:amount"]`,
	`meta[itemprop="price"]`,
	`meta[name="price"]`,
	`meta[name="twitter:data1"]`,
}

var currencyMetaSelectors = []string{
	`meta[property="product:price:currency"]`,
	`meta[property="og:price:currency"]`,
	`meta[itemprop="priceCurrency"]`,
	`meta[name="currency"]`,
}

// metaStrategy scans generic e-commerce price meta tags.
type metaStrategy struct{}

func (metaStrategy) Matches(string) bool { return true }

func (metaStrategy) Extract(html, _ string) *Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return priceFromMetaTags(doc, confidenceMetaTags, SourceMetaTags)
}

// priceFromMetaTags is shared between the generic meta strategy and the
// adapter meta fallback, which report different confidence and source tags.
func priceFromMetaTags(doc *goquery.Document, confidence float64, source string) *Result {
	for _, selector := range priceMetaSelectors {
		content, exists := doc.Find(selector).First().Attr("content")
		if !exists {
			continue
		}
		price, ok := parseAmount(strings.TrimLeft(content, "₺$€£ "))
		if !ok {
			continue
		}
		return &Result{
			Price:      price,
			Currency:   metaCurrency(doc, content),
			Confidence: confidence,
			Source:     source,
		}
	}
	return nil
}

func metaCurrency(doc *goquery.Document, priceContent string) string {
	for _, selector := range currencyMetaSelectors {
		if content, exists := doc.Find(selector).First().Attr("content"); exists {
			if code := normalizeCurrency(content); code != "" {
				return code
			}
		}
	}
	// Some platforms inline the marker in the price content itself.
	for _, marker := range []string{"₺", "$", "€", "£", "TRY", "TL", "USD", "EUR", "GBP"} {
		if strings.Contains(priceContent, marker) {
			return currencyFromMarker(marker)
		}
	}
	return ""
}
