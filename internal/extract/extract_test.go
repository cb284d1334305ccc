package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const structuredHTML = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "Ayran 1L",
  "offers": {"@type": "Offer", "price": "42.50", "priceCurrency": "TRY"}
}
</script>
</head><body><span class="price">₺49,90</span></body></html>`

func TestChainStructuredOffer(t *testing.T) {
	t.Parallel()

	res := NewChain().Extract(structuredHTML, "https://example.com/urun/ayran")
	require.NotNil(t, res)
	assert.Equal(t, 42.50, res.Price)
	assert.Equal(t, "TRY", res.Currency)
	assert.Equal(t, SourceStructured, res.Source)
	assert.Equal(t, 0.75, res.Confidence)
}

func TestChainStructuredBeatsMetaTags(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<script type="application/ld+json">{"@type":"Product","offers":{"price":10.5,"priceCurrency":"TRY"}}</script>
<meta property="product:price:amount" content="99.90">
</head><body></body></html>`

	res := NewChain().Extract(html, "https://example.com/p")
	require.NotNil(t, res)
	assert.Equal(t, 10.5, res.Price)
	assert.Equal(t, SourceStructured, res.Source)
}

func TestChainGraphAndLowPrice(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<script type="application/ld+json">
{"@graph":[{"@type":"WebSite"},{"@type":"Product","offers":{"@type":"AggregateOffer","lowPrice":"1.234,56","priceCurrency":"try"}}]}
</script>
</head><body></body></html>`

	res := NewChain().Extract(html, "https://example.com/p")
	require.NotNil(t, res)
	assert.Equal(t, 1234.56, res.Price)
	assert.Equal(t, "TRY", res.Currency)
}

func TestChainAdapterSelector(t *testing.T) {
	t.Parallel()

	html := `<html><body><div class="product"><span class="price-new">₺149,90</span></div></body></html>`

	res := NewChain().Extract(html, "https://migros.com.tr/urun/zeytin")
	require.NotNil(t, res)
	assert.Equal(t, 149.90, res.Price)
	assert.Equal(t, "TRY", res.Currency)
	assert.Equal(t, "adapter:migros", res.Source)
	assert.Equal(t, 0.80, res.Confidence)
}

func TestChainAdapterMetaFallback(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<meta property="og:price:amount" content="89.90">
<meta property="og:price:currency" content="TRY">
</head><body><div class="unrelated">no price regions here</div></body></html>`

	res := NewChain().Extract(html, "https://www.a101.com.tr/urun/kahve")
	require.NotNil(t, res)
	assert.Equal(t, 89.90, res.Price)
	assert.Equal(t, "TRY", res.Currency)
	assert.Equal(t, "adapter_meta:a101", res.Source)
	assert.Equal(t, 0.65, res.Confidence)
}

func TestChainAdapterHydrationState(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<script>window.__STATE__ = {"product":{"id":"p1","pricing":{"currentPrice":89.99,"listPrice":119.99}}};</script>
</body></html>`

	res := NewChain().Extract(html, "https://sokmarket.com.tr/p/1")
	require.NotNil(t, res)
	assert.Equal(t, 89.99, res.Price)
	assert.Equal(t, "adapter_state:sokmarket", res.Source)
	assert.Equal(t, 0.55, res.Confidence)
}

func TestChainMetaTags(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<meta property="product:price:amount" content="59.90">
<meta property="product:price:currency" content="TRY">
</head><body></body></html>`

	res := NewChain().Extract(html, "https://example.com/p")
	require.NotNil(t, res)
	assert.Equal(t, 59.90, res.Price)
	assert.Equal(t, "TRY", res.Currency)
	assert.Equal(t, SourceMetaTags, res.Source)
	assert.Equal(t, 0.65, res.Confidence)
}

func TestChainRegexFallback(t *testing.T) {
	t.Parallel()

	html := `<html><body><div>Kampanyali fiyat: <b>₺19,90</b></div></body></html>`

	res := NewChain().Extract(html, "https://example.com/p")
	require.NotNil(t, res)
	assert.Equal(t, 19.90, res.Price)
	assert.Equal(t, "TRY", res.Currency)
	assert.Equal(t, SourceRegex, res.Source)
	assert.Equal(t, 0.35, res.Confidence)
}

func TestChainRegexMarkerAfterNumber(t *testing.T) {
	t.Parallel()

	res := NewChain().Extract(`<p>Fiyat 24,50 TL</p>`, "https://example.com/p")
	require.NotNil(t, res)
	assert.Equal(t, 24.50, res.Price)
	assert.Equal(t, "TRY", res.Currency)
}

func TestChainNoPrice(t *testing.T) {
	t.Parallel()

	res := NewChain().Extract(`<html><body><p>Out of stock</p></body></html>`, "https://example.com/p")
	assert.Nil(t, res)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"42.50", 42.50, true},
		{"19,90", 19.90, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"1.234", 1234, true},
		{"12,345", 12345, true},
		{"1.234.567", 1234567, true},
		{"7", 7, true},
		{"7.5", 7.5, true},
		{" 149,90 ", 149.90, true},
		{"0", 0, false},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := parseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestCurrencyFromMarker(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TRY", currencyFromMarker("₺"))
	assert.Equal(t, "TRY", currencyFromMarker("tl"))
	assert.Equal(t, "USD", currencyFromMarker("$"))
	assert.Equal(t, "EUR", currencyFromMarker("€"))
	assert.Equal(t, "GBP", currencyFromMarker("£"))
	assert.Equal(t, "", currencyFromMarker("R$"))
}
