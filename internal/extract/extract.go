// Package extract turns product-page HTML into a priced result using a fixed
// priority chain of strategies. Extraction is pure: it never fetches, so the
// same chain serves both the static and the rendered HTML paths.
package extract

// Source tags identifying which strategy produced a result.
const (
	SourceStructured = "structured_offer"
	SourceMetaTags   = "meta_tags"
	SourceRegex      = "regex_fallback"
)

// Strategy confidence levels. Adapters report a range depending on which
// sub-path matched.
const (
	confidenceStructured      = 0.75
	confidenceAdapterSelector = 0.80
	confidenceAdapterMeta     = 0.65
	confidenceAdapterState    = 0.55
	confidenceMetaTags        = 0.65
	confidenceRegex           = 0.35
)

// Result is a transient extracted price observation.
type Result struct {
	Price      float64
	Currency   string
	Confidence float64
	Source     string
}

// Strategy inspects HTML and produces a result or nil.
type Strategy interface {
	// Matches gates the strategy on the page URL; most strategies match
	// everything, site adapters match their registry entry.
	Matches(pageURL string) bool
	// Extract returns nil when the strategy finds no positive price.
	Extract(html, pageURL string) *Result
}

// Chain runs strategies in fixed priority order and returns the first hit.
// Results are never merged across strategies.
type Chain struct {
	strategies []Strategy
}

// NewChain builds the default chain: structured offer data, site adapters,
// generic meta tags, then the regex fallback.
func NewChain() *Chain {
	return &Chain{
		strategies: []Strategy{
			structuredStrategy{},
			adapterStrategy{registry: defaultAdapters},
			metaStrategy{},
			regexStrategy{},
		},
	}
}

// Extract returns the first non-nil strategy result, or nil when the page
// yields nothing.
func (c *Chain) Extract(html, pageURL string) *Result {
	for _, s := range c.strategies {
		if !s.Matches(pageURL) {
			continue
		}
		if res := s.Extract(html, pageURL); res != nil && res.Price > 0 {
			return res
		}
	}
	return nil
}
