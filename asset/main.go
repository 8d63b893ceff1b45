package asset

import (
	"fmt"
	"sort"
	"strings"

	"coineda/portfolio"
)

// Defaults returns the seeded asset table. IDs follow the price provider's
// canonical naming so they can be used in oracle lookups directly.
func Defaults() []portfolio.Asset {
	return []portfolio.Asset{
		{ID: "euro", Symbol: "EUR", Fiat: true},
		{ID: "us-dollar", Symbol: "USD", Fiat: true},
		{ID: "british-pound", Symbol: "GBP", Fiat: true},
		{ID: "swiss-franc", Symbol: "CHF", Fiat: true},
		{ID: "bitcoin", Symbol: "BTC"},
		{ID: "ethereum", Symbol: "ETH"},
		{ID: "litecoin", Symbol: "LTC"},
		{ID: "bitcoin-cash", Symbol: "BCH"},
		{ID: "cardano", Symbol: "ADA"},
		{ID: "polkadot", Symbol: "DOT"},
		{ID: "binancecoin", Symbol: "BNB"},
		{ID: "ripple", Symbol: "XRP"},
		{ID: "stellar", Symbol: "XLM"},
		{ID: "monero", Symbol: "XMR"},
		{ID: "zcash", Symbol: "ZEC"},
		{ID: "dash", Symbol: "DASH"},
		{ID: "eos", Symbol: "EOS"},
		{ID: "dogecoin", Symbol: "DOGE"},
		{ID: "solana", Symbol: "SOL"},
		{ID: "chainlink", Symbol: "LINK"},
		{ID: "uniswap", Symbol: "UNI"},
		{ID: "tether", Symbol: "USDT"},
		{ID: "iota", Symbol: "MIOTA"},
	}
}

// Resolver maps ticker symbols and canonical ids to assets and classifies
// them as fiat or crypto.
type Resolver struct {
	bySymbol map[string]portfolio.Asset
	byID     map[string]portfolio.Asset
}

// NewResolver builds a resolver over the given asset table.
func NewResolver(assets []portfolio.Asset) *Resolver {
	r := &Resolver{
		bySymbol: make(map[string]portfolio.Asset, len(assets)),
		byID:     make(map[string]portfolio.Asset, len(assets)),
	}
	for _, a := range assets {
		r.bySymbol[strings.ToUpper(a.Symbol)] = a
		r.byID[a.ID] = a
	}
	return r
}

// IDBySymbol resolves a ticker symbol to its canonical asset id.
// The lookup is case-insensitive and trims surrounding whitespace.
func (r *Resolver) IDBySymbol(symbol string) (string, error) {
	a, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return "", fmt.Errorf("%q: %w", symbol, portfolio.ErrUnknownToken)
	}
	return a.ID, nil
}

// IsFiat reports whether the canonical asset id names a fiat unit.
// A missing asset is treated as crypto, so an unmapped id never slips a
// disposal past gain tracking.
func (r *Resolver) IsFiat(id string) bool {
	a, ok := r.byID[id]
	if !ok {
		return false
	}
	return a.Fiat
}

// SymbolFor is the inverse lookup of IDBySymbol.
func (r *Resolver) SymbolFor(id string) string {
	return r.byID[id].Symbol
}

// Symbols lists all known tickers, longest first. Pair resolution probes
// these as prefixes, so longer tickers must win over their own prefixes.
func (r *Resolver) Symbols() []string {
	list := make([]string, 0, len(r.bySymbol))
	for s := range r.bySymbol {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if len(list[i]) != len(list[j]) {
			return len(list[i]) > len(list[j])
		}
		return list[i] < list[j]
	})
	return list
}
