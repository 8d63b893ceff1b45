package portfolio

import "time"

// BaseCurrency is the canonical asset id all fiat amounts are denominated in.
// Multi-currency bases are not supported.
const BaseCurrency = "euro"

// Type classifies a transaction by what happened to the holdings.
type Type string

const (
	Buy     Type = "buy"
	Sell    Type = "sell"
	Send    Type = "send"
	Receive Type = "receive"
	Rewards Type = "rewards"
	Swap    Type = "swap"
)

// Transaction is the canonical unit of portfolio activity.
// A crypto-to-crypto swap is never stored as a single record: it is split
// into a sell child, a buy child and a composed parent referencing both.
type Transaction struct {
	ID           int64   `json:"id"`
	Type         Type    `json:"type"`
	Exchange     string  `json:"exchange"`
	FromValue    float64 `json:"fromValue"`
	FromCurrency string  `json:"fromCurrency"`
	ToValue      float64 `json:"toValue"`
	ToCurrency   string  `json:"toCurrency"`
	FeeValue     float64 `json:"feeValue"`
	FeeCurrency  string  `json:"feeCurrency"`
	// Date is epoch milliseconds UTC
	Date    int64 `json:"date"`
	Account int64 `json:"account"`
	// IsComposed marks the synthetic parent of a swap
	IsComposed bool `json:"isComposed"`
	// Parent is the composed parent id on a swap child, zero otherwise
	Parent int64 `json:"parent,omitempty"`
	// ComposedKeys holds the comma-joined child ids, set only on a parent
	ComposedKeys string `json:"composedKeys,omitempty"`
}

func (t *Transaction) Time() time.Time {
	return time.UnixMilli(t.Date).UTC()
}

// Transfer moves one asset between two venues of the same account.
// It has no gain implication.
type Transfer struct {
	ID           int64   `json:"id"`
	FromExchange string  `json:"fromExchange"`
	ToExchange   string  `json:"toExchange"`
	Value        float64 `json:"value"`
	Currency     string  `json:"currency"`
	FeeValue     float64 `json:"feeValue"`
	FeeCurrency  string  `json:"feeCurrency"`
	Date         int64   `json:"date"`
	Account      int64   `json:"account"`
}

func (t *Transfer) Time() time.Time {
	return time.UnixMilli(t.Date).UTC()
}

// Asset is the canonical identity of a fiat or crypto unit.
// ID is the lower-case exchange-agnostic key, Symbol the display ticker.
type Asset struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Fiat   bool   `json:"isFiat"`
}

// Exchange is a named venue or wallet. Created lazily by the importer the
// first time a transaction references an unseen name.
type Exchange struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Account groups transactions and transfers into one portfolio.
type Account struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
