package importer

import (
	"encoding/json"

	"coineda/portfolio"
)

// Signatures compare candidates against persisted records structurally, not
// by a numeric fold: summing field values would collide for records like
// (from=1,to=2) vs (from=2,to=1). Identity and composition bookkeeping are
// excluded so a swap candidate matches the parent its earlier import was
// decomposed into.

func transactionSignature(t portfolio.Transaction) string {
	raw, _ := json.Marshal(struct {
		Type         portfolio.Type
		Exchange     string
		FromValue    float64
		FromCurrency string
		ToValue      float64
		ToCurrency   string
		FeeValue     float64
		FeeCurrency  string
		Date         int64
		Account      int64
	}{
		t.Type, t.Exchange,
		t.FromValue, t.FromCurrency,
		t.ToValue, t.ToCurrency,
		t.FeeValue, t.FeeCurrency,
		t.Date, t.Account,
	})
	return string(raw)
}

func transferSignature(t portfolio.Transfer) string {
	raw, _ := json.Marshal(struct {
		FromExchange string
		ToExchange   string
		Value        float64
		Currency     string
		FeeValue     float64
		FeeCurrency  string
		Date         int64
		Account      int64
	}{
		t.FromExchange, t.ToExchange,
		t.Value, t.Currency,
		t.FeeValue, t.FeeCurrency,
		t.Date, t.Account,
	})
	return string(raw)
}
