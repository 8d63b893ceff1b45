package tax

import (
	"context"
	"testing"
	"time"

	"coineda/portfolio"
	"coineda/storage"
)

func date(year int, month time.Month, dayOfMonth int) int64 {
	return time.Date(year, month, dayOfMonth, 12, 0, 0, 0, time.UTC).UnixMilli()
}

// tradeFixture stores one buy and one sell of a single bitcoin and prices
// both moments, so the realized gain is exactly sellPrice minus buyPrice.
func tradeFixture(t *testing.T, buyAt, sellAt int64, buyPrice, sellPrice float64) *Germany {
	t.Helper()
	store := storage.NewMemory()
	addTx(t, store, portfolio.Transaction{
		Type: portfolio.Buy, FromValue: buyPrice, FromCurrency: "euro",
		ToValue: 1, ToCurrency: "bitcoin", Date: buyAt,
	})
	addTx(t, store, portfolio.Transaction{
		Type: portfolio.Sell, FromValue: 1, FromCurrency: "bitcoin",
		ToValue: sellPrice, ToCurrency: "euro", Date: sellAt,
	})

	prices := &fakePrices{
		at: map[string]float64{
			priceKey("bitcoin", buyAt):  buyPrice,
			priceKey("bitcoin", sellAt): sellPrice,
		},
		current: map[string]float64{"bitcoin": sellPrice},
	}
	return &Germany{Engine: newEngine(store, prices, sellAt)}
}

func TestGermanyAllowance(t *testing.T) {
	buyAt := date(2021, time.March, 1)
	sellAt := date(2021, time.June, 1)

	tests := []struct {
		name      string
		sellPrice float64
		wantGain  float64
		wantBelow bool
		wantLoss  bool
		wantTax   float64
	}{
		{"above allowance", 800, 700, false, false, 350},
		// the allowance is a limit, reaching it exactly means taxation
		{"exactly at allowance", 700, 600, false, false, 300},
		{"below allowance", 699, 599, true, false, 0},
		{"loss", 60, -40, true, true, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := tradeFixture(t, buyAt, sellAt, 100, tc.sellPrice)
			res, err := g.Calculate(context.Background(), 1, 2021)
			if err != nil {
				t.Fatal(err)
			}
			if res.TotalGain != tc.wantGain {
				t.Errorf("expected gain %v, got %v", tc.wantGain, res.TotalGain)
			}
			if res.IsBelowLimit != tc.wantBelow {
				t.Errorf("expected IsBelowLimit %v, got %v", tc.wantBelow, res.IsBelowLimit)
			}
			if res.HasLoss != tc.wantLoss {
				t.Errorf("expected HasLoss %v, got %v", tc.wantLoss, res.HasLoss)
			}
			if res.Tax != tc.wantTax {
				t.Errorf("expected tax %v, got %v", tc.wantTax, res.Tax)
			}
		})
	}
}

func TestGermanyHoldingPeriodExemption(t *testing.T) {
	// 425 days between purchase and disposal
	buyAt := date(2020, time.January, 1)
	sellAt := date(2021, time.March, 1)

	g := tradeFixture(t, buyAt, sellAt, 100, 1100)
	res, err := g.Calculate(context.Background(), 1, 2021)
	if err != nil {
		t.Fatal(err)
	}

	// the entry stays visible in the ledger but is exempt from the total
	if len(res.RealizedGains["bitcoin"]) != 1 {
		t.Fatalf("expected the exempt disposal in the ledger, got %+v", res.RealizedGains)
	}
	if res.TotalGain != 0 {
		t.Errorf("expected an exempt disposal to contribute nothing, got %v", res.TotalGain)
	}
	if !res.IsBelowLimit || res.Tax != 0 {
		t.Errorf("expected a tax free year, got %+v", res)
	}
}

func TestGermanyYearFilter(t *testing.T) {
	// disposal in 2020, report requested for 2021
	buyAt := date(2020, time.February, 1)
	sellAt := date(2020, time.August, 1)

	g := tradeFixture(t, buyAt, sellAt, 100, 900)
	res, err := g.Calculate(context.Background(), 1, 2021)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.RealizedGains) != 0 || res.TotalGain != 0 {
		t.Errorf("a 2020 disposal leaked into the 2021 report: %+v", res)
	}
}

func TestGermanyNewYearsEveDisposal(t *testing.T) {
	buyAt := date(2021, time.June, 1)
	sellAt := time.Date(2021, time.December, 31, 23, 59, 0, 0, time.UTC).UnixMilli()

	g := tradeFixture(t, buyAt, sellAt, 100, 800)
	res, err := g.Calculate(context.Background(), 1, 2021)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalGain != 700 {
		t.Errorf("a Dec 31 disposal belongs to its own year, got %+v", res)
	}
}

func TestGermanyUnrealizedYearFilter(t *testing.T) {
	store := storage.NewMemory()
	addTx(t, store, portfolio.Transaction{
		Type: portfolio.Buy, FromValue: 100, FromCurrency: "euro",
		ToValue: 1, ToCurrency: "bitcoin", Date: date(2021, time.May, 1),
	})
	addTx(t, store, portfolio.Transaction{
		Type: portfolio.Buy, FromValue: 100, FromCurrency: "euro",
		ToValue: 1, ToCurrency: "bitcoin", Date: date(2022, time.May, 1),
	})

	prices := &fakePrices{
		at:      map[string]float64{},
		current: map[string]float64{"bitcoin": 500},
	}
	g := &Germany{Engine: newEngine(store, prices, date(2022, time.June, 1))}

	res, err := g.Calculate(context.Background(), 1, 2021)
	if err != nil {
		t.Fatal(err)
	}

	// only the position acquired by the end of the report year shows up
	entries := res.UnrealizedGains["bitcoin"]
	if len(entries) != 1 || entries[0].Date != date(2021, time.May, 1) {
		t.Errorf("expected only the 2021 acquisition, got %+v", entries)
	}
}
