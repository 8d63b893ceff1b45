package binance

import (
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"coineda/asset"
	"coineda/cache"
	"coineda/portfolio"
)

func workbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

var header = []interface{}{"Date(UTC)", "Pair", "Side", "Price", "Executed", "Amount", "Fee"}

func newAdapter() (*Adapter, *cache.Memory) {
	c := cache.NewMemory()
	return New(asset.NewResolver(asset.Defaults()), c), c
}

func TestCanImport(t *testing.T) {
	a, _ := newAdapter()
	if !a.CanImport(portfolio.File{Name: "Export Trade History.xlsx"}) {
		t.Error("expected to claim an xlsx file")
	}
	if a.CanImport(portfolio.File{Name: "trades.csv"}) {
		t.Error("claimed a csv file")
	}
}

func TestDeserialize(t *testing.T) {
	data := workbook(t, [][]interface{}{
		header,
		{"2021-03-01 10:00:00", "BTCEUR", "BUY", "40000", "0.5BTC", "20000EUR", "10EUR"},
		// dateless rows are fee annotations accumulating into the trade above
		{"", "", "", "", "", "", "5EUR"},
		{"2021-03-02 10:00:00", "ETHBTC", "SELL", "0.05", "2ETH", "0.1BTC", "0.0001BTC"},
	})

	a, c := newAdapter()
	res := a.Deserialize(portfolio.File{Name: "trades.xlsx", Data: data})

	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	want := []portfolio.Transaction{
		{
			Type: portfolio.Buy, Exchange: "Binance",
			FromValue: 20000, FromCurrency: "euro",
			ToValue: 0.5, ToCurrency: "bitcoin",
			FeeValue: 15, FeeCurrency: "euro",
			Date: time.Date(2021, time.March, 1, 10, 0, 0, 0, time.UTC).UnixMilli(),
		},
		{
			Type: portfolio.Swap, Exchange: "Binance",
			FromValue: 2, FromCurrency: "ethereum",
			ToValue: 0.1, ToCurrency: "bitcoin",
			FeeValue: 0.0001, FeeCurrency: "bitcoin",
			Date: time.Date(2021, time.March, 2, 10, 0, 0, 0, time.UTC).UnixMilli(),
		},
	}
	if !reflect.DeepEqual(res.Transactions, want) {
		t.Errorf("expected %v, got %v", want, res.Transactions)
	}

	// pair resolution is cached for later files
	if got, ok := c.Get("pair-BTCEUR"); !ok || got != "BTC|EUR" {
		t.Errorf("expected cached pair mapping, got %q (%v)", got, ok)
	}
}

func TestDeserializeSkipsFeesOfRejectedTrades(t *testing.T) {
	data := workbook(t, [][]interface{}{
		header,
		{"2021-03-01 10:00:00", "WATEUR", "BUY", "1", "5WAT", "5EUR", ""},
		// this fee belongs to the rejected trade and must not attach anywhere
		{"", "", "", "", "", "", "0.001BNB"},
		{"2021-03-02 10:00:00", "BTCEUR", "BUY", "40000", "0.1BTC", "4000EUR", ""},
	})

	a, _ := newAdapter()
	res := a.Deserialize(portfolio.File{Name: "trades.xlsx", Data: data})

	if len(res.Errors) != 1 || res.Errors[0].Kind != portfolio.UnknownToken {
		t.Fatalf("expected a single UnknownToken error, got %v", res.Errors)
	}
	if len(res.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(res.Transactions))
	}
	if got := res.Transactions[0]; got.FeeValue != 0 || got.FeeCurrency != "" {
		t.Errorf("stray fee attached to the next trade: %v", got)
	}
}

func TestDeserializeBnbFee(t *testing.T) {
	data := workbook(t, [][]interface{}{
		header,
		{"2021-03-01 10:00:00", "BTCEUR", "BUY", "40000", "0.5BTC", "20000EUR", "0.02BNB"},
	})

	a, _ := newAdapter()
	res := a.Deserialize(portfolio.File{Name: "trades.xlsx", Data: data})
	if len(res.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(res.Transactions))
	}
	got := res.Transactions[0]
	if got.FeeValue != 0.02 || got.FeeCurrency != "binancecoin" {
		t.Errorf("expected the exchange token fee, got %v %q", got.FeeValue, got.FeeCurrency)
	}
}

func TestDeserializeNotASpreadsheet(t *testing.T) {
	a, _ := newAdapter()
	res := a.Deserialize(portfolio.File{Name: "trades.xlsx", Data: []byte("plain text")})
	if len(res.Errors) != 1 || res.Errors[0].Kind != portfolio.UnexpectedContent {
		t.Errorf("expected a single UnexpectedContent error, got %v", res.Errors)
	}
}

func TestSplitAmount(t *testing.T) {
	a, _ := newAdapter()

	tests := []struct {
		in         string
		candidates []string
		wantValue  float64
		wantSym    string
		wantErr    bool
	}{
		{"0.00325BTC", []string{"BTC"}, 0.00325, "BTC", false},
		{"1,250.5EUR", []string{"BTC", "EUR"}, 1250.5, "EUR", false},
		{"5XRP", []string{"BTC"}, 0, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			v, sym, err := a.splitAmount(tc.in, tc.candidates...)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if v != tc.wantValue || sym != tc.wantSym {
				t.Errorf("expected %v %q, got %v %q", tc.wantValue, tc.wantSym, v, sym)
			}
		})
	}
}
