// Package kraken reads the Kraken ledgers CSV export. Each trade appears as
// two ledger rows sharing a reference id, a spend leg and a receive leg; only
// reference groups with both legs intact become transactions.
package kraken

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"coineda/asset"
	"coineda/import/cointracking"
	"coineda/portfolio"
)

const exchangeName = "Kraken"

const timeLayout = "2006-01-02 15:04:05"

type Adapter struct {
	resolver *asset.Resolver
}

func New(resolver *asset.Resolver) *Adapter {
	return &Adapter{resolver: resolver}
}

func (*Adapter) Name() string { return "kraken" }

// CanImport claims any csv the CoinTracking adapter does not. The adapter
// list tries CoinTracking first, so the two sniffs stay mutually exclusive.
func (*Adapter) CanImport(f portfolio.File) bool {
	if !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
		return false
	}
	first, _, _ := strings.Cut(string(f.Data), "\n")
	return !cointracking.Matches(first)
}

// leg is one ledger row of a reference group.
type leg struct {
	assetID string
	amount  float64
	fee     float64
	date    int64
}

type group struct {
	spend   *leg
	receive *leg
}

func (a *Adapter) Deserialize(f portfolio.File) portfolio.Result {
	var res portfolio.Result

	if len(strings.TrimSpace(string(f.Data))) == 0 {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.EmptyFile, Filename: f.Name, Source: "kraken",
		})
		return res
	}
	if !utf8.Valid(f.Data) {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.UnexpectedContent, Filename: f.Name, Source: "kraken",
		})
		return res
	}

	reader := csv.NewReader(strings.NewReader(string(f.Data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.BrokenFile, Filename: f.Name, Source: "kraken", Err: err,
		})
		return res
	}

	// first pass: collect spend and receive legs per reference id
	groups := map[string]*group{}
	var order []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, portfolio.ImportError{
				Kind: portfolio.BrokenFile, Filename: f.Name, Source: "kraken", Err: err,
			})
			continue
		}

		lm := mapRow(header, row)
		typ := lm["type"]
		if typ != "spend" && typ != "receive" {
			continue
		}

		l, err := a.leg(lm)
		if err != nil {
			kind := portfolio.BrokenFile
			if errors.Is(err, portfolio.ErrUnknownToken) {
				kind = portfolio.UnknownToken
			}
			res.Errors = append(res.Errors, portfolio.ImportError{
				Kind: kind, Filename: f.Name, Source: "kraken", Err: err,
			})
			continue
		}

		ref := lm["refid"]
		g, ok := groups[ref]
		if !ok {
			g = &group{}
			groups[ref] = g
			order = append(order, ref)
		}
		if typ == "spend" {
			g.spend = l
		} else {
			g.receive = l
		}
	}

	// second pass: only complete groups become transactions
	for _, ref := range order {
		g := groups[ref]
		if g.spend == nil || g.receive == nil {
			continue
		}
		res.Transactions = append(res.Transactions, a.transaction(g))
	}

	return res
}

func (a *Adapter) leg(lm map[string]string) (*leg, error) {
	id, err := a.resolveLedgerCode(lm["asset"])
	if err != nil {
		return nil, err
	}

	amount, err := strconv.ParseFloat(lm["amount"], 64)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", lm["amount"], err)
	}
	var fee float64
	if lm["fee"] != "" {
		if fee, err = strconv.ParseFloat(lm["fee"], 64); err != nil {
			return nil, fmt.Errorf("fee %q: %w", lm["fee"], err)
		}
	}

	when, err := time.Parse(timeLayout, lm["time"])
	if err != nil {
		return nil, fmt.Errorf("time %q: %w", lm["time"], err)
	}

	if amount < 0 {
		amount = -amount
	}
	return &leg{assetID: id, amount: amount, fee: fee, date: when.UTC().UnixMilli()}, nil
}

func (a *Adapter) transaction(g *group) portfolio.Transaction {
	tx := portfolio.Transaction{
		Exchange:     exchangeName,
		FromValue:    g.spend.amount,
		FromCurrency: g.spend.assetID,
		ToValue:      g.receive.amount,
		ToCurrency:   g.receive.assetID,
		Date:         g.spend.date,
	}

	if g.spend.fee > 0 {
		tx.FeeValue = g.spend.fee
		tx.FeeCurrency = g.spend.assetID
	} else if g.receive.fee > 0 {
		tx.FeeValue = g.receive.fee
		tx.FeeCurrency = g.receive.assetID
	}

	fromFiat := a.resolver.IsFiat(tx.FromCurrency)
	toFiat := a.resolver.IsFiat(tx.ToCurrency)
	switch {
	case !fromFiat && toFiat:
		tx.Type = portfolio.Sell
	case !fromFiat && !toFiat:
		tx.Type = portfolio.Swap
	default:
		tx.Type = portfolio.Buy
	}
	return tx
}

// resolveLedgerCode maps a Kraken ledger asset code onto a canonical asset
// id. Two legacy tickers are renamed outright; any other four character code
// with the X or Z class prefix loses the prefix before the symbol lookup.
// See https://support.kraken.com/hc/en-us/articles/360001185506
func (a *Adapter) resolveLedgerCode(code string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(code))
	switch symbol {
	case "XXBT", "XBT":
		symbol = "BTC"
	case "XXDG", "XDG":
		symbol = "DOGE"
	default:
		if len(symbol) == 4 && (symbol[0] == 'X' || symbol[0] == 'Z') {
			symbol = symbol[1:]
		}
	}
	return a.resolver.IDBySymbol(symbol)
}

func mapRow(header, row []string) map[string]string {
	lm := make(map[string]string, len(header))
	for pos, field := range header {
		if len(row) <= pos {
			continue
		}
		lm[field] = row[pos]
	}
	return lm
}
