// Package binance reads the Binance trade history spreadsheet export. A row
// with a date starts a trade; rows beneath it without a date are fee
// annotations that accumulate into the most recent trade.
package binance

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"coineda/asset"
	"coineda/cache"
	"coineda/portfolio"
)

const exchangeName = "Binance"

// feeToken is the exchange native token fees are often charged in even when
// it is on neither side of the trade
const feeToken = "BNB"

// pairTTL refreshes the ticker to base/quote mapping after a year
const pairTTL = 365 * 24 * time.Hour

type Adapter struct {
	resolver *asset.Resolver
	cache    cache.Cache
}

func New(resolver *asset.Resolver, c cache.Cache) *Adapter {
	return &Adapter{resolver: resolver, cache: c}
}

func (*Adapter) Name() string { return "binance" }

func (*Adapter) CanImport(f portfolio.File) bool {
	return strings.HasSuffix(strings.ToLower(f.Name), ".xlsx")
}

func (a *Adapter) Deserialize(f portfolio.File) portfolio.Result {
	var res portfolio.Result

	if len(f.Data) == 0 {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.EmptyFile, Filename: f.Name, Source: "binance",
		})
		return res
	}

	book, err := excelize.OpenReader(bytes.NewReader(f.Data))
	if err != nil {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.UnexpectedContent, Filename: f.Name, Source: "binance", Err: err,
		})
		return res
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.EmptyFile, Filename: f.Name, Source: "binance",
		})
		return res
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil || len(rows) < 2 {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.EmptyFile, Filename: f.Name, Source: "binance", Err: err,
		})
		return res
	}

	header := rows[0]
	// skipFees drops fee annotations trailing a rejected trade row
	skipFees := true
	var last *portfolio.Transaction
	var baseSym, quoteSym string

	for i := 1; i < len(rows); i++ {
		lm := mapRow(header, rows[i])

		if lm["Date(UTC)"] == "" {
			if skipFees || last == nil {
				continue
			}
			feeValue, feeSym, err := a.splitAmount(lm["Fee"], baseSym, quoteSym, feeToken)
			if err != nil {
				continue
			}
			feeID, err := a.resolver.IDBySymbol(feeSym)
			if err != nil {
				continue
			}
			// several fee rows may belong to one trade
			last.FeeValue += feeValue
			last.FeeCurrency = feeID
			continue
		}

		tx, base, quote, err := a.trade(lm)
		if err != nil {
			res.Errors = append(res.Errors, portfolio.ImportError{
				Kind: importErrorKind(err), Filename: f.Name, Source: "binance", Err: err,
			})
			skipFees = true
			last = nil
			continue
		}
		res.Transactions = append(res.Transactions, tx)
		last = &res.Transactions[len(res.Transactions)-1]
		baseSym, quoteSym = base, quote
		skipFees = false
	}

	return res
}

func importErrorKind(err error) portfolio.ErrorKind {
	if errors.Is(err, portfolio.ErrUnknownToken) {
		return portfolio.UnknownToken
	}
	return portfolio.BrokenFile
}

func (a *Adapter) trade(lm map[string]string) (portfolio.Transaction, string, string, error) {
	var tx portfolio.Transaction

	baseSym, quoteSym, err := a.resolvePair(lm["Pair"])
	if err != nil {
		return tx, "", "", err
	}
	baseID, err := a.resolver.IDBySymbol(baseSym)
	if err != nil {
		return tx, "", "", err
	}
	quoteID, err := a.resolver.IDBySymbol(quoteSym)
	if err != nil {
		return tx, "", "", err
	}

	when, err := time.Parse("2006-01-02 15:04:05", lm["Date(UTC)"])
	if err != nil {
		return tx, "", "", fmt.Errorf("date %q: %w", lm["Date(UTC)"], err)
	}

	executed, _, err := a.splitAmount(lm["Executed"], baseSym)
	if err != nil {
		return tx, "", "", fmt.Errorf("executed: %w", err)
	}
	amount, _, err := a.splitAmount(lm["Amount"], quoteSym)
	if err != nil {
		return tx, "", "", fmt.Errorf("amount: %w", err)
	}

	tx = portfolio.Transaction{
		Exchange: exchangeName,
		Date:     when.UnixMilli(),
	}
	switch strings.ToUpper(lm["Side"]) {
	case "BUY":
		tx.FromValue, tx.FromCurrency = amount, quoteID
		tx.ToValue, tx.ToCurrency = executed, baseID
	case "SELL":
		tx.FromValue, tx.FromCurrency = executed, baseID
		tx.ToValue, tx.ToCurrency = amount, quoteID
	default:
		return tx, "", "", fmt.Errorf("unsupported side %q", lm["Side"])
	}
	tx.Type = classify(a.resolver.IsFiat(tx.FromCurrency), a.resolver.IsFiat(tx.ToCurrency))

	if fee := lm["Fee"]; fee != "" {
		feeValue, feeSym, err := a.splitAmount(fee, baseSym, quoteSym, feeToken)
		if err == nil {
			if feeID, rerr := a.resolver.IDBySymbol(feeSym); rerr == nil {
				tx.FeeValue = feeValue
				tx.FeeCurrency = feeID
			}
		}
	}

	return tx, baseSym, quoteSym, nil
}

func classify(fromFiat, toFiat bool) portfolio.Type {
	switch {
	case fromFiat && !toFiat:
		return portfolio.Buy
	case !fromFiat && toFiat:
		return portfolio.Sell
	case !fromFiat && !toFiat:
		return portfolio.Swap
	default:
		return portfolio.Buy
	}
}

// resolvePair splits a ticker pair like ETHBTC into its base and quote
// symbols by probing the known tickers, longest first. Results are cached
// for a year.
func (a *Adapter) resolvePair(pair string) (string, string, error) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if cached, ok := a.cache.Get("pair-" + pair); ok {
		base, quote, ok := strings.Cut(cached, "|")
		if ok {
			return base, quote, nil
		}
	}

	symbols := a.resolver.Symbols()
	for _, base := range symbols {
		rest, ok := strings.CutPrefix(pair, base)
		if !ok {
			continue
		}
		for _, quote := range symbols {
			if rest == quote {
				a.cache.Set("pair-"+pair, base+"|"+quote, pairTTL)
				return base, quote, nil
			}
		}
	}
	return "", "", fmt.Errorf("pair %q: %w", pair, portfolio.ErrUnknownToken)
}

// splitAmount parses a value like "0.00325BTC" by stripping one of the
// candidate ticker suffixes.
func (a *Adapter) splitAmount(s string, candidates ...string) (float64, string, error) {
	s = strings.TrimSpace(s)
	for _, sym := range candidates {
		num, ok := strings.CutSuffix(s, sym)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
		if err != nil {
			return 0, "", fmt.Errorf("amount %q: %w", s, err)
		}
		return v, sym, nil
	}
	return 0, "", fmt.Errorf("amount %q has no known ticker suffix: %w", s, portfolio.ErrUnknownToken)
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
