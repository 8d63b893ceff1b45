// Package cointracking reads the CoinTracking trades CSV export.
package cointracking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"coineda/asset"
	"coineda/portfolio"
)

// Column positions are fixed by the export format:
// "Type","Buy","Cur.","Sell","Cur.","Fee","Cur.","Exchange","Trade Group","Comment","Date"
const (
	colType = iota
	colBuyValue
	colBuyCur
	colSellValue
	colSellCur
	colFeeValue
	colFeeCur
	colExchange
	_ // trade group
	_ // comment
	colDate
)

const dateLayout = "02.01.2006 15:04"

type Adapter struct {
	resolver *asset.Resolver
}

func New(resolver *asset.Resolver) *Adapter {
	return &Adapter{resolver: resolver}
}

func (*Adapter) Name() string { return "cointracking" }

// Matches reports whether a CSV header row is the CoinTracking layout: the
// currency columns sit at positions 2, 4 and 6. The Kraken adapter keys its
// own sniff off this so the two stay mutually exclusive.
func Matches(headerLine string) bool {
	cols := splitRow(headerLine)
	return len(cols) > colFeeCur &&
		cols[colBuyCur] == "Cur." && cols[colSellCur] == "Cur." && cols[colFeeCur] == "Cur."
}

func (*Adapter) CanImport(f portfolio.File) bool {
	if !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
		return false
	}
	first, _, _ := strings.Cut(string(f.Data), "\n")
	return Matches(first)
}

func (a *Adapter) Deserialize(f portfolio.File) portfolio.Result {
	var res portfolio.Result

	if len(strings.TrimSpace(string(f.Data))) == 0 {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.EmptyFile, Filename: f.Name, Source: "cointracking",
		})
		return res
	}
	if !utf8.Valid(f.Data) {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.UnexpectedContent, Filename: f.Name, Source: "cointracking",
		})
		return res
	}

	lines := strings.Split(strings.ReplaceAll(string(f.Data), "\r\n", "\n"), "\n")
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := splitRow(line)
		if len(cols) <= colDate {
			res.Errors = append(res.Errors, portfolio.ImportError{
				Kind: portfolio.BrokenFile, Filename: f.Name, Source: "cointracking",
				Err: fmt.Errorf("row has %d columns", len(cols)),
			})
			continue
		}
		// only trades carry gain relevance, deposits and withdrawals are
		// venue bookkeeping
		if cols[colType] != "Trade" {
			continue
		}

		tx, err := a.transaction(cols)
		if err != nil {
			kind := portfolio.BrokenFile
			if errors.Is(err, portfolio.ErrUnknownToken) {
				kind = portfolio.UnknownToken
			}
			res.Errors = append(res.Errors, portfolio.ImportError{
				Kind: kind, Filename: f.Name, Source: "cointracking", Err: err,
			})
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}

	return res
}

func (a *Adapter) transaction(cols []string) (portfolio.Transaction, error) {
	var tx portfolio.Transaction

	toID, err := a.resolver.IDBySymbol(cols[colBuyCur])
	if err != nil {
		return tx, err
	}
	fromID, err := a.resolver.IDBySymbol(cols[colSellCur])
	if err != nil {
		return tx, err
	}

	toValue, err := strconv.ParseFloat(cols[colBuyValue], 64)
	if err != nil {
		return tx, fmt.Errorf("buy value %q: %w", cols[colBuyValue], err)
	}
	fromValue, err := strconv.ParseFloat(cols[colSellValue], 64)
	if err != nil {
		return tx, fmt.Errorf("sell value %q: %w", cols[colSellValue], err)
	}

	when, err := time.Parse(dateLayout, cols[colDate])
	if err != nil {
		return tx, fmt.Errorf("date %q: %w", cols[colDate], err)
	}

	tx = portfolio.Transaction{
		Exchange:     cols[colExchange],
		FromValue:    fromValue,
		FromCurrency: fromID,
		ToValue:      toValue,
		ToCurrency:   toID,
		Date:         when.UTC().UnixMilli(),
	}

	if cols[colFeeValue] != "" {
		feeID, err := a.resolver.IDBySymbol(cols[colFeeCur])
		if err == nil {
			if feeValue, ferr := strconv.ParseFloat(cols[colFeeValue], 64); ferr == nil {
				tx.FeeValue = feeValue
				tx.FeeCurrency = feeID
			}
		}
	}

	fromFiat := a.resolver.IsFiat(fromID)
	toFiat := a.resolver.IsFiat(toID)
	switch {
	case !fromFiat && toFiat:
		tx.Type = portfolio.Sell
	case !fromFiat && !toFiat:
		tx.Type = portfolio.Swap
	default:
		tx.Type = portfolio.Buy
	}

	return tx, nil
}

// splitRow strips quote characters and splits on commas. The export never
// embeds commas inside values, so a plain split is exact.
func splitRow(line string) []string {
	line = strings.ReplaceAll(strings.TrimRight(line, "\r"), `"`, "")
	return strings.Split(line, ",")
}
