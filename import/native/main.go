// Package native reads and writes the coineda interchange file format: a
// UTF-8 text file with a <header> section carrying format and version lines
// and <transactions>/<transfers> sections of semicolon-joined rows.
package native

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"coineda/portfolio"
)

const (
	// FormatName is the value of the header format line
	FormatName = "coineda"
	// FormatVersion is written on export; import accepts any version of
	// the coineda format
	FormatVersion = "1.0.0"
)

var (
	headerSection       = regexp.MustCompile(`(?s)<header>\n(.*?)</header>`)
	transactionsSection = regexp.MustCompile(`(?s)<transactions>\n(.*?)</transactions>`)
	transfersSection    = regexp.MustCompile(`(?s)<transfers>\n(.*?)</transfers>`)
)

var transactionFields = []string{
	"id", "type", "exchange",
	"fromValue", "fromCurrency",
	"toValue", "toCurrency",
	"feeValue", "feeCurrency",
	"isComposed", "date",
}

var transferFields = []string{
	"id", "fromExchange", "toExchange",
	"value", "currency",
	"feeValue", "feeCurrency", "date",
}

type Adapter struct{}

func (Adapter) Name() string { return "coineda" }

func (Adapter) CanImport(f portfolio.File) bool {
	return strings.HasSuffix(strings.ToLower(f.Name), ".cnd")
}

func (Adapter) Deserialize(f portfolio.File) portfolio.Result {
	var res portfolio.Result

	if len(strings.TrimSpace(string(f.Data))) == 0 {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.EmptyFile, Filename: f.Name, Source: "coineda",
		})
		return res
	}
	if !utf8.Valid(f.Data) {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.UnexpectedContent, Filename: f.Name, Source: "coineda",
		})
		return res
	}

	text := string(f.Data)
	header := headerSection.FindStringSubmatch(text)
	if header == nil {
		res.Errors = append(res.Errors, portfolio.ImportError{
			Kind: portfolio.BrokenFile, Filename: f.Name, Source: "coineda",
			Err: fmt.Errorf("no header section"),
		})
		return res
	}

	// An unknown format value yields zero records without an error, so a
	// future format revision degrades to a no-op instead of a failure.
	if headerValue(header[1], "format") != FormatName {
		return res
	}

	if m := transactionsSection.FindStringSubmatch(text); m != nil {
		parseRows(m[1], func(row map[string]string) error {
			tx, err := transactionFromRow(row)
			if err != nil {
				return err
			}
			res.Transactions = append(res.Transactions, tx)
			return nil
		}, f.Name, &res)
	}
	if m := transfersSection.FindStringSubmatch(text); m != nil {
		parseRows(m[1], func(row map[string]string) error {
			tr, err := transferFromRow(row)
			if err != nil {
				return err
			}
			res.Transfers = append(res.Transfers, tr)
			return nil
		}, f.Name, &res)
	}

	return res
}

func headerValue(header, key string) string {
	for _, line := range strings.Split(header, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseRows maps each semicolon-joined data row onto the section's header
// row and hands it to push. A bad row is reported and skipped, the rest of
// the section still parses.
func parseRows(section string, push func(map[string]string) error, filename string, res *portfolio.Result) {
	lines := strings.Split(strings.TrimRight(section, "\n"), "\n")
	if len(lines) < 2 || lines[0] == "" {
		// empty section: tags present, nothing beneath
		return
	}

	fields := strings.Split(lines[0], ";")
	for _, line := range lines[1:] {
		values := strings.Split(line, ";")
		if len(values) != len(fields) {
			res.Errors = append(res.Errors, portfolio.ImportError{
				Kind: portfolio.BrokenFile, Filename: filename, Source: "coineda",
				Err: fmt.Errorf("row has %d fields, header has %d", len(values), len(fields)),
			})
			continue
		}
		row := make(map[string]string, len(fields))
		for i, name := range fields {
			row[name] = values[i]
		}
		if err := push(row); err != nil {
			res.Errors = append(res.Errors, portfolio.ImportError{
				Kind: portfolio.BrokenFile, Filename: filename, Source: "coineda", Err: err,
			})
		}
	}
}

func transactionFromRow(row map[string]string) (portfolio.Transaction, error) {
	tx := portfolio.Transaction{
		Type:         portfolio.Type(row["type"]),
		Exchange:     row["exchange"],
		FromCurrency: strings.ToLower(row["fromCurrency"]),
		ToCurrency:   strings.ToLower(row["toCurrency"]),
		FeeCurrency:  strings.ToLower(row["feeCurrency"]),
	}
	var err error
	if tx.FromValue, err = strconv.ParseFloat(row["fromValue"], 64); err != nil {
		return tx, fmt.Errorf("fromValue: %w", err)
	}
	if tx.ToValue, err = strconv.ParseFloat(row["toValue"], 64); err != nil {
		return tx, fmt.Errorf("toValue: %w", err)
	}
	if row["feeValue"] != "" {
		if tx.FeeValue, err = strconv.ParseFloat(row["feeValue"], 64); err != nil {
			return tx, fmt.Errorf("feeValue: %w", err)
		}
	}
	if tx.Date, err = strconv.ParseInt(row["date"], 10, 64); err != nil {
		return tx, fmt.Errorf("date: %w", err)
	}
	tx.IsComposed = row["isComposed"] == "1" || row["isComposed"] == "true"
	return tx, nil
}

func transferFromRow(row map[string]string) (portfolio.Transfer, error) {
	tr := portfolio.Transfer{
		FromExchange: row["fromExchange"],
		ToExchange:   row["toExchange"],
		Currency:     strings.ToLower(row["currency"]),
		FeeCurrency:  strings.ToLower(row["feeCurrency"]),
	}
	var err error
	if tr.Value, err = strconv.ParseFloat(row["value"], 64); err != nil {
		return tr, fmt.Errorf("value: %w", err)
	}
	if row["feeValue"] != "" {
		if tr.FeeValue, err = strconv.ParseFloat(row["feeValue"], 64); err != nil {
			return tr, fmt.Errorf("feeValue: %w", err)
		}
	}
	if tr.Date, err = strconv.ParseInt(row["date"], 10, 64); err != nil {
		return tr, fmt.Errorf("date: %w", err)
	}
	return tr, nil
}
