package native

import (
	"strconv"
	"strings"

	"coineda/portfolio"
)

// Export serializes transactions and transfers into the interchange format.
// Swap children are skipped and their composed parent is written as a plain
// swap row, so re-importing the file re-synthesizes the identical three
// records instead of leaving orphaned children behind.
func Export(transactions []portfolio.Transaction, transfers []portfolio.Transfer) []byte {
	var b strings.Builder

	b.WriteString("<header>\n")
	b.WriteString("format:" + FormatName + "\n")
	b.WriteString("version:" + FormatVersion + "\n")
	b.WriteString("</header>\n")

	b.WriteString("<transactions>\n")
	rows := exportableTransactions(transactions)
	if len(rows) > 0 {
		b.WriteString(strings.Join(transactionFields, ";") + "\n")
		for _, tx := range rows {
			b.WriteString(transactionRow(tx) + "\n")
		}
	}
	b.WriteString("</transactions>\n")

	b.WriteString("<transfers>\n")
	if len(transfers) > 0 {
		b.WriteString(strings.Join(transferFields, ";") + "\n")
		for _, tr := range transfers {
			b.WriteString(transferRow(tr) + "\n")
		}
	}
	b.WriteString("</transfers>\n")

	return []byte(b.String())
}

func exportableTransactions(transactions []portfolio.Transaction) []portfolio.Transaction {
	out := make([]portfolio.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Parent != 0 {
			continue
		}
		if tx.IsComposed {
			// write the logical swap the user entered, not its split
			tx.IsComposed = false
			tx.ComposedKeys = ""
		}
		out = append(out, tx)
	}
	return out
}

func transactionRow(tx portfolio.Transaction) string {
	composed := "0"
	if tx.IsComposed {
		composed = "1"
	}
	return strings.Join([]string{
		strconv.FormatInt(tx.ID, 10),
		string(tx.Type),
		tx.Exchange,
		formatValue(tx.FromValue),
		tx.FromCurrency,
		formatValue(tx.ToValue),
		tx.ToCurrency,
		formatValue(tx.FeeValue),
		tx.FeeCurrency,
		composed,
		strconv.FormatInt(tx.Date, 10),
	}, ";")
}

func transferRow(tr portfolio.Transfer) string {
	return strings.Join([]string{
		strconv.FormatInt(tr.ID, 10),
		tr.FromExchange,
		tr.ToExchange,
		formatValue(tr.Value),
		tr.Currency,
		formatValue(tr.FeeValue),
		tr.FeeCurrency,
		strconv.FormatInt(tr.Date, 10),
	}, ";")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
