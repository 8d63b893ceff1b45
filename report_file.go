package main

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"coineda/tax"
)

// RowWriter is what report data is written through, one sheet at a time.
type RowWriter interface {
	WriteRows(string, [][]interface{}) error
}

// Report wraps excelize.File and implements the RowWriter interface needed
// by the tax report sheets.
type Report struct {
	f        *excelize.File
	filename string
}

func NewReport(filename string) *Report {
	return &Report{f: excelize.NewFile(), filename: filename}
}

func (r *Report) WriteRows(sheet string, rows [][]interface{}) error {
	r.f.NewSheet(sheet)

	for i := range rows {
		row := &rows[i]
		err := r.f.SetSheetRow(sheet, "A"+strconv.Itoa(i+1), row)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) Save() error {
	r.f.DeleteSheet("Sheet1")
	return r.f.SaveAs(r.filename)
}

// writeTaxReport writes the realized and unrealized ledgers plus a summary
// sheet for one tax year.
func writeTaxReport(rw RowWriter, year int, res *tax.Result) error {
	realized := [][]interface{}{{"Asset", "Sold", "Gain", "Date", "Days Held"}}
	for _, e := range flatten(res.RealizedGains) {
		realized = append(realized, []interface{}{
			e.Asset,
			e.Amount,
			RoundDec(e.Gain, 2),
			time.UnixMilli(e.Date).UTC().Format("2006-01-02"),
			e.DaysFromPurchase,
		})
	}

	unrealized := [][]interface{}{{"Asset", "Held", "Gain", "Purchased", "Days Held"}}
	for _, e := range flatten(res.UnrealizedGains) {
		unrealized = append(unrealized, []interface{}{
			e.Asset,
			e.Amount,
			RoundDec(e.Gain, 2),
			time.UnixMilli(e.Date).UTC().Format("2006-01-02"),
			e.DaysFromPurchase,
		})
	}

	summary := [][]interface{}{
		{"Year", "Total Gain", "Below Limit", "Loss", "Tax"},
		{year, RoundDec(res.TotalGain, 2), res.IsBelowLimit, res.HasLoss, RoundDec(res.Tax, 2)},
	}

	if err := rw.WriteRows("Realized Gains", realized); err != nil {
		return err
	}
	if err := rw.WriteRows("Unrealized Gains", unrealized); err != nil {
		return err
	}
	return rw.WriteRows("Summary", summary)
}

func flatten(ledger map[string][]tax.Transaction) []tax.Transaction {
	var list []tax.Transaction
	for _, entries := range ledger {
		list = append(list, entries...)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		return list[i].Asset < list[j].Asset
	})
	return list
}

// RoundDec rounds a float number to provided number of decimal places
func RoundDec(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
