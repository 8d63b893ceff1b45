package main

import (
	"reflect"
	"testing"

	"coineda/tax"
)

type sheetRecorder struct {
	sheets map[string][][]interface{}
	order  []string
}

func (s *sheetRecorder) WriteRows(sheet string, rows [][]interface{}) error {
	if s.sheets == nil {
		s.sheets = map[string][][]interface{}{}
	}
	s.sheets[sheet] = rows
	s.order = append(s.order, sheet)
	return nil
}

func TestWriteTaxReport(t *testing.T) {
	res := &tax.Result{
		RealizedGains: map[string][]tax.Transaction{
			"ethereum": {{Asset: "ethereum", Amount: 2, Gain: 150.456, Date: 1614585600000, DaysFromPurchase: 40}},
			"bitcoin":  {{Asset: "bitcoin", Amount: 0.5, Gain: 700.123, Date: 1609459200000, DaysFromPurchase: 90}},
		},
		UnrealizedGains: map[string][]tax.Transaction{
			"bitcoin": {{Asset: "bitcoin", Amount: 1, Gain: 99.999, Date: 1612137600000, DaysFromPurchase: 120}},
		},
		TotalGain: 850.579,
		Tax:       425.2895,
	}

	rec := &sheetRecorder{}
	if err := writeTaxReport(rec, 2021, res); err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{"Realized Gains", "Unrealized Gains", "Summary"}
	if !reflect.DeepEqual(rec.order, wantOrder) {
		t.Errorf("expected sheets %v, got %v", wantOrder, rec.order)
	}

	// ledger rows come out sorted by date, oldest first
	wantRealized := [][]interface{}{
		{"Asset", "Sold", "Gain", "Date", "Days Held"},
		{"bitcoin", 0.5, 700.12, "2021-01-01", 90},
		{"ethereum", 2.0, 150.46, "2021-03-01", 40},
	}
	if got := rec.sheets["Realized Gains"]; !reflect.DeepEqual(got, wantRealized) {
		t.Errorf("expected %v, got %v", wantRealized, got)
	}

	wantSummary := [][]interface{}{
		{"Year", "Total Gain", "Below Limit", "Loss", "Tax"},
		{2021, 850.58, false, false, 425.29},
	}
	if got := rec.sheets["Summary"]; !reflect.DeepEqual(got, wantSummary) {
		t.Errorf("expected %v, got %v", wantSummary, got)
	}
}

func TestRoundDec(t *testing.T) {
	tests := []struct {
		in     float64
		places int
		want   float64
	}{
		{700.123, 2, 700.12},
		{150.456, 2, 150.46},
		{-2.345, 1, -2.3},
		{42, 2, 42},
		{0, 2, 0},
	}
	for _, tc := range tests {
		if got := RoundDec(tc.in, tc.places); got != tc.want {
			t.Errorf("RoundDec(%v, %d): expected %v, got %v", tc.in, tc.places, got, tc.want)
		}
	}
}
