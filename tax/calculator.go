package tax

import (
	"context"
	"time"
)

// Result is a jurisdiction filtered tax report for one account and year.
type Result struct {
	RealizedGains   map[string][]Transaction `json:"realizedGains"`
	UnrealizedGains map[string][]Transaction `json:"unrealizedGains"`
	TotalGain       float64                  `json:"totalGain"`
	HasLoss         bool                     `json:"hasLoss"`
	IsBelowLimit    bool                     `json:"isBelowLimit"`
	Tax             float64                  `json:"tax"`
}

// Calculator applies one jurisdiction's rules to the engine's ledgers.
// Every call replays the full history and re-fetches prices; results are
// not cached across calls.
type Calculator interface {
	Calculate(ctx context.Context, account int64, year int) (*Result, error)
}

// Germany models the private sale rules: disposals held for at least a year
// are exempt, and below a flat allowance the whole year is tax free. The
// rate is a stand-in, not a statutory figure.
type Germany struct {
	Engine *Engine
}

const (
	germanyAllowance = 600.0
	germanyTaxRate   = 0.5
	// holding period after which a disposal is exempt
	germanyExemptDays = 365
)

func (g *Germany) Calculate(ctx context.Context, account int64, year int) (*Result, error) {
	gains, err := g.Engine.ComputeGains(ctx, account)
	if err != nil {
		return nil, err
	}

	// inclusive year bounds on both ends, so a Dec 31 disposal belongs to
	// the year it happened in
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	until := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	res := &Result{
		RealizedGains:   map[string][]Transaction{},
		UnrealizedGains: map[string][]Transaction{},
	}

	for assetID, entries := range gains.Realized {
		for _, entry := range entries {
			if entry.Date < from || entry.Date >= until {
				continue
			}
			res.RealizedGains[assetID] = append(res.RealizedGains[assetID], entry)
			if entry.DaysFromPurchase >= germanyExemptDays {
				continue
			}
			res.TotalGain += entry.Gain
		}
	}

	for assetID, entries := range gains.Unrealized {
		for _, entry := range entries {
			if entry.Date >= until {
				continue
			}
			res.UnrealizedGains[assetID] = append(res.UnrealizedGains[assetID], entry)
		}
	}

	res.HasLoss = res.TotalGain < 0
	res.IsBelowLimit = res.TotalGain < germanyAllowance
	if !res.IsBelowLimit && !res.HasLoss {
		res.Tax = res.TotalGain * germanyTaxRate
	}
	return res, nil
}
