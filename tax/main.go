// Package tax replays an account's transaction history against FIFO lot
// queues and derives realized and unrealized gain ledgers, which a
// jurisdiction specific calculator filters into a tax result.
package tax

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"coineda/asset"
	"coineda/portfolio"
	"coineda/storage"
)

// PriceSource supplies historical and spot prices in the base fiat unit.
// Any failure aborts the whole calculation: a silently incomplete tax report
// is worse than a visible one.
type PriceSource interface {
	PriceAt(ctx context.Context, assetID string, at time.Time) (float64, error)
	CurrentPrice(ctx context.Context, assetID string) (float64, error)
}

// Transaction is one realized or unrealized gain ledger entry.
type Transaction struct {
	Asset string `json:"asset"`
	// Amount is the asset quantity the entry covers
	Amount float64 `json:"amount"`
	// Gain is fiat denominated, unrounded
	Gain float64 `json:"gain"`
	// Date is the disposal date for realized entries and the acquisition
	// date for unrealized ones, epoch milliseconds
	Date             int64 `json:"date"`
	DaysFromPurchase int   `json:"daysFromPurchase"`
}

// Gains holds the two ledgers keyed by canonical asset id.
type Gains struct {
	Realized   map[string][]Transaction `json:"realizedGains"`
	Unrealized map[string][]Transaction `json:"unrealizedGains"`
}

// lot is a remaining quantity of a past acquisition. Ephemeral, recomputed
// on every run.
type lot struct {
	remaining float64
	acquired  int64
	// costBasis is fiat per unit at acquisition
	costBasis float64
}

type Engine struct {
	store    storage.Store
	resolver *asset.Resolver
	prices   PriceSource
	log      zerolog.Logger

	// now is swapped in tests
	now func() time.Time
}

func NewEngine(store storage.Store, resolver *asset.Resolver, prices PriceSource, log zerolog.Logger) *Engine {
	return &Engine{store: store, resolver: resolver, prices: prices, log: log, now: time.Now}
}

// ComputeGains replays the account's full history in date order, consuming
// FIFO lots on disposals. Swap parents are skipped: their sell and buy
// children already appear independently in the stream, counting the parent
// too would double every swap.
func (e *Engine) ComputeGains(ctx context.Context, account int64) (*Gains, error) {
	transactions, err := e.store.Transactions().GetAllFromAccount(account)
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}
	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].Date < transactions[j].Date
	})

	gains := &Gains{
		Realized:   map[string][]Transaction{},
		Unrealized: map[string][]Transaction{},
	}
	lots := map[string][]lot{}

	for _, tx := range transactions {
		if tx.IsComposed || tx.Type == portfolio.Swap {
			continue
		}

		switch tx.Type {
		case portfolio.Buy:
			l, err := e.acquire(ctx, tx)
			if err != nil {
				return nil, err
			}
			lots[tx.ToCurrency] = append(lots[tx.ToCurrency], l)
		case portfolio.Sell:
			if err := e.dispose(ctx, tx, lots, gains); err != nil {
				return nil, err
			}
		}
	}

	if err := e.unrealized(ctx, lots, gains); err != nil {
		return nil, err
	}
	return gains, nil
}

// acquire builds a lot from a buy. When the paying side is not fiat the
// cost basis is converted through the price at acquisition.
func (e *Engine) acquire(ctx context.Context, tx portfolio.Transaction) (lot, error) {
	if tx.ToValue == 0 {
		return lot{}, fmt.Errorf("buy %d has zero quantity", tx.ID)
	}
	cost := tx.FromValue
	if !e.resolver.IsFiat(tx.FromCurrency) {
		unit, err := e.prices.PriceAt(ctx, tx.FromCurrency, tx.Time())
		if err != nil {
			return lot{}, fmt.Errorf("pricing cost basis of buy %d: %w", tx.ID, err)
		}
		cost = tx.FromValue * unit
	}
	return lot{
		remaining: tx.ToValue,
		acquired:  tx.Date,
		costBasis: cost / tx.ToValue,
	}, nil
}

// dispose consumes lots oldest first until the sold amount is satisfied or
// the queue runs dry.
func (e *Engine) dispose(ctx context.Context, tx portfolio.Transaction, lots map[string][]lot, gains *Gains) error {
	assetID := tx.FromCurrency
	remaining := tx.FromValue

	sellPrice, err := e.prices.PriceAt(ctx, assetID, tx.Time())
	if err != nil {
		return fmt.Errorf("pricing disposal %d: %w", tx.ID, err)
	}

	queue := lots[assetID]
	for remaining > 0 && len(queue) > 0 {
		oldest := &queue[0]

		consumed := oldest.remaining
		if consumed > remaining {
			consumed = remaining
		}

		buyPrice, err := e.prices.PriceAt(ctx, assetID, time.UnixMilli(oldest.acquired).UTC())
		if err != nil {
			return fmt.Errorf("pricing lot of disposal %d: %w", tx.ID, err)
		}

		gains.Realized[assetID] = append(gains.Realized[assetID], Transaction{
			Asset:            assetID,
			Amount:           consumed,
			Gain:             consumed * (sellPrice - buyPrice),
			Date:             tx.Date,
			DaysFromPurchase: wholeDays(tx.Date - oldest.acquired),
		})

		oldest.remaining -= consumed
		remaining -= consumed
		if oldest.remaining == 0 {
			queue = queue[1:]
		}
	}
	if remaining > 0 {
		e.log.Warn().
			Str("asset", assetID).
			Float64("unmatched", remaining).
			Msg("disposal exceeds recorded holdings")
	}
	lots[assetID] = queue
	return nil
}

// unrealized turns every surviving lot into a paper gain entry against the
// current market price.
func (e *Engine) unrealized(ctx context.Context, lots map[string][]lot, gains *Gains) error {
	now := e.now().UnixMilli()
	for assetID, queue := range lots {
		if len(queue) == 0 {
			continue
		}
		current, err := e.prices.CurrentPrice(ctx, assetID)
		if err != nil {
			return fmt.Errorf("pricing holdings of %s: %w", assetID, err)
		}
		for _, l := range queue {
			gains.Unrealized[assetID] = append(gains.Unrealized[assetID], Transaction{
				Asset:            assetID,
				Amount:           l.remaining,
				Gain:             l.remaining * (current - l.costBasis),
				Date:             l.acquired,
				DaysFromPurchase: wholeDays(now - l.acquired),
			})
		}
	}
	return nil
}

func wholeDays(ms int64) int {
	return int(ms / (24 * time.Hour).Milliseconds())
}
