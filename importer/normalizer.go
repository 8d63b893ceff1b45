package importer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"coineda/asset"
	"coineda/portfolio"
	"coineda/storage"
)

// PriceSource supplies the historical price needed to route a swap through
// an intermediate fiat value.
type PriceSource interface {
	PriceAt(ctx context.Context, assetID string, at time.Time) (float64, error)
}

// Normalizer classifies a raw transaction by the fiat nature of its two legs
// and persists it. A crypto-to-crypto swap is decomposed into a sell child,
// a buy child and a composed parent referencing both.
type Normalizer struct {
	store    storage.Store
	resolver *asset.Resolver
	prices   PriceSource
	log      zerolog.Logger
}

func NewNormalizer(store storage.Store, resolver *asset.Resolver, prices PriceSource, log zerolog.Logger) *Normalizer {
	return &Normalizer{store: store, resolver: resolver, prices: prices, log: log}
}

// Persist classifies and stores one raw transaction. The returned slice
// holds every stored record: one for a buy or sell, three for a swap with
// the parent last.
func (n *Normalizer) Persist(ctx context.Context, tx portfolio.Transaction) ([]portfolio.Transaction, error) {
	// declared venue movements and income keep their type, only trades are
	// classified by their legs
	if tx.Type != portfolio.Send && tx.Type != portfolio.Receive && tx.Type != portfolio.Rewards {
		fromFiat := n.resolver.IsFiat(tx.FromCurrency)
		toFiat := n.resolver.IsFiat(tx.ToCurrency)

		switch {
		case !fromFiat && toFiat:
			tx.Type = portfolio.Sell
		case !fromFiat && !toFiat:
			return n.persistSwap(ctx, tx)
		default:
			tx.Type = portfolio.Buy
		}
	}

	tx.IsComposed = false
	tx.Parent = 0
	tx.ComposedKeys = ""
	id, err := n.store.Transactions().Add(tx)
	if err != nil {
		return nil, fmt.Errorf("persisting %s transaction: %w", tx.Type, err)
	}
	tx.ID = id
	return []portfolio.Transaction{tx}, nil
}

// persistSwap routes the trade through the base fiat currency. The price is
// fetched before any write so a price failure can never leave orphaned
// children behind.
func (n *Normalizer) persistSwap(ctx context.Context, tx portfolio.Transaction) ([]portfolio.Transaction, error) {
	unit, err := n.prices.PriceAt(ctx, tx.FromCurrency, tx.Time())
	if err != nil {
		return nil, fmt.Errorf("pricing %s at %s: %w", tx.FromCurrency, tx.Time().Format(time.RFC3339), err)
	}
	fiatValue := unit * tx.FromValue

	sellChild := portfolio.Transaction{
		Type:         portfolio.Sell,
		Exchange:     tx.Exchange,
		FromValue:    tx.FromValue,
		FromCurrency: tx.FromCurrency,
		ToValue:      fiatValue,
		ToCurrency:   portfolio.BaseCurrency,
		Date:         tx.Date,
		Account:      tx.Account,
	}
	buyChild := portfolio.Transaction{
		Type:         portfolio.Buy,
		Exchange:     tx.Exchange,
		FromValue:    fiatValue,
		FromCurrency: portfolio.BaseCurrency,
		ToValue:      tx.ToValue,
		ToCurrency:   tx.ToCurrency,
		Date:         tx.Date,
		Account:      tx.Account,
	}

	sellID, err := n.store.Transactions().Add(sellChild)
	if err != nil {
		return nil, fmt.Errorf("persisting swap sell leg: %w", err)
	}
	buyID, err := n.store.Transactions().Add(buyChild)
	if err != nil {
		// compensate so the store never holds a half-written swap
		_ = n.store.Transactions().Delete(sellID)
		return nil, fmt.Errorf("persisting swap buy leg: %w", err)
	}

	parent := tx
	parent.ID = 0
	parent.Type = portfolio.Swap
	parent.IsComposed = true
	parent.Parent = 0
	parent.ComposedKeys = strconv.FormatInt(sellID, 10) + "," + strconv.FormatInt(buyID, 10)
	parentID, err := n.store.Transactions().Add(parent)
	if err != nil {
		_ = n.store.Transactions().Delete(sellID)
		_ = n.store.Transactions().Delete(buyID)
		return nil, fmt.Errorf("persisting swap parent: %w", err)
	}

	sellChild.ID, buyChild.ID, parent.ID = sellID, buyID, parentID
	sellChild.Parent, buyChild.Parent = parentID, parentID
	if err := n.store.Transactions().Put(sellChild); err != nil {
		return nil, fmt.Errorf("linking swap sell leg: %w", err)
	}
	if err := n.store.Transactions().Put(buyChild); err != nil {
		return nil, fmt.Errorf("linking swap buy leg: %w", err)
	}

	n.log.Debug().
		Int64("parent", parentID).
		Str("from", tx.FromCurrency).
		Str("to", tx.ToCurrency).
		Float64("fiatValue", fiatValue).
		Msg("swap decomposed")

	return []portfolio.Transaction{sellChild, buyChild, parent}, nil
}

// Replace implements the edit flow: financial fields are never patched in
// place, the old record is deleted and the new values re-classified from
// scratch. Deleting a composed parent cascades to its children.
func (n *Normalizer) Replace(ctx context.Context, id int64, tx portfolio.Transaction) ([]portfolio.Transaction, error) {
	if err := n.store.Transactions().Delete(id); err != nil {
		return nil, fmt.Errorf("replacing transaction %d: %w", id, err)
	}
	tx.ID = 0
	return n.Persist(ctx, tx)
}
