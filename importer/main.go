// Package importer drives file imports end to end: adapter selection,
// deduplication against the persisted store, lazy exchange registration and
// persistence through the transaction normalizer.
package importer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"coineda/asset"
	"coineda/cache"
	"coineda/import/binance"
	"coineda/import/cointracking"
	"coineda/import/kraken"
	"coineda/import/native"
	"coineda/portfolio"
	"coineda/storage"
)

// Summary is what one import run reports back to the user.
type Summary struct {
	Inserts    int                     `json:"inserts"`
	Duplicates int                     `json:"duplicates"`
	Errors     []portfolio.ImportError `json:"errors"`
}

type Importer struct {
	store      storage.Store
	normalizer *Normalizer
	adapters   []portfolio.Adapter
	log        zerolog.Logger
}

// New builds an importer with the default adapter priority list. The order
// matters: kraken claims any csv cointracking does not, so it goes last.
func New(store storage.Store, resolver *asset.Resolver, prices PriceSource, c cache.Cache, log zerolog.Logger) *Importer {
	return &Importer{
		store:      store,
		normalizer: NewNormalizer(store, resolver, prices, log),
		adapters: []portfolio.Adapter{
			native.Adapter{},
			binance.New(resolver, c),
			cointracking.New(resolver),
			kraken.New(resolver),
		},
		log: log,
	}
}

// Normalizer exposes the classify and persist path for manual entries.
func (im *Importer) Normalizer() *Normalizer {
	return im.normalizer
}

// ImportFiles runs the whole import pipeline for a batch of files. Files are
// processed strictly in input order. Row and file failures are accumulated,
// never propagated: the batch always completes with a Summary.
func (im *Importer) ImportFiles(ctx context.Context, files []portfolio.File, account int64) Summary {
	var sum Summary
	var transactions []portfolio.Transaction
	var transfers []portfolio.Transfer

	for _, f := range files {
		res := im.deserialize(f)
		sum.Errors = append(sum.Errors, res.Errors...)
		for _, tx := range res.Transactions {
			tx.Account = account
			transactions = append(transactions, tx)
		}
		for _, tr := range res.Transfers {
			tr.Account = account
			transfers = append(transfers, tr)
		}
	}

	seen, err := im.persistedSignatures(account)
	if err != nil {
		sum.Errors = append(sum.Errors, portfolio.ImportError{
			Kind: portfolio.DatabaseError, Err: err,
		})
		return sum
	}

	for i := range transactions {
		tx := transactions[i]

		// a composed parent must never arrive as a raw candidate; this
		// guards against re-importing a foreign export verbatim
		if tx.IsComposed {
			continue
		}

		sig := transactionSignature(tx)
		if seen[sig] {
			sum.Duplicates++
			continue
		}
		seen[sig] = true

		im.registerExchange(tx.Exchange, &sum)
		stored, err := im.normalizer.Persist(ctx, tx)
		if err != nil {
			im.log.Warn().Err(err).Msg("persisting transaction failed")
			sum.Errors = append(sum.Errors, portfolio.ImportError{
				Kind: portfolio.DatabaseError, Transaction: &transactions[i], Err: err,
			})
			continue
		}
		sum.Inserts++
		im.log.Debug().Int("records", len(stored)).Msg("transaction imported")
	}

	for _, tr := range transfers {
		sig := transferSignature(tr)
		if seen[sig] {
			sum.Duplicates++
			continue
		}
		seen[sig] = true

		im.registerExchange(tr.FromExchange, &sum)
		im.registerExchange(tr.ToExchange, &sum)
		if _, err := im.store.Transfers().Add(tr); err != nil {
			im.log.Warn().Err(err).Msg("persisting transfer failed")
			sum.Errors = append(sum.Errors, portfolio.ImportError{
				Kind: portfolio.DatabaseError, Err: err,
			})
			continue
		}
		sum.Inserts++
	}

	return sum
}

// deserialize tries the adapters in priority order; the first CanImport
// match wins. A file no adapter claims is an explicit error, not a silent
// no-op.
func (im *Importer) deserialize(f portfolio.File) portfolio.Result {
	if len(f.Data) == 0 {
		return portfolio.Result{Errors: []portfolio.ImportError{{
			Kind: portfolio.EmptyFile, Filename: f.Name,
		}}}
	}
	for _, a := range im.adapters {
		if a.CanImport(f) {
			return a.Deserialize(f)
		}
	}
	return portfolio.Result{Errors: []portfolio.ImportError{{
		Kind: portfolio.UnexpectedContent, Filename: f.Name,
		Err: errors.New("no adapter recognizes this file"),
	}}}
}

func (im *Importer) persistedSignatures(account int64) (map[string]bool, error) {
	seen := map[string]bool{}

	txs, err := im.store.Transactions().GetAllFromAccount(account)
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		seen[transactionSignature(tx)] = true
	}

	trs, err := im.store.Transfers().GetAllFromAccount(account)
	if err != nil {
		return nil, err
	}
	for _, tr := range trs {
		seen[transferSignature(tr)] = true
	}
	return seen, nil
}

// registerExchange lazily creates the venue record the first time a name is
// seen. The store's Add is idempotent on the name, so concurrent import runs
// racing on the registry stay harmless.
func (im *Importer) registerExchange(name string, sum *Summary) {
	if name == "" {
		return
	}
	if _, err := im.store.Exchanges().GetByName(name); err == nil {
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		im.log.Warn().Err(err).Str("exchange", name).Msg("exchange lookup failed")
		return
	}
	if _, err := im.store.Exchanges().Add(portfolio.Exchange{Name: name}); err != nil {
		im.log.Warn().Err(err).Str("exchange", name).Msg("exchange registration failed")
	}
}
