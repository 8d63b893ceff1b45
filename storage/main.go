package storage

import (
	"errors"

	"coineda/portfolio"
)

// ErrNotFound is returned when a record id or lookup key has no match.
var ErrNotFound = errors.New("record not found")

// ErrComposedChild is returned when a caller tries to delete a swap child
// directly. The parent must be deleted instead, which cascades.
var ErrComposedChild = errors.New("transaction is part of a composed swap, delete the parent")

// Store is the persisted record store collaborator. One Store holds every
// record kind of a single profile.
type Store interface {
	Transactions() TransactionStore
	Transfers() TransferStore
	Exchanges() ExchangeStore
	Assets() AssetStore
	Accounts() AccountStore
}

type TransactionStore interface {
	GetAll() ([]portfolio.Transaction, error)
	Get(id int64) (portfolio.Transaction, error)
	GetAllFromAccount(account int64) ([]portfolio.Transaction, error)
	Add(t portfolio.Transaction) (int64, error)
	Put(t portfolio.Transaction) error
	// Delete removes a transaction. Deleting a composed parent cascades to
	// its children; deleting a child directly fails with ErrComposedChild.
	Delete(id int64) error
}

type TransferStore interface {
	GetAll() ([]portfolio.Transfer, error)
	Get(id int64) (portfolio.Transfer, error)
	GetAllFromAccount(account int64) ([]portfolio.Transfer, error)
	Add(t portfolio.Transfer) (int64, error)
	Put(t portfolio.Transfer) error
	Delete(id int64) error
}

type ExchangeStore interface {
	GetAll() ([]portfolio.Exchange, error)
	Get(id int64) (portfolio.Exchange, error)
	GetByName(name string) (portfolio.Exchange, error)
	Add(e portfolio.Exchange) (int64, error)
	Put(e portfolio.Exchange) error
	Delete(id int64) error
}

type AssetStore interface {
	GetAll() ([]portfolio.Asset, error)
	Get(id string) (portfolio.Asset, error)
	GetBySymbol(symbol string) (portfolio.Asset, error)
	GetAllFiat() ([]portfolio.Asset, error)
	Add(a portfolio.Asset) error
	Put(a portfolio.Asset) error
	Delete(id string) error
}

type AccountStore interface {
	GetAll() ([]portfolio.Account, error)
	Get(id int64) (portfolio.Account, error)
	Add(a portfolio.Account) (int64, error)
	Put(a portfolio.Account) error
	Delete(id int64) error
}
