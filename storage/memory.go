package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"coineda/portfolio"
)

// Memory is an in-process Store with optional JSON snapshot persistence.
// All methods are safe for concurrent use, but writes racing an open tax
// calculation on the same account are the caller's problem to serialize.
type Memory struct {
	mu   sync.RWMutex
	path string

	data snapshot
}

type snapshot struct {
	NextID       map[string]int64        `json:"nextId"`
	Transactions []portfolio.Transaction `json:"transactions"`
	Transfers    []portfolio.Transfer    `json:"transfers"`
	Exchanges    []portfolio.Exchange    `json:"exchanges"`
	Assets       []portfolio.Asset       `json:"assets"`
	Accounts     []portfolio.Account     `json:"accounts"`
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: snapshot{NextID: map[string]int64{}}}
}

// Open loads a store from the JSON snapshot at path. A missing file yields
// an empty store bound to that path.
func Open(path string) (*Memory, error) {
	m := NewMemory()
	m.path = path
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := json.Unmarshal(raw, &m.data); err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if m.data.NextID == nil {
		m.data.NextID = map[string]int64{}
	}
	return m, nil
}

// Save writes the snapshot back to the file it was opened from.
// A store created without a path saves nowhere.
func (m *Memory) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, raw, 0o644)
}

func (m *Memory) nextID(kind string) int64 {
	m.data.NextID[kind]++
	return m.data.NextID[kind]
}

func (m *Memory) Transactions() TransactionStore { return &txStore{m} }
func (m *Memory) Transfers() TransferStore       { return &transferStore{m} }
func (m *Memory) Exchanges() ExchangeStore       { return &exchangeStore{m} }
func (m *Memory) Assets() AssetStore             { return &assetStore{m} }
func (m *Memory) Accounts() AccountStore         { return &accountStore{m} }

type txStore struct{ m *Memory }

func (s *txStore) GetAll() ([]portfolio.Transaction, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]portfolio.Transaction, len(s.m.data.Transactions))
	copy(out, s.m.data.Transactions)
	return out, nil
}

func (s *txStore) Get(id int64) (portfolio.Transaction, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, t := range s.m.data.Transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return portfolio.Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
}

func (s *txStore) GetAllFromAccount(account int64) ([]portfolio.Transaction, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []portfolio.Transaction
	for _, t := range s.m.data.Transactions {
		if t.Account == account {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *txStore) Add(t portfolio.Transaction) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t.ID = s.m.nextID("transactions")
	s.m.data.Transactions = append(s.m.data.Transactions, t)
	return t.ID, nil
}

func (s *txStore) Put(t portfolio.Transaction) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.data.Transactions {
		if s.m.data.Transactions[i].ID == t.ID {
			s.m.data.Transactions[i] = t
			return nil
		}
	}
	return fmt.Errorf("transaction %d: %w", t.ID, ErrNotFound)
}

func (s *txStore) Delete(id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	idx := -1
	for i, t := range s.m.data.Transactions {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}

	target := s.m.data.Transactions[idx]
	if target.Parent != 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrComposedChild)
	}

	drop := map[int64]bool{id: true}
	if target.IsComposed {
		for _, part := range strings.Split(target.ComposedKeys, ",") {
			childID, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				continue
			}
			drop[childID] = true
		}
	}

	kept := s.m.data.Transactions[:0]
	for _, t := range s.m.data.Transactions {
		if !drop[t.ID] {
			kept = append(kept, t)
		}
	}
	s.m.data.Transactions = kept
	return nil
}

type transferStore struct{ m *Memory }

func (s *transferStore) GetAll() ([]portfolio.Transfer, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]portfolio.Transfer, len(s.m.data.Transfers))
	copy(out, s.m.data.Transfers)
	return out, nil
}

func (s *transferStore) Get(id int64) (portfolio.Transfer, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, t := range s.m.data.Transfers {
		if t.ID == id {
			return t, nil
		}
	}
	return portfolio.Transfer{}, fmt.Errorf("transfer %d: %w", id, ErrNotFound)
}

func (s *transferStore) GetAllFromAccount(account int64) ([]portfolio.Transfer, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []portfolio.Transfer
	for _, t := range s.m.data.Transfers {
		if t.Account == account {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *transferStore) Add(t portfolio.Transfer) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t.ID = s.m.nextID("transfers")
	s.m.data.Transfers = append(s.m.data.Transfers, t)
	return t.ID, nil
}

func (s *transferStore) Put(t portfolio.Transfer) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.data.Transfers {
		if s.m.data.Transfers[i].ID == t.ID {
			s.m.data.Transfers[i] = t
			return nil
		}
	}
	return fmt.Errorf("transfer %d: %w", t.ID, ErrNotFound)
}

func (s *transferStore) Delete(id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i, t := range s.m.data.Transfers {
		if t.ID == id {
			s.m.data.Transfers = append(s.m.data.Transfers[:i], s.m.data.Transfers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transfer %d: %w", id, ErrNotFound)
}

type exchangeStore struct{ m *Memory }

func (s *exchangeStore) GetAll() ([]portfolio.Exchange, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]portfolio.Exchange, len(s.m.data.Exchanges))
	copy(out, s.m.data.Exchanges)
	return out, nil
}

func (s *exchangeStore) Get(id int64) (portfolio.Exchange, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, e := range s.m.data.Exchanges {
		if e.ID == id {
			return e, nil
		}
	}
	return portfolio.Exchange{}, fmt.Errorf("exchange %d: %w", id, ErrNotFound)
}

func (s *exchangeStore) GetByName(name string) (portfolio.Exchange, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, e := range s.m.data.Exchanges {
		if e.Name == name {
			return e, nil
		}
	}
	return portfolio.Exchange{}, fmt.Errorf("exchange %q: %w", name, ErrNotFound)
}

func (s *exchangeStore) Add(e portfolio.Exchange) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	// first write wins, case-sensitive exact match
	for _, have := range s.m.data.Exchanges {
		if have.Name == e.Name {
			return have.ID, nil
		}
	}
	e.ID = s.m.nextID("exchanges")
	s.m.data.Exchanges = append(s.m.data.Exchanges, e)
	return e.ID, nil
}

func (s *exchangeStore) Put(e portfolio.Exchange) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.data.Exchanges {
		if s.m.data.Exchanges[i].ID == e.ID {
			s.m.data.Exchanges[i] = e
			return nil
		}
	}
	return fmt.Errorf("exchange %d: %w", e.ID, ErrNotFound)
}

func (s *exchangeStore) Delete(id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i, e := range s.m.data.Exchanges {
		if e.ID == id {
			s.m.data.Exchanges = append(s.m.data.Exchanges[:i], s.m.data.Exchanges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("exchange %d: %w", id, ErrNotFound)
}

type assetStore struct{ m *Memory }

func (s *assetStore) GetAll() ([]portfolio.Asset, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]portfolio.Asset, len(s.m.data.Assets))
	copy(out, s.m.data.Assets)
	return out, nil
}

func (s *assetStore) Get(id string) (portfolio.Asset, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, a := range s.m.data.Assets {
		if a.ID == id {
			return a, nil
		}
	}
	return portfolio.Asset{}, fmt.Errorf("asset %q: %w", id, ErrNotFound)
}

func (s *assetStore) GetBySymbol(symbol string) (portfolio.Asset, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	up := strings.ToUpper(strings.TrimSpace(symbol))
	for _, a := range s.m.data.Assets {
		if strings.ToUpper(a.Symbol) == up {
			return a, nil
		}
	}
	return portfolio.Asset{}, fmt.Errorf("asset %q: %w", symbol, ErrNotFound)
}

func (s *assetStore) GetAllFiat() ([]portfolio.Asset, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []portfolio.Asset
	for _, a := range s.m.data.Assets {
		if a.Fiat {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *assetStore) Add(a portfolio.Asset) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, have := range s.m.data.Assets {
		if have.ID == a.ID {
			return nil
		}
	}
	s.m.data.Assets = append(s.m.data.Assets, a)
	return nil
}

func (s *assetStore) Put(a portfolio.Asset) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.data.Assets {
		if s.m.data.Assets[i].ID == a.ID {
			s.m.data.Assets[i] = a
			return nil
		}
	}
	return fmt.Errorf("asset %q: %w", a.ID, ErrNotFound)
}

func (s *assetStore) Delete(id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i, a := range s.m.data.Assets {
		if a.ID == id {
			s.m.data.Assets = append(s.m.data.Assets[:i], s.m.data.Assets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("asset %q: %w", id, ErrNotFound)
}

type accountStore struct{ m *Memory }

func (s *accountStore) GetAll() ([]portfolio.Account, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]portfolio.Account, len(s.m.data.Accounts))
	copy(out, s.m.data.Accounts)
	return out, nil
}

func (s *accountStore) Get(id int64) (portfolio.Account, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, a := range s.m.data.Accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return portfolio.Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
}

func (s *accountStore) Add(a portfolio.Account) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a.ID = s.m.nextID("accounts")
	s.m.data.Accounts = append(s.m.data.Accounts, a)
	return a.ID, nil
}

func (s *accountStore) Put(a portfolio.Account) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.data.Accounts {
		if s.m.data.Accounts[i].ID == a.ID {
			s.m.data.Accounts[i] = a
			return nil
		}
	}
	return fmt.Errorf("account %d: %w", a.ID, ErrNotFound)
}

func (s *accountStore) Delete(id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i, a := range s.m.data.Accounts {
		if a.ID == id {
			s.m.data.Accounts = append(s.m.data.Accounts[:i], s.m.data.Accounts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("account %d: %w", id, ErrNotFound)
}

// Seed inserts the given assets if the asset table is empty.
func Seed(store Store, assets []portfolio.Asset) error {
	have, err := store.Assets().GetAll()
	if err != nil {
		return err
	}
	if len(have) > 0 {
		return nil
	}
	for _, a := range assets {
		if err := store.Assets().Add(a); err != nil {
			return err
		}
	}
	return nil
}
