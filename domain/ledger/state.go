package ledger

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"scalex/domain/currency"
)

// State is a plain copy of the ledger used by snapshots.
type State struct {
	Fees      Fees
	Operators []common.Address
	Balances  []BalanceEntry
	Collected []CurrencyAmount
	Deposited []CurrencyAmount
	Withdrawn []CurrencyAmount
}

// BalanceEntry is one free (zero Operator) or locked balance.
type BalanceEntry struct {
	User     common.Address
	Currency currency.Currency
	Operator common.Address
	Amount   uint256.Int
}

type CurrencyAmount struct {
	Currency currency.Currency
	Amount   uint256.Int
}

// Export copies the ledger in a deterministic order.
func (m *Manager) Export() State {
	s := State{Fees: m.fees}
	if set, ok := m.gate.(*OperatorSet); ok {
		s.Operators = set.Operators()
	}
	for c, v := range m.cells {
		s.Balances = append(s.Balances, BalanceEntry{User: c.user, Currency: c.currency, Operator: c.operator, Amount: *v})
	}
	sort.Slice(s.Balances, func(i, j int) bool {
		a, b := s.Balances[i], s.Balances[j]
		if k := bytes.Compare(a.User[:], b.User[:]); k != 0 {
			return k < 0
		}
		if k := bytes.Compare(a.Currency[:], b.Currency[:]); k != 0 {
			return k < 0
		}
		return bytes.Compare(a.Operator[:], b.Operator[:]) < 0
	})
	s.Collected = exportTable(m.collected)
	s.Deposited = exportTable(m.deposited)
	s.Withdrawn = exportTable(m.withdrawn)
	return s
}

// Import replaces the ledger contents with s. Operators are only restored
// into an OperatorRegistry gate.
func (m *Manager) Import(s State) error {
	if err := s.Fees.Validate(); err != nil {
		return err
	}
	m.fees = s.Fees
	if reg, ok := m.gate.(OperatorRegistry); ok {
		for _, op := range s.Operators {
			reg.Authorize(op)
		}
	}
	m.cells = make(map[cell]*uint256.Int, len(s.Balances))
	for _, b := range s.Balances {
		amount := b.Amount
		if !amount.IsZero() {
			m.cells[cell{user: b.User, currency: b.Currency, operator: b.Operator}] = &amount
		}
	}
	m.collected = importTable(s.Collected)
	m.deposited = importTable(s.Deposited)
	m.withdrawn = importTable(s.Withdrawn)
	m.journal = m.journal[:0]
	return nil
}

func exportTable(t map[currency.Currency]*uint256.Int) []CurrencyAmount {
	out := make([]CurrencyAmount, 0, len(t))
	for c, v := range t {
		out = append(out, CurrencyAmount{Currency: c, Amount: *v})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Currency[:], out[j].Currency[:]) < 0 })
	return out
}

func importTable(entries []CurrencyAmount) map[currency.Currency]*uint256.Int {
	t := make(map[currency.Currency]*uint256.Int, len(entries))
	for _, e := range entries {
		amount := e.Amount
		if !amount.IsZero() {
			t[e.Currency] = &amount
		}
	}
	return t
}
