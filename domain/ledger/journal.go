package ledger

import "github.com/holiman/uint256"

// The journal records how to undo every table write made while an Atomic
// call is in progress. Stored amounts are never mutated in place, so an
// undo only has to put the previous pointer back.

func put[K comparable](m *Manager, table map[K]*uint256.Int, k K, v *uint256.Int) {
	if m.depth > 0 {
		prev, existed := table[k]
		m.journal = append(m.journal, func() {
			if existed {
				table[k] = prev
			} else {
				delete(table, k)
			}
		})
	}
	if v.IsZero() {
		delete(table, k)
		return
	}
	table[k] = v
}

func get[K comparable](table map[K]*uint256.Int, k K) *uint256.Int {
	if v, ok := table[k]; ok {
		return v
	}
	return new(uint256.Int)
}

// Atomic runs fn and keeps its writes only if it returns nil. Calls nest:
// an inner commit is still undone when an enclosing call fails. A panic in
// fn is rolled back and re-raised.
func (m *Manager) Atomic(fn func() error) (err error) {
	mark := len(m.journal)
	m.depth++
	committed := false
	defer func() {
		if !committed {
			m.rollback(mark)
		}
		m.depth--
		if m.depth == 0 {
			m.journal = m.journal[:0]
		}
	}()

	if err = fn(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *Manager) rollback(mark int) {
	for i := len(m.journal) - 1; i >= mark; i-- {
		m.journal[i]()
	}
	m.journal = m.journal[:mark]
}
