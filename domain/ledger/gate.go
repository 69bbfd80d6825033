package ledger

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// AuthorizationGate decides whether an address may lock, unlock and move
// funds on behalf of users.
type AuthorizationGate interface {
	IsOperator(operator common.Address) bool
}

// OperatorRegistry is a gate whose membership the ledger owner can change.
type OperatorRegistry interface {
	AuthorizationGate
	Authorize(operator common.Address)
	Revoke(operator common.Address)
}

// OperatorSet is the default in-memory gate.
type OperatorSet struct {
	ops map[common.Address]struct{}
}

func NewOperatorSet(ops ...common.Address) *OperatorSet {
	s := &OperatorSet{ops: make(map[common.Address]struct{}, len(ops))}
	for _, op := range ops {
		s.Authorize(op)
	}
	return s
}

func (s *OperatorSet) IsOperator(op common.Address) bool {
	_, ok := s.ops[op]
	return ok
}

func (s *OperatorSet) Authorize(op common.Address) {
	if op == (common.Address{}) {
		return
	}
	s.ops[op] = struct{}{}
}

func (s *OperatorSet) Revoke(op common.Address) {
	delete(s.ops, op)
}

// Operators returns the members in byte order.
func (s *OperatorSet) Operators() []common.Address {
	out := make([]common.Address, 0, len(s.ops))
	for op := range s.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
