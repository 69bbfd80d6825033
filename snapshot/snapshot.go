// Package snapshot persists a full copy of engine state so that recovery
// only replays the command log written after it.
package snapshot

import (
	"time"

	"scalex/domain/ledger"
	"scalex/domain/orderbook"
)

// State is everything needed to rebuild the engine as of command Seq.
type State struct {
	Seq     uint64
	Clock   uint64
	Created time.Time
	Ledger  ledger.State
	Pools   []orderbook.State
}
