package grpcserver

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"scalex/api/rpc"
	"scalex/domain/currency"
	"scalex/domain/event"
	"scalex/domain/orderbook"
	"scalex/domain/rules"
	"scalex/pkg/fixed"
	"scalex/service"
)

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, invalid(field, fmt.Errorf("not an address: %q", s))
	}
	return common.HexToAddress(s), nil
}

func parseCurrency(field, s string) (currency.Currency, error) {
	c, err := currency.FromHex(s)
	if err != nil {
		return currency.Currency{}, invalid(field, err)
	}
	return c, nil
}

func parsePool(s string) (currency.PoolID, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return currency.PoolID{}, invalid("pool", fmt.Errorf("not a pool id: %q", s))
	}
	return common.BytesToHash(b), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, invalid(field, err)
	}
	if !fixed.Fits(v) {
		return nil, invalid(field, fmt.Errorf("wider than %d bits", fixed.AmountBits))
	}
	return v, nil
}

// parseOptional returns nil for an empty string.
func parseOptional(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseAmount(field, s)
}

func parseSide(s string) (orderbook.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return orderbook.Buy, nil
	case "SELL":
		return orderbook.Sell, nil
	default:
		return 0, invalid("side", fmt.Errorf("unknown side %q", s))
	}
}

func parseTimeInForce(s string) (orderbook.TimeInForce, error) {
	switch strings.ToUpper(s) {
	case "", "GTC":
		return orderbook.GTC, nil
	case "IOC":
		return orderbook.IOC, nil
	case "FOK":
		return orderbook.FOK, nil
	case "POST_ONLY":
		return orderbook.PostOnly, nil
	default:
		return 0, invalid("timeInForce", fmt.Errorf("unknown time in force %q", s))
	}
}

func parseRules(r rpc.Rules) (rules.TradingRules, error) {
	var out rules.TradingRules
	for _, f := range []struct {
		name string
		s    string
		dst  *uint256.Int
	}{
		{"minTradeAmount", r.MinTradeAmount, &out.MinTradeAmount},
		{"minAmountMovement", r.MinAmountMovement, &out.MinAmountMovement},
		{"minOrderSize", r.MinOrderSize, &out.MinOrderSize},
		{"minPriceMovement", r.MinPriceMovement, &out.MinPriceMovement},
	} {
		v, err := parseOptional("rules."+f.name, f.s)
		if err != nil {
			return out, err
		}
		if v != nil {
			f.dst.Set(v)
		}
	}
	return out, nil
}

func fromRules(r rules.TradingRules) rpc.Rules {
	return rpc.Rules{
		MinTradeAmount:    r.MinTradeAmount.Dec(),
		MinAmountMovement: r.MinAmountMovement.Dec(),
		MinOrderSize:      r.MinOrderSize.Dec(),
		MinPriceMovement:  r.MinPriceMovement.Dec(),
	}
}

func fromPool(p service.PoolInfo) rpc.PoolInfo {
	return rpc.PoolInfo{
		Pool:         p.ID.Hex(),
		Key:          rpc.PoolKey{Base: p.Key.Base.String(), Quote: p.Key.Quote.String(), FeeTier: p.Key.FeeTier},
		Rules:        fromRules(p.Rules),
		BaseDecimals: p.BaseDecimals,
		Operator:     p.Operator.Hex(),
		LastOrderID:  p.LastOrderID,
		BidLevels:    p.Stats.BidLevels,
		AskLevels:    p.Stats.AskLevels,
		Resting:      p.Stats.Resting,
	}
}

func fromLevel(l orderbook.LevelView) rpc.Level {
	return rpc.Level{Price: l.Price.Dec(), Volume: l.Volume.Dec(), Count: l.Count}
}

func fromOrders(orders []orderbook.Order) []*event.Order {
	out := make([]*event.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, event.FromOrder(o))
	}
	return out
}

func fromExecution(x *orderbook.Execution) *rpc.ExecutionResponse {
	resp := &rpc.ExecutionResponse{
		Order:    *event.FromOrder(x.Order),
		Trades:   make([]*event.Trade, 0, len(x.Trades)),
		Received: x.Received.Dec(),
	}
	for _, t := range x.Trades {
		resp.Trades = append(resp.Trades, event.FromTrade(t))
	}
	if len(x.Expired) > 0 {
		resp.Expired = fromOrders(x.Expired)
	}
	return resp
}
