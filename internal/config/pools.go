package config

import (
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"scalex/domain/currency"
	"scalex/domain/rules"
	"scalex/pkg/fixed"
)

// PoolSpec is one pool of the seed file. Rule amounts are human decimals:
// base amounts in base units, order size and tick in quote units.
type PoolSpec struct {
	Base          currency.Currency `yaml:"base"`
	Quote         currency.Currency `yaml:"quote"`
	FeeTier       uint32            `yaml:"fee_tier"`
	BaseDecimals  uint8             `yaml:"base_decimals"`
	QuoteDecimals uint8             `yaml:"quote_decimals"`

	MinTradeAmount    decimal.Decimal `yaml:"min_trade_amount"`
	MinAmountMovement decimal.Decimal `yaml:"min_amount_movement"`
	MinOrderSize      decimal.Decimal `yaml:"min_order_size"`
	MinPriceMovement  decimal.Decimal `yaml:"min_price_movement"`
}

type poolsFile struct {
	Pools []PoolSpec `yaml:"pools"`
}

// Pool is a seed entry ready for CreatePool.
type Pool struct {
	Key          currency.PoolKey
	Rules        rules.TradingRules
	BaseDecimals uint8
}

// LoadPools reads a pool seed file.
func LoadPools(path string) ([]Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePools(data)
}

func ParsePools(data []byte) ([]Pool, error) {
	var f poolsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pools: %w", err)
	}
	out := make([]Pool, 0, len(f.Pools))
	for i, s := range f.Pools {
		p, err := s.resolve()
		if err != nil {
			return nil, fmt.Errorf("pool %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s PoolSpec) resolve() (Pool, error) {
	p := Pool{
		Key:          currency.PoolKey{Base: s.Base, Quote: s.Quote, FeeTier: s.FeeTier},
		BaseDecimals: s.BaseDecimals,
	}
	if err := p.Key.Validate(); err != nil {
		return Pool{}, err
	}
	amounts := []struct {
		name     string
		value    decimal.Decimal
		decimals uint8
		dst      *uint256.Int
	}{
		{"min_trade_amount", s.MinTradeAmount, s.BaseDecimals, &p.Rules.MinTradeAmount},
		{"min_amount_movement", s.MinAmountMovement, s.BaseDecimals, &p.Rules.MinAmountMovement},
		{"min_order_size", s.MinOrderSize, s.QuoteDecimals, &p.Rules.MinOrderSize},
		{"min_price_movement", s.MinPriceMovement, s.QuoteDecimals, &p.Rules.MinPriceMovement},
	}
	for _, a := range amounts {
		v, err := fixed.Parse(a.value.String(), a.decimals)
		if err != nil {
			return Pool{}, fmt.Errorf("%s: %w", a.name, err)
		}
		a.dst.Set(v)
	}
	if err := p.Rules.Validate(); err != nil {
		return Pool{}, err
	}
	return p, nil
}
