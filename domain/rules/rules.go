// Package rules validates order sizes and prices against a pool's trading
// rules.
package rules

import (
	"github.com/holiman/uint256"

	"scalex/domain/errs"
	"scalex/pkg/fixed"
)

var ErrInvalidTradingRules = errs.New(errs.KindValidation, "InvalidTradingRules")

// Rule names reported in violations.
const (
	RulePrice          = "price"
	RuleTick           = "minPriceMovement"
	RuleLot            = "minAmountMovement"
	RuleMinTradeAmount = "minTradeAmount"
	RuleMinOrderSize   = "minOrderSize"
)

// TradingRules are fixed when the pool is created.
type TradingRules struct {
	MinTradeAmount    uint256.Int // smallest base quantity
	MinAmountMovement uint256.Int // lot size
	MinOrderSize      uint256.Int // smallest quote notional
	MinPriceMovement  uint256.Int // tick size
}

// Validate checks the rule set itself.
func (r *TradingRules) Validate() error {
	if r.MinAmountMovement.IsZero() {
		return ErrInvalidTradingRules.With(errs.F("rule", RuleLot), errs.F("value", 0))
	}
	if r.MinPriceMovement.IsZero() {
		return ErrInvalidTradingRules.With(errs.F("rule", RuleTick), errs.F("value", 0))
	}
	return nil
}

// CheckLimit validates a limit order. notional is price*quantity normalized
// to quote units.
func (r *TradingRules) CheckLimit(price, quantity, notional *uint256.Int) error {
	if price.IsZero() {
		return violation(RulePrice, price, &r.MinPriceMovement)
	}
	if !fixed.IsMultiple(price, &r.MinPriceMovement) {
		return violation(RuleTick, price, &r.MinPriceMovement)
	}
	if err := r.checkQuantity(quantity); err != nil {
		return err
	}
	if notional.Lt(&r.MinOrderSize) {
		return violation(RuleMinOrderSize, notional, &r.MinOrderSize)
	}
	return nil
}

// CheckMarketSell validates the base amount of a market sell.
func (r *TradingRules) CheckMarketSell(quantity *uint256.Int) error {
	return r.checkQuantity(quantity)
}

// CheckMarketBuy validates the quote budget of a market buy.
func (r *TradingRules) CheckMarketBuy(quoteAmount *uint256.Int) error {
	if quoteAmount.Lt(&r.MinOrderSize) {
		return violation(RuleMinOrderSize, quoteAmount, &r.MinOrderSize)
	}
	return nil
}

func (r *TradingRules) checkQuantity(quantity *uint256.Int) error {
	if !fixed.IsMultiple(quantity, &r.MinAmountMovement) {
		return violation(RuleLot, quantity, &r.MinAmountMovement)
	}
	if quantity.Lt(&r.MinTradeAmount) {
		return violation(RuleMinTradeAmount, quantity, &r.MinTradeAmount)
	}
	return nil
}

func violation(rule string, value, limit *uint256.Int) error {
	return ErrInvalidTradingRules.With(
		errs.F("rule", rule),
		errs.F("value", value.ToBig()),
		errs.F("limit", limit.ToBig()),
	)
}
