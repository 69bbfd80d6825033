package orderbook

import "scalex/domain/errs"

var (
	ErrInvalidSide              = errs.New(errs.KindValidation, "InvalidSide")
	ErrInvalidTimeInForce       = errs.New(errs.KindValidation, "InvalidTimeInForce")
	ErrInvalidOwner             = errs.New(errs.KindValidation, "InvalidOwner")
	ErrInvalidExpiry            = errs.New(errs.KindValidation, "InvalidExpiry")
	ErrInvalidSlippageTolerance = errs.New(errs.KindValidation, "InvalidSlippageTolerance")

	ErrOrderNotFound = errs.New(errs.KindState, "OrderNotFound")
	ErrOrderNotOpen  = errs.New(errs.KindState, "OrderIsNotOpenOrder")
	// ErrOrderIDExhausted: the pool has issued MaxOrderID orders.
	ErrOrderIDExhausted = errs.New(errs.KindState, "OrderIdExhausted")

	ErrOrderHasNoLiquidity = errs.New(errs.KindMarket, "OrderHasNoLiquidity")
	ErrSlippageTooHigh     = errs.New(errs.KindMarket, "SlippageTooHigh")
	ErrOrderNotFillable    = errs.New(errs.KindMarket, "OrderNotFillable")
	ErrPostOnlyWouldCross  = errs.New(errs.KindMarket, "PostOnlyWouldCross")
)
