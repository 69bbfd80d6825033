package rpc

import "scalex/domain/event"

// Amounts are base-10 integers in the currency's smallest unit, addresses
// and pool ids are 0x-prefixed hex, sides are "BUY" or "SELL".

type Empty struct{}

type PoolKey struct {
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	FeeTier uint32 `json:"feeTier"`
}

type Rules struct {
	MinTradeAmount    string `json:"minTradeAmount"`
	MinAmountMovement string `json:"minAmountMovement"`
	MinOrderSize      string `json:"minOrderSize"`
	MinPriceMovement  string `json:"minPriceMovement"`
}

type CreatePoolRequest struct {
	Caller       string  `json:"caller"`
	Key          PoolKey `json:"key"`
	Rules        Rules   `json:"rules"`
	BaseDecimals uint8   `json:"baseDecimals"`
}

type CreatePoolResponse struct {
	Pool string `json:"pool"`
}

type DepositRequest struct {
	Payer       string `json:"payer"`
	Beneficiary string `json:"beneficiary"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
}

type WithdrawRequest struct {
	Caller   string `json:"caller"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type PlaceLimitOrderRequest struct {
	Pool        string `json:"pool"`
	Caller      string `json:"caller"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	TimeInForce string `json:"timeInForce,omitempty"`
	Expiry      uint64 `json:"expiry,omitempty"`
	Deposit     string `json:"deposit,omitempty"`
}

type PlaceMarketOrderRequest struct {
	Pool    string `json:"pool"`
	Caller  string `json:"caller"`
	Side    string `json:"side"`
	Amount  string `json:"amount"`
	MinOut  string `json:"minOut,omitempty"`
	Deposit string `json:"deposit,omitempty"`
}

type ExecutionResponse struct {
	Order    event.Order    `json:"order"`
	Trades   []*event.Trade `json:"trades"`
	Expired  []*event.Order `json:"expired,omitempty"`
	Received string         `json:"received"`
}

type CancelOrderRequest struct {
	Pool    string `json:"pool"`
	Caller  string `json:"caller"`
	OrderID uint64 `json:"orderId"`
}

type OrderResponse struct {
	Found bool         `json:"found"`
	Order *event.Order `json:"order,omitempty"`
}

type SetFeesRequest struct {
	Caller string `json:"caller"`
	// Field is "maker", "taker", "protocol" or empty for all three.
	Field    string `json:"field,omitempty"`
	Maker    uint32 `json:"maker"`
	Taker    uint32 `json:"taker"`
	Protocol uint32 `json:"protocol"`
}

type FeesResponse struct {
	Maker    uint32 `json:"maker"`
	Taker    uint32 `json:"taker"`
	Protocol uint32 `json:"protocol"`
}

type SetOperatorRequest struct {
	Caller   string `json:"caller"`
	Operator string `json:"operator"`
	Allowed  bool   `json:"allowed"`
}

type ClaimFeesRequest struct {
	Caller   string `json:"caller"`
	Currency string `json:"currency"`
}

type AmountResponse struct {
	Amount string `json:"amount"`
}

type PoolRequest struct {
	Pool string `json:"pool"`
}

type PoolInfo struct {
	Pool         string  `json:"pool"`
	Key          PoolKey `json:"key"`
	Rules        Rules   `json:"rules"`
	BaseDecimals uint8   `json:"baseDecimals"`
	Operator     string  `json:"operator"`
	LastOrderID  uint64  `json:"lastOrderId"`
	BidLevels    int     `json:"bidLevels"`
	AskLevels    int     `json:"askLevels"`
	Resting      int     `json:"resting"`
}

type ListPoolsResponse struct {
	Pools []PoolInfo `json:"pools"`
}

type Level struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
	Count  int    `json:"count"`
}

type BestPriceRequest struct {
	Pool string `json:"pool"`
	Side string `json:"side"`
}

type OrderQueueRequest struct {
	Pool  string `json:"pool"`
	Side  string `json:"side"`
	Price string `json:"price"`
}

type DepthRequest struct {
	Pool string `json:"pool"`
	Side string `json:"side"`
	// From starts the walk at this price; empty starts at the best level.
	From  string `json:"from,omitempty"`
	Count int    `json:"count"`
}

type DepthResponse struct {
	Levels []Level `json:"levels"`
}

type GetOrderRequest struct {
	Pool    string `json:"pool"`
	OrderID uint64 `json:"orderId"`
}

type OpenOrdersRequest struct {
	Pool  string `json:"pool"`
	Owner string `json:"owner"`
}

type OrdersResponse struct {
	Orders []*event.Order `json:"orders"`
}

type BalanceRequest struct {
	User     string `json:"user"`
	Currency string `json:"currency"`
	// Pool selects the locked balance held by that pool; empty means free only.
	Pool string `json:"pool,omitempty"`
}

type BalanceResponse struct {
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type MinOutRequest struct {
	Pool        string `json:"pool"`
	Side        string `json:"side"`
	Amount      string `json:"amount"`
	SlippageBps uint32 `json:"slippageBps"`
}
