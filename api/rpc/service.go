package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "scalex.v1.Exchange"

// ExchangeServer is implemented by the gRPC adapter.
type ExchangeServer interface {
	CreatePool(context.Context, *CreatePoolRequest) (*CreatePoolResponse, error)
	Deposit(context.Context, *DepositRequest) (*Empty, error)
	Withdraw(context.Context, *WithdrawRequest) (*Empty, error)
	PlaceLimitOrder(context.Context, *PlaceLimitOrderRequest) (*ExecutionResponse, error)
	PlaceMarketOrder(context.Context, *PlaceMarketOrderRequest) (*ExecutionResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*OrderResponse, error)
	SetFees(context.Context, *SetFeesRequest) (*FeesResponse, error)
	SetOperator(context.Context, *SetOperatorRequest) (*Empty, error)
	ClaimProtocolFees(context.Context, *ClaimFeesRequest) (*AmountResponse, error)

	GetFees(context.Context, *Empty) (*FeesResponse, error)
	ListPools(context.Context, *Empty) (*ListPoolsResponse, error)
	GetPool(context.Context, *PoolRequest) (*PoolInfo, error)
	GetBestPrice(context.Context, *BestPriceRequest) (*Level, error)
	GetOrderQueue(context.Context, *OrderQueueRequest) (*Level, error)
	GetDepth(context.Context, *DepthRequest) (*DepthResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	GetOpenOrders(context.Context, *OpenOrdersRequest) (*OrdersResponse, error)
	GetBalance(context.Context, *BalanceRequest) (*BalanceResponse, error)
	GetMinOutForMarket(context.Context, *MinOutRequest) (*AmountResponse, error)
}

func unary[Req, Resp any](name string, call func(ExchangeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExchangeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExchangeServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreatePool", ExchangeServer.CreatePool),
		unary("Deposit", ExchangeServer.Deposit),
		unary("Withdraw", ExchangeServer.Withdraw),
		unary("PlaceLimitOrder", ExchangeServer.PlaceLimitOrder),
		unary("PlaceMarketOrder", ExchangeServer.PlaceMarketOrder),
		unary("CancelOrder", ExchangeServer.CancelOrder),
		unary("SetFees", ExchangeServer.SetFees),
		unary("SetOperator", ExchangeServer.SetOperator),
		unary("ClaimProtocolFees", ExchangeServer.ClaimProtocolFees),
		unary("GetFees", ExchangeServer.GetFees),
		unary("ListPools", ExchangeServer.ListPools),
		unary("GetPool", ExchangeServer.GetPool),
		unary("GetBestPrice", ExchangeServer.GetBestPrice),
		unary("GetOrderQueue", ExchangeServer.GetOrderQueue),
		unary("GetDepth", ExchangeServer.GetDepth),
		unary("GetOrder", ExchangeServer.GetOrder),
		unary("GetOpenOrders", ExchangeServer.GetOpenOrders),
		unary("GetBalance", ExchangeServer.GetBalance),
		unary("GetMinOutForMarket", ExchangeServer.GetMinOutForMarket),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scalex/v1/exchange",
}

func RegisterExchangeServer(s grpc.ServiceRegistrar, srv ExchangeServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the exchange service with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePool(ctx context.Context, in *CreatePoolRequest, opts ...grpc.CallOption) (*CreatePoolResponse, error) {
	return invoke[CreatePoolResponse](ctx, c, "CreatePool", in, opts)
}

func (c *Client) Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "Deposit", in, opts)
}

func (c *Client) Withdraw(ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "Withdraw", in, opts)
}

func (c *Client) PlaceLimitOrder(ctx context.Context, in *PlaceLimitOrderRequest, opts ...grpc.CallOption) (*ExecutionResponse, error) {
	return invoke[ExecutionResponse](ctx, c, "PlaceLimitOrder", in, opts)
}

func (c *Client) PlaceMarketOrder(ctx context.Context, in *PlaceMarketOrderRequest, opts ...grpc.CallOption) (*ExecutionResponse, error) {
	return invoke[ExecutionResponse](ctx, c, "PlaceMarketOrder", in, opts)
}

func (c *Client) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "CancelOrder", in, opts)
}

func (c *Client) SetFees(ctx context.Context, in *SetFeesRequest, opts ...grpc.CallOption) (*FeesResponse, error) {
	return invoke[FeesResponse](ctx, c, "SetFees", in, opts)
}

func (c *Client) SetOperator(ctx context.Context, in *SetOperatorRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c, "SetOperator", in, opts)
}

func (c *Client) ClaimProtocolFees(ctx context.Context, in *ClaimFeesRequest, opts ...grpc.CallOption) (*AmountResponse, error) {
	return invoke[AmountResponse](ctx, c, "ClaimProtocolFees", in, opts)
}

func (c *Client) GetFees(ctx context.Context, opts ...grpc.CallOption) (*FeesResponse, error) {
	return invoke[FeesResponse](ctx, c, "GetFees", &Empty{}, opts)
}

func (c *Client) ListPools(ctx context.Context, opts ...grpc.CallOption) (*ListPoolsResponse, error) {
	return invoke[ListPoolsResponse](ctx, c, "ListPools", &Empty{}, opts)
}

func (c *Client) GetPool(ctx context.Context, in *PoolRequest, opts ...grpc.CallOption) (*PoolInfo, error) {
	return invoke[PoolInfo](ctx, c, "GetPool", in, opts)
}

func (c *Client) GetBestPrice(ctx context.Context, in *BestPriceRequest, opts ...grpc.CallOption) (*Level, error) {
	return invoke[Level](ctx, c, "GetBestPrice", in, opts)
}

func (c *Client) GetOrderQueue(ctx context.Context, in *OrderQueueRequest, opts ...grpc.CallOption) (*Level, error) {
	return invoke[Level](ctx, c, "GetOrderQueue", in, opts)
}

func (c *Client) GetDepth(ctx context.Context, in *DepthRequest, opts ...grpc.CallOption) (*DepthResponse, error) {
	return invoke[DepthResponse](ctx, c, "GetDepth", in, opts)
}

func (c *Client) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "GetOrder", in, opts)
}

func (c *Client) GetOpenOrders(ctx context.Context, in *OpenOrdersRequest, opts ...grpc.CallOption) (*OrdersResponse, error) {
	return invoke[OrdersResponse](ctx, c, "GetOpenOrders", in, opts)
}

func (c *Client) GetBalance(ctx context.Context, in *BalanceRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c, "GetBalance", in, opts)
}

func (c *Client) GetMinOutForMarket(ctx context.Context, in *MinOutRequest, opts ...grpc.CallOption) (*AmountResponse, error) {
	return invoke[AmountResponse](ctx, c, "GetMinOutForMarket", in, opts)
}
