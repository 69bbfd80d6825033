// Package grpcserver exposes the exchange over gRPC. Handlers only parse,
// call the exchange and format; every rule lives in the core.
package grpcserver

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"scalex/api/rpc"
	"scalex/domain/currency"
	"scalex/domain/event"
	"scalex/domain/ledger"
	"scalex/domain/orderbook"
	"scalex/service"
)

// Server adapts service.Exchange to rpc.ExchangeServer.
type Server struct {
	ex  *service.Exchange
	log *zap.Logger
}

var _ rpc.ExchangeServer = (*Server)(nil)

func NewServer(ex *service.Exchange, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{ex: ex, log: log.Named("grpc")}
}

// NewGRPCServer builds a grpc.Server with the exchange registered and
// request logging installed.
func NewGRPCServer(ex *service.Exchange, log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	s := NewServer(ex, log)
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logRequests, s.recoverPanics))
	g := grpc.NewServer(opts...)
	rpc.RegisterExchangeServer(g, s)
	return g
}

func (s *Server) logRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	fields := []zap.Field{zap.String("method", info.FullMethod), zap.String("code", code.String()), zap.Duration("took", time.Since(start))}
	if code == codes.Internal || code == codes.Unknown {
		s.log.Error("request failed", append(fields, zap.Error(err))...)
	} else {
		s.log.Debug("request", fields...)
	}
	return resp, err
}

// recoverPanics turns a handler panic into an Internal status so one
// request cannot stop the server.
func (s *Server) recoverPanics(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

// -------------------- Commands --------------------

func (s *Server) CreatePool(_ context.Context, req *rpc.CreatePoolRequest) (*rpc.CreatePoolResponse, error) {
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return nil, err
	}
	base, err := parseCurrency("key.base", req.Key.Base)
	if err != nil {
		return nil, err
	}
	quote, err := parseCurrency("key.quote", req.Key.Quote)
	if err != nil {
		return nil, err
	}
	tr, err := parseRules(req.Rules)
	if err != nil {
		return nil, err
	}
	key := currency.PoolKey{Base: base, Quote: quote, FeeTier: req.Key.FeeTier}
	id, err := s.ex.CreatePool(caller, key, tr, req.BaseDecimals)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.CreatePoolResponse{Pool: id.Hex()}, nil
}

func (s *Server) Deposit(_ context.Context, req *rpc.DepositRequest) (*rpc.Empty, error) {
	payer, err := parseAddress("payer", req.Payer)
	if err != nil {
		return nil, err
	}
	beneficiary := payer
	if req.Beneficiary != "" {
		if beneficiary, err = parseAddress("beneficiary", req.Beneficiary); err != nil {
			return nil, err
		}
	}
	cur, err := parseCurrency("currency", req.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.ex.Deposit(cur, amount, payer, beneficiary); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) Withdraw(_ context.Context, req *rpc.WithdrawRequest) (*rpc.Empty, error) {
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return nil, err
	}
	cur, err := parseCurrency("currency", req.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.ex.Withdraw(caller, cur, amount); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) PlaceLimitOrder(_ context.Context, req *rpc.PlaceLimitOrderRequest) (*rpc.ExecutionResponse, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	o := orderbook.LimitOrder{Expiry: req.Expiry}
	if o.Owner, err = parseAddress("caller", req.Caller); err != nil {
		return nil, err
	}
	if o.Side, err = parseSide(req.Side); err != nil {
		return nil, err
	}
	if o.TimeInForce, err = parseTimeInForce(req.TimeInForce); err != nil {
		return nil, err
	}
	if o.Price, err = parseAmount("price", req.Price); err != nil {
		return nil, err
	}
	if o.Quantity, err = parseAmount("quantity", req.Quantity); err != nil {
		return nil, err
	}
	if o.DepositAmount, err = parseOptional("deposit", req.Deposit); err != nil {
		return nil, err
	}
	exec, err := s.ex.PlaceLimitOrder(pool, o)
	if err != nil {
		return nil, toStatus(err)
	}
	return fromExecution(exec), nil
}

func (s *Server) PlaceMarketOrder(_ context.Context, req *rpc.PlaceMarketOrderRequest) (*rpc.ExecutionResponse, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	var o orderbook.MarketOrder
	if o.Owner, err = parseAddress("caller", req.Caller); err != nil {
		return nil, err
	}
	if o.Side, err = parseSide(req.Side); err != nil {
		return nil, err
	}
	if o.Amount, err = parseAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	if o.MinOut, err = parseOptional("minOut", req.MinOut); err != nil {
		return nil, err
	}
	if o.DepositAmount, err = parseOptional("deposit", req.Deposit); err != nil {
		return nil, err
	}
	exec, err := s.ex.PlaceMarketOrder(pool, o)
	if err != nil {
		return nil, toStatus(err)
	}
	return fromExecution(exec), nil
}

func (s *Server) CancelOrder(_ context.Context, req *rpc.CancelOrderRequest) (*rpc.OrderResponse, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return nil, err
	}
	o, err := s.ex.Cancel(pool, caller, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.OrderResponse{Found: true, Order: event.FromOrder(o)}, nil
}

func (s *Server) SetFees(_ context.Context, req *rpc.SetFeesRequest) (*rpc.FeesResponse, error) {
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return nil, err
	}
	switch req.Field {
	case "":
		err = s.ex.SetFees(caller, ledger.Fees{Maker: req.Maker, Taker: req.Taker, Protocol: req.Protocol})
	case "maker":
		err = s.ex.SetFeeMaker(caller, req.Maker)
	case "taker":
		err = s.ex.SetFeeTaker(caller, req.Taker)
	case "protocol":
		err = s.ex.SetFeeProtocol(caller, req.Protocol)
	default:
		return nil, invalid("field", fmt.Errorf("unknown fee field %q", req.Field))
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return s.GetFees(context.Background(), &rpc.Empty{})
}

func (s *Server) SetOperator(_ context.Context, req *rpc.SetOperatorRequest) (*rpc.Empty, error) {
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return nil, err
	}
	op, err := parseAddress("operator", req.Operator)
	if err != nil {
		return nil, err
	}
	if err := s.ex.SetOperator(caller, op, req.Allowed); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *Server) ClaimProtocolFees(_ context.Context, req *rpc.ClaimFeesRequest) (*rpc.AmountResponse, error) {
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return nil, err
	}
	cur, err := parseCurrency("currency", req.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := s.ex.ClaimProtocolFees(caller, cur)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.AmountResponse{Amount: amount.Dec()}, nil
}

// -------------------- Queries --------------------

func (s *Server) GetFees(context.Context, *rpc.Empty) (*rpc.FeesResponse, error) {
	f := s.ex.Fees()
	return &rpc.FeesResponse{Maker: f.Maker, Taker: f.Taker, Protocol: f.Protocol}, nil
}

func (s *Server) ListPools(context.Context, *rpc.Empty) (*rpc.ListPoolsResponse, error) {
	pools := s.ex.Pools()
	resp := &rpc.ListPoolsResponse{Pools: make([]rpc.PoolInfo, 0, len(pools))}
	for _, p := range pools {
		resp.Pools = append(resp.Pools, fromPool(p))
	}
	return resp, nil
}

func (s *Server) GetPool(_ context.Context, req *rpc.PoolRequest) (*rpc.PoolInfo, error) {
	id, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	p, err := s.ex.Pool(id)
	if err != nil {
		return nil, toStatus(err)
	}
	info := fromPool(p)
	return &info, nil
}

func (s *Server) GetBestPrice(_ context.Context, req *rpc.BestPriceRequest) (*rpc.Level, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	levels, err := s.ex.Depth(pool, side, 1)
	if err != nil {
		return nil, toStatus(err)
	}
	if len(levels) == 0 {
		return &rpc.Level{Price: "0", Volume: "0"}, nil
	}
	l := fromLevel(levels[0])
	return &l, nil
}

func (s *Server) GetOrderQueue(_ context.Context, req *rpc.OrderQueueRequest) (*rpc.Level, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		return nil, err
	}
	n, volume, err := s.ex.OrderQueue(pool, side, price)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Level{Price: price.Dec(), Volume: volume.Dec(), Count: n}, nil
}

func (s *Server) GetDepth(_ context.Context, req *rpc.DepthRequest) (*rpc.DepthResponse, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	from, err := parseOptional("from", req.From)
	if err != nil {
		return nil, err
	}
	var levels []orderbook.LevelView
	if from == nil {
		levels, err = s.ex.Depth(pool, side, req.Count)
	} else {
		levels, err = s.ex.NextBestPrices(pool, side, from, req.Count)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &rpc.DepthResponse{Levels: make([]rpc.Level, 0, len(levels))}
	for _, l := range levels {
		resp.Levels = append(resp.Levels, fromLevel(l))
	}
	return resp, nil
}

func (s *Server) GetOrder(_ context.Context, req *rpc.GetOrderRequest) (*rpc.OrderResponse, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	o, found, err := s.ex.Order(pool, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	if !found {
		return &rpc.OrderResponse{}, nil
	}
	return &rpc.OrderResponse{Found: true, Order: event.FromOrder(o)}, nil
}

func (s *Server) GetOpenOrders(_ context.Context, req *rpc.OpenOrdersRequest) (*rpc.OrdersResponse, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	orders, err := s.ex.OpenOrders(pool, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.OrdersResponse{Orders: fromOrders(orders)}, nil
}

func (s *Server) GetBalance(_ context.Context, req *rpc.BalanceRequest) (*rpc.BalanceResponse, error) {
	user, err := parseAddress("user", req.User)
	if err != nil {
		return nil, err
	}
	cur, err := parseCurrency("currency", req.Currency)
	if err != nil {
		return nil, err
	}
	locked := new(uint256.Int)
	if req.Pool != "" {
		pool, err := parsePool(req.Pool)
		if err != nil {
			return nil, err
		}
		locked = s.ex.LockedBalance(user, cur, pool)
	}
	return &rpc.BalanceResponse{Free: s.ex.Balance(user, cur).Dec(), Locked: locked.Dec()}, nil
}

func (s *Server) GetMinOutForMarket(_ context.Context, req *rpc.MinOutRequest) (*rpc.AmountResponse, error) {
	pool, err := parsePool(req.Pool)
	if err != nil {
		return nil, err
	}
	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	out, err := s.ex.MinOutForMarket(pool, amount, side, req.SlippageBps)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.AmountResponse{Amount: out.Dec()}, nil
}
