package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"scalex/api/rpc"
	"scalex/domain/ledger"
	"scalex/service"
)

const (
	owner = "0x0000000000000000000000000000000000000A11"
	alice = "0x000000000000000000000000000000000000a1cE"
	bob   = "0x0000000000000000000000000000000000000b0b"
	weth  = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func dial(t *testing.T) *rpc.Client {
	t.Helper()
	ex, err := service.New(service.Config{
		Ledger: ledger.Config{Owner: common.HexToAddress(owner), Fees: ledger.Fees{Maker: 1, Taker: 2, Protocol: 1}},
		Now:    func() uint64 { return 1_700_000_000 },
	})
	if err != nil {
		t.Fatal(err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(ex, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return rpc.NewClient(conn)
}

func createPool(t *testing.T, c *rpc.Client) string {
	t.Helper()
	resp, err := c.CreatePool(context.Background(), &rpc.CreatePoolRequest{
		Caller: owner,
		Key:    rpc.PoolKey{Base: weth, Quote: usdc, FeeTier: 20},
		Rules: rpc.Rules{
			MinTradeAmount:    "1000000000000000",
			MinAmountMovement: "100000000000000",
			MinOrderSize:      "1000000",
			MinPriceMovement:  "10000",
		},
		BaseDecimals: 18,
	})
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return resp.Pool
}

func TestTradeOverGRPC(t *testing.T) {
	c := dial(t)
	ctx := context.Background()
	pool := createPool(t, c)

	if _, err := c.Deposit(ctx, &rpc.DepositRequest{Payer: alice, Currency: weth, Amount: "1000000000000000000"}); err != nil {
		t.Fatal(err)
	}
	ask, err := c.PlaceLimitOrder(ctx, &rpc.PlaceLimitOrderRequest{
		Pool: pool, Caller: alice, Side: "sell", Price: "2000000000", Quantity: "1000000000000000000",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ask.Order.Status != "OPEN" {
		t.Fatalf("expected resting ask, got %+v", ask.Order)
	}

	best, err := c.GetBestPrice(ctx, &rpc.BestPriceRequest{Pool: pool, Side: "SELL"})
	if err != nil || best.Price != "2000000000" || best.Count != 1 {
		t.Fatalf("best ask: %+v %v", best, err)
	}

	bid, err := c.PlaceLimitOrder(ctx, &rpc.PlaceLimitOrderRequest{
		Pool: pool, Caller: bob, Side: "BUY", Price: "2000000000", Quantity: "500000000000000000",
		Deposit: "1000000000",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(bid.Trades) != 1 || bid.Order.Status != "FILLED" {
		t.Fatalf("expected a fill, got %+v", bid)
	}

	bal, err := c.GetBalance(ctx, &rpc.BalanceRequest{User: alice, Currency: weth, Pool: pool})
	if err != nil {
		t.Fatal(err)
	}
	if bal.Locked != "500000000000000000" {
		t.Errorf("expected half the ask still locked, got %+v", bal)
	}

	open, err := c.GetOpenOrders(ctx, &rpc.OpenOrdersRequest{Pool: pool, Owner: alice})
	if err != nil || len(open.Orders) != 1 {
		t.Fatalf("open orders: %+v %v", open, err)
	}
	cancelled, err := c.CancelOrder(ctx, &rpc.CancelOrderRequest{Pool: pool, Caller: alice, OrderID: ask.Order.ID})
	if err != nil || cancelled.Order.Status != "CANCELLED" {
		t.Fatalf("cancel: %+v %v", cancelled, err)
	}

	pools, err := c.ListPools(ctx)
	if err != nil || len(pools.Pools) != 1 || pools.Pools[0].Resting != 0 {
		t.Fatalf("pools: %+v %v", pools, err)
	}
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	c := dial(t)
	ctx := context.Background()
	pool := createPool(t, c)

	_, err := c.PlaceLimitOrder(ctx, &rpc.PlaceLimitOrderRequest{
		Pool: pool, Caller: alice, Side: "SELL", Price: "2000000000", Quantity: "1000000000000000000",
	})
	st := status.Convert(err)
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("insufficient balance should be FailedPrecondition, got %v", st)
	}
	var reason string
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			reason = info.Reason
		}
	}
	if reason != "InsufficientBalance" {
		t.Errorf("expected the error code as reason, got %q", reason)
	}

	if _, err := c.CreatePool(ctx, &rpc.CreatePoolRequest{Caller: alice, Key: rpc.PoolKey{Base: weth, Quote: usdc, FeeTier: 20}}); status.Code(err) != codes.PermissionDenied {
		t.Errorf("non-owner create: %v", err)
	}
	if _, err := c.GetPool(ctx, &rpc.PoolRequest{Pool: common.Hash{1}.Hex()}); status.Code(err) != codes.NotFound {
		t.Errorf("unknown pool: %v", err)
	}
	if _, err := c.GetPool(ctx, &rpc.PoolRequest{Pool: "0x12"}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("malformed pool id: %v", err)
	}
	if _, err := c.Withdraw(ctx, &rpc.WithdrawRequest{Caller: alice, Currency: weth, Amount: "-1"}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("negative amount: %v", err)
	}
}

func TestFeesOverGRPC(t *testing.T) {
	c := dial(t)
	ctx := context.Background()

	f, err := c.SetFees(ctx, &rpc.SetFeesRequest{Caller: owner, Field: "taker", Taker: 5})
	if err != nil || f.Taker != 5 || f.Maker != 1 {
		t.Fatalf("set taker: %+v %v", f, err)
	}
	if _, err := c.SetFees(ctx, &rpc.SetFeesRequest{Caller: owner, Field: "bogus"}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown field: %v", err)
	}
	claimed, err := c.ClaimProtocolFees(ctx, &rpc.ClaimFeesRequest{Caller: owner, Currency: usdc})
	if err != nil || claimed.Amount != "0" {
		t.Errorf("empty claim: %+v %v", claimed, err)
	}
}

func TestOversizedAmountIsInvalidArgument(t *testing.T) {
	c := dial(t)
	ctx := context.Background()
	pool := createPool(t, c)

	// 2^128
	const wide = "340282366920938463463374607431768211456"
	if _, err := c.Deposit(ctx, &rpc.DepositRequest{Payer: alice, Currency: weth, Amount: wide}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("deposit: %v", err)
	}
	if _, err := c.PlaceLimitOrder(ctx, &rpc.PlaceLimitOrderRequest{
		Pool: pool, Caller: alice, Side: "SELL", Price: wide, Quantity: "1000000000000000000",
	}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("limit price: %v", err)
	}
	if _, err := c.GetMinOutForMarket(ctx, &rpc.MinOutRequest{Pool: pool, Side: "BUY", Amount: wide}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("min out: %v", err)
	}
}

func TestHandlerPanicBecomesInternal(t *testing.T) {
	s := NewServer(nil, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/scalex.v1.Exchange/Deposit"}
	_, err := s.recoverPanics(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}
