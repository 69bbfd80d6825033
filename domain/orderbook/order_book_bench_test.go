package orderbook

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func benchFixture(b *testing.B) *fixture {
	f := newFixture(b)
	huge := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	for _, u := range []common.Address{alice, bob} {
		f.fund(u, weth, huge)
		f.fund(u, usdc, huge)
	}
	return f
}

func BenchmarkPlaceRestingOrder(b *testing.B) {
	f := benchFixture(b)
	qty := f.eth("1")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		price := uint256.NewInt(uint64(1_000_000_000 + (i%1000)*10_000))
		if _, err := f.book.PlaceLimitOrder(LimitOrder{Owner: alice, Side: Buy, Price: price, Quantity: qty}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMatchAgainstBook(b *testing.B) {
	f := benchFixture(b)
	qty := f.eth("1")
	price := f.usd("2000")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.book.PlaceLimitOrder(LimitOrder{Owner: alice, Side: Sell, Price: price, Quantity: qty}); err != nil {
			b.Fatal(err)
		}
		if _, err := f.book.PlaceLimitOrder(LimitOrder{Owner: bob, Side: Buy, Price: price, Quantity: qty}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCancel(b *testing.B) {
	f := benchFixture(b)
	qty := f.eth("1")
	ids := make([]uint64, b.N)
	for i := range ids {
		exec, err := f.book.PlaceLimitOrder(LimitOrder{Owner: alice, Side: Buy, Price: f.usd("1000"), Quantity: qty})
		if err != nil {
			b.Fatal(err)
		}
		ids[i] = exec.Order.ID
	}
	b.ResetTimer()
	for _, id := range ids {
		if _, err := f.book.Cancel(alice, id); err != nil {
			b.Fatal(err)
		}
	}
}
