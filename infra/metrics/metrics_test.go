package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCommandCounters(t *testing.T) {
	m := New()
	m.Command("place_limit", nil, time.Millisecond)
	m.Command("place_limit", errors.New("boom"), time.Millisecond)
	m.Command("cancel", nil, time.Millisecond)

	if got := testutil.ToFloat64(m.commands.WithLabelValues("place_limit", "ok")); got != 1 {
		t.Errorf("place_limit ok: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("place_limit", "error")); got != 1 {
		t.Errorf("place_limit error: expected 1, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Command("x", nil, 0)
	m.Trades("p", 3)
	m.Resting("p", 1)
	m.WALSeq(9)
	m.Outbox("NEW", 1)
	m.Delivery("kafka", nil)
}

func TestHandlerServesCollectors(t *testing.T) {
	m := New()
	m.Trades("pool-a", 2)
	m.WALSeq(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{`scalex_trades_total{pool="pool-a"} 2`, "scalex_wal_last_seq 42"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("missing %q in exposition", want)
		}
	}
}
