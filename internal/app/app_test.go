package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/config"
	"github.com/ariefcatur/order-reconciler/internal/httpx"
	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const seedYAML = `
products:
  - id: p1
    name: Mug
    price: "12.50"
    on_hand: 4
  - id: p2
    name: Tea
    price: "3.00"
    location: backroom
    on_hand: 10
coupons:
  - id: c1
    code: welcome
    discount_type: FIXED_AMOUNT
    discount_value: "2.50"
    usage_limit: 1
    active: true
  - id: c2
    code: bulk
    discount_type: PERCENTAGE
    discount_value: "20"
    condition: "items >= 3"
    active: true
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	return path
}

func memoryConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.Store = config.StoreMemory
	cfg.SeedFile = writeSeed(t)
	return cfg
}

func TestLoadSeed(t *testing.T) {
	s, err := LoadSeed(writeSeed(t))
	require.NoError(t, err)
	require.Len(t, s.Products, 2)
	assert.Equal(t, "12.5", s.Products[0].Price.String())
	assert.Equal(t, "backroom", s.Products[1].Location)
	require.Len(t, s.Coupons, 2)
	require.NotNil(t, s.Coupons[0].UsageLimit)
	assert.Equal(t, 1, *s.Coupons[0].UsageLimit)
	assert.Equal(t, "items >= 3", s.Coupons[1].Condition)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedApplyIsRepeatable(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	o, err := a.Orders.CreateOrder(ctx, orders.CreateOrderRequest{
		UserID:          "u1",
		Items:           []orders.ItemInput{{ProductID: "p2", Location: "backroom", Qty: 3}},
		CouponCode:      "BULK",
		PaymentMethod:   "CARD",
		ShippingAddress: orders.Address{Line1: "1 Main St", City: "Hanoi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "7.20", o.FinalAmount.StringFixed(2))
}

func TestMemoryAppEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, memoryConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	busDone := make(chan error, 1)
	go func() { busDone <- a.Bus.Run(ctx, a.Dispatcher) }()
	defer func() {
		cancel()
		<-busDone
	}()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	post := func(path string, body any) *http.Response {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		resp, err := srv.Client().Post(srv.URL+path, "application/json", &buf)
		require.NoError(t, err)
		return resp
	}

	resp := post("/orders", map[string]any{
		"user_id":          "u1",
		"items":            []map[string]any{{"product_id": "p1", "qty": 2}},
		"coupon_code":      "WELCOME",
		"payment_method":   "CARD",
		"shipping_address": map[string]string{"line1": "1 Main St", "city": "Hanoi"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created httpx.CreateOrderResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, "22.50", created.Order.FinalAmount.StringFixed(2))

	resp = post("/payments/callback", httpx.PaymentCallbackReq{OrderID: created.Order.ID, Status: "SUCCESS", TransactionRef: "gw-9"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		st, err := a.Orders.GetStatus(ctx, created.Order.ID)
		return err == nil && st == orders.StatusConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	stats, err := a.Orders.GetCouponStats(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, stats.Exhausted)
}

func TestMemoryAppHasNoConsumer(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Consumer()
	assert.Error(t, err)
	assert.NotNil(t, a.Scheduler())
}
