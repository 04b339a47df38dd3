package cli

import (
	"context"
	"encoding/json"
	"testing"

	"ordercore/domain"
	"ordercore/order"
	"ordercore/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addressFlags = []string{
	"--full-name", "Ayesha Khan",
	"--address-line1", "12 Mall Road",
	"--city", "Lahore",
	"--state", "Punjab",
	"--postal-code", "54000",
	"--phone", "+923001234567",
}

func seededStore(t *testing.T) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemoryStore()
	require.NoError(t, st.Create(context.Background(), domain.Product{
		ID: "A", Name: "Notebook", Price: decimal.RequireFromString("10.00"), Stock: 5, IsActive: true,
	}))
	return st
}

func createOrder(t *testing.T, st store.Backend, extra ...string) domain.Order {
	t.Helper()
	args := append([]string{"order", "create", "--owner", "u1", "--item", "A:2"}, addressFlags...)
	out, err := run(t, st, append(args, extra...)...)
	require.NoError(t, err)
	var o domain.Order
	require.NoError(t, json.Unmarshal([]byte(out), &o))
	return o
}

func TestOrderCreate(t *testing.T) {
	st := seededStore(t)
	o := createOrder(t, st)

	assert.Equal(t, "u1", o.OwnerID)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.Equal(t, "PK", o.ShippingAddress.Country)
	assert.True(t, o.Subtotal.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, o.Tax.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, o.Total.Equal(decimal.RequireFromString("21.00")))

	p, err := st.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
}

func TestOrderCreate_PricingConfig(t *testing.T) {
	st := seededStore(t)
	o := createOrder(t, st, "--tax-rate", "0", "--shipping-cost", "4.99")
	assert.True(t, o.Tax.IsZero())
	assert.True(t, o.Total.Equal(decimal.RequireFromString("24.99")))

	t.Setenv("ORDERCORE_PRICING_TAX_RATE", "0.10")
	o = createOrder(t, st, "--item", "A:1")
	assert.Equal(t, 3, o.TotalItems())
	assert.True(t, o.Tax.Equal(decimal.RequireFromString("3.00")))

	_, err := run(t, st, "--tax-rate=-1", "order", "list", "--owner", "u1")
	assert.Error(t, err)
}

func TestOrderCreate_Rejections(t *testing.T) {
	st := seededStore(t)

	_, err := run(t, st, append([]string{"order", "create", "--owner", "u1", "--item", "A:x"}, addressFlags...)...)
	assert.ErrorContains(t, err, "quantity must be an integer")

	_, err = run(t, st, append([]string{"order", "create", "--owner", "u1"}, addressFlags...)...)
	assert.True(t, domain.IsEmptyOrderError(err))

	_, err = run(t, st, append([]string{"order", "create", "--owner", "u1", "--item", "A:6"}, addressFlags...)...)
	assert.True(t, domain.IsInsufficientStockError(err))

	_, err = run(t, st, "order", "create", "--owner", "u1", "--item", "A:1")
	assert.True(t, domain.IsInvalidOrderError(err))

	p, err := st.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestOrderGetListStatus(t *testing.T) {
	st := seededStore(t)
	o := createOrder(t, st)
	createOrder(t, st, "--item", "A:1")

	_, err := run(t, st, "order", "get", o.ID)
	assert.EqualError(t, err, "--owner or --admin required")

	_, err = run(t, st, "order", "get", o.ID, "--owner", "u2")
	assert.True(t, domain.IsOrderNotFoundError(err))

	out, err := run(t, st, "order", "get", o.ID, "--owner", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, o.ID)

	out, err = run(t, st, "order", "get", o.ID, "--admin")
	require.NoError(t, err)
	assert.Contains(t, out, `"ownerId": "u1"`)

	out, err = run(t, st, "order", "list", "--owner", "u1", "--page-size", "1", "--output", "json")
	require.NoError(t, err)
	var page order.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.True(t, page.HasNext)
	require.Len(t, page.Items, 1)

	out, err = run(t, st, "order", "list", "--owner", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "page 1/1, 2 orders")

	out, err = run(t, st, "order", "list", "--owner", "u1", "--page", "922337203685477580")
	require.NoError(t, err)
	assert.Equal(t, "page 922337203685477580/1, 2 orders\n", out)

	_, err = run(t, st, "order", "list")
	assert.EqualError(t, err, "--owner required")

	out, err = run(t, st, "order", "status", o.ID, "confirmed")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "confirmed"`)

	_, err = run(t, st, "order", "status", o.ID, "delivered")
	assert.True(t, domain.IsInvalidTransitionError(err))

	_, err = run(t, st, "order", "status", o.ID, "lost")
	assert.True(t, domain.IsInvalidOrderError(err))

	_, err = run(t, st, "order", "status", "missing", "cancelled")
	assert.True(t, domain.IsOrderNotFoundError(err))
}

func TestParseItem(t *testing.T) {
	tests := []struct {
		raw     string
		want    order.ItemRequest
		wantErr bool
	}{
		{"A:2", order.ItemRequest{ProductID: "A", Quantity: 2}, false},
		{" B ", order.ItemRequest{ProductID: "B", Quantity: 1}, false},
		{"C:0", order.ItemRequest{ProductID: "C", Quantity: 0}, false},
		{"D:two", order.ItemRequest{}, true},
	}
	for _, tt := range tests {
		got, err := parseItem(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}
