package order

import (
	"context"
	"math"
	"testing"
	"time"

	"ordercore/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createN(t *testing.T, svc *Service, owner string, n int) []domain.Order {
	t.Helper()
	out := make([]domain.Order, 0, n)
	for i := 0; i < n; i++ {
		o, err := svc.CreateOrder(context.Background(), owner, []ItemRequest{{"A", 1}}, address())
		require.NoError(t, err)
		out = append(out, o)
	}
	return out
}

func TestListOrders_PagesNewestFirst(t *testing.T) {
	st := newFlakyStore()
	seed(t, st, "A", "1.00", 50)
	svc := newService(st, WithClock(stepClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))))
	created := createN(t, svc, "u1", 3)
	createN(t, svc, "u2", 1)
	ctx := context.Background()

	first, err := svc.ListOrders(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Total)
	assert.Equal(t, 2, first.Pages)
	assert.True(t, first.HasNext)
	assert.False(t, first.HasPrev)
	require.Len(t, first.Items, 2)

	second, err := svc.ListOrders(ctx, "u1", 2, 2)
	require.NoError(t, err)
	assert.False(t, second.HasNext)
	assert.True(t, second.HasPrev)
	require.Len(t, second.Items, 1)

	var ids []string
	for _, o := range append(first.Items, second.Items...) {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{created[2].ID, created[1].ID, created[0].ID}, ids)

	beyond, err := svc.ListOrders(ctx, "u1", 5, 2)
	require.NoError(t, err)
	assert.NotNil(t, beyond.Items)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 3, beyond.Total)
}

func TestListOrders_Arguments(t *testing.T) {
	st := newFlakyStore()
	seed(t, st, "A", "1.00", 50)
	svc := newService(st, WithMaxPageSize(2))
	createN(t, svc, "u1", 3)
	ctx := context.Background()

	_, err := svc.ListOrders(ctx, "u1", 0, 10)
	assert.True(t, domain.IsInvalidOrderError(err))
	_, err = svc.ListOrders(ctx, "u1", 1, 0)
	assert.True(t, domain.IsInvalidOrderError(err))

	capped, err := svc.ListOrders(ctx, "u1", 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 2, capped.PageSize)
	assert.Len(t, capped.Items, 2)
	assert.Equal(t, 2, capped.Pages)

	empty, err := svc.ListOrders(ctx, "nobody", 1, DefaultPageSize)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.Pages)
	assert.False(t, empty.HasNext)
}

func TestListOrders_PastTheEnd(t *testing.T) {
	st := newFlakyStore()
	seed(t, st, "A", "1.00", 50)
	svc := newService(st, WithMaxPageSize(math.MaxInt))
	createN(t, svc, "u1", 3)
	ctx := context.Background()

	tests := []struct {
		name      string
		page      int
		pageSize  int
		wantPages int
	}{
		{"next page after the last", 3, 2, 2},
		{"far page", 922337203685477580, 20, 1},
		{"largest page", math.MaxInt, DefaultPageSize, 1},
		{"largest page size", 2, math.MaxInt, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Page
			var err error
			require.NotPanics(t, func() { got, err = svc.ListOrders(ctx, "u1", tt.page, tt.pageSize) })
			require.NoError(t, err)
			assert.NotNil(t, got.Items)
			assert.Empty(t, got.Items)
			assert.Equal(t, 3, got.Total)
			assert.Equal(t, tt.wantPages, got.Pages)
			assert.Equal(t, tt.page, got.Page)
			assert.False(t, got.HasNext)
			assert.True(t, got.HasPrev)
		})
	}
}

func TestGetOrder_OwnerScoped(t *testing.T) {
	st := newFlakyStore()
	seed(t, st, "A", "1.00", 50)
	svc := newService(st)
	o := createN(t, svc, "u1", 1)[0]
	ctx := context.Background()

	a, err := svc.GetOrder(ctx, "u1", o.ID)
	require.NoError(t, err)
	b, err := svc.GetOrder(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, foreign := svc.GetOrder(ctx, "u2", o.ID)
	_, missing := svc.GetOrder(ctx, "u2", "nope")
	assert.True(t, domain.IsOrderNotFoundError(foreign))
	assert.True(t, domain.IsOrderNotFoundError(missing))
	assert.Equal(t, domain.NewOrderNotFoundError(o.ID).Error(), foreign.Error())

	admin, err := svc.AdminGetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", admin.OwnerID)
}
