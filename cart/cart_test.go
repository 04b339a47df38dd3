package cart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ordercore/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GetAndClear(t *testing.T) {
	cleared := ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cart", r.URL.Path)
		owner := r.Header.Get("X-User-ID")
		switch r.Method {
		case http.MethodGet:
			if owner == "ghost" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[{"productId":"p1","quantity":2,"name":"Pen","price":"2.50"}]}`))
		case http.MethodDelete:
			cleared = owner
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second)
	lines, err := c.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, lines[0].Price.Equal(decimal.RequireFromString("2.50")))

	lines, err = c.GetCart(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, c.ClearCart(context.Background(), "u1"))
	assert.Equal(t, "u1", cleared)
}

func TestHTTPClient_FailuresAreDependencyUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-User-ID") {
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
		case "garbage":
			_, _ = w.Write([]byte("not json"))
		case "slow":
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 50*time.Millisecond)
	for _, owner := range []string{"broken", "garbage", "slow"} {
		_, err := c.GetCart(context.Background(), owner)
		assert.Truef(t, domain.IsDependencyUnavailableError(err), "%s: got %v", owner, err)
	}
	assert.True(t, domain.IsDependencyUnavailableError(c.ClearCart(context.Background(), "broken")))

	down := NewHTTPClient("http://127.0.0.1:1", 50*time.Millisecond)
	_, err := down.GetCart(context.Background(), "u1")
	assert.True(t, domain.IsDependencyUnavailableError(err))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Put("u1", domain.CartLine{ProductID: "p1", Quantity: 1})

	lines, err := m.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	lines[0].Quantity = 50

	again, err := m.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, again[0].Quantity)

	require.NoError(t, m.ClearCart(ctx, "u1"))
	lines, err = m.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}
