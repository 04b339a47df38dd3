package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ordercore/api"
	"ordercore/cart"
	"ordercore/metrics"
	"ordercore/order"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", a.v.GetString("http-addr"))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return a.serve(ctx, ln)
		},
	}
	f := cmd.Flags()
	f.String("http-addr", ":8080", "HTTP listen address")
	f.String("cart-url", "", "base URL of the cart service; from-cart orders are disabled when empty")
	f.Duration("cart-timeout", cart.DefaultTimeout, "cart service request timeout")
	f.Int("max-page-size", order.DefaultMaxPageSize, "largest page size accepted when listing orders")
	bindFlags(a.v, f)
	return cmd
}

func (a *app) newRouter() (*gin.Engine, error) {
	reg := metrics.NewRegistry()
	opts := []order.Option{
		order.WithMetrics(reg.Orders),
		order.WithMaxPageSize(a.v.GetInt("orders.max-page-size")),
	}
	if url := a.v.GetString("cart-url"); url != "" {
		opts = append(opts, order.WithCart(cart.NewHTTPClient(url, a.v.GetDuration("cart-timeout"))))
	} else {
		a.logger.Warn("cart-url not set, orders from cart are disabled")
	}
	svc, err := a.orderService(opts...)
	if err != nil {
		return nil, err
	}
	return api.NewRouter(api.RouterConfig{
		Orders:  svc,
		Logger:  a.logger,
		Metrics: reg,
	}), nil
}

// serve runs the API on ln until ctx is done, then drains in-flight requests.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	gin.SetMode(gin.ReleaseMode)
	router, err := a.newRouter()
	if err != nil {
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("HTTP server stopped")
	return nil
}
