// Package cli provides the Cobra-based CLI for ordercore.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"ordercore/order"
	"ordercore/pricing"
	"ordercore/store"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// backend, when set, is used instead of building one from configuration.
// Tests inject a store through it.
var backend store.Backend

// app is the state shared by one command tree.
type app struct {
	v       *viper.Viper
	logger  *zap.Logger
	backend store.Backend
	owned   bool
	ready   bool
}

func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	a := &app{backend: backend}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ordercore",
		Short:         "Order core: inventory, pricing and order lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file")
	pf.String("log-level", "info", "log level: debug|info|warn|error")
	pf.String("log-format", "json", "log format: json|console")
	pf.String("store", "memory", "store backend: memory|file|sqlite|postgres|dynamodb")
	pf.String("store-file", "data/store.json", "file store path")
	pf.String("sqlite-path", "data/ordercore.db", "sqlite database path")
	pf.String("postgres-dsn", "", "postgres connection string")
	pf.String("dynamodb-region", "", "dynamodb region")
	pf.String("dynamodb-endpoint", "", "dynamodb endpoint override")
	pf.String("dynamodb-products-table", "products", "dynamodb products table")
	pf.String("dynamodb-orders-table", "orders", "dynamodb orders table")
	pf.String("tax-rate", pricing.DefaultTaxRate.String(), "tax rate applied to the subtotal")
	pf.String("shipping-cost", "0", "flat shipping cost per order")

	if a.v == nil {
		a.v = newViper(pf)
	}

	root.AddCommand(
		newProductCmd(a),
		newOrderCmd(a),
		newServeCmd(a),
		newMigrateCmd(a),
		newShellCmd(a),
	)
	return root
}

// flagKeys maps flag names to config keys where the two differ.
var flagKeys = map[string]string{
	"tax-rate":      "pricing.tax-rate",
	"shipping-cost": "pricing.shipping-cost",
	"max-page-size": "orders.max-page-size",
}

func newViper(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ORDERCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	bindFlags(v, flags)
	return v
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		key := f.Name
		if k, ok := flagKeys[f.Name]; ok {
			key = k
		}
		_ = v.BindPFlag(key, f)
	})
}

// setup configures the tree and opens the store. It runs once per command tree.
func (a *app) setup(ctx context.Context) error {
	if a.ready {
		return nil
	}
	if err := a.configure(); err != nil {
		return err
	}

	if a.backend == nil {
		b, err := store.NewStore(ctx, a.storeConfig())
		if err != nil {
			return fmt.Errorf("open %s store: %w", a.v.GetString("store"), err)
		}
		a.backend, a.owned = b, true
		a.logger.Debug("store opened", zap.String("kind", a.v.GetString("store")))
	}
	a.ready = true
	return nil
}

// configure reads the config file and builds the logger.
func (a *app) configure() error {
	if a.ready {
		return nil
	}
	if cfg := a.v.GetString("config"); cfg != "" {
		a.v.SetConfigFile(cfg)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if a.logger == nil {
		logger, err := newLogger(a.v.GetString("log-level"), a.v.GetString("log-format"))
		if err != nil {
			return err
		}
		a.logger = logger
	}
	return nil
}

func (a *app) storeConfig() store.Config {
	return store.Config{
		Kind:        a.v.GetString("store"),
		FilePath:    a.v.GetString("store-file"),
		SQLitePath:  a.v.GetString("sqlite-path"),
		PostgresDSN: a.v.GetString("postgres-dsn"),
		Dynamo: store.DynamoConfig{
			Region:        a.v.GetString("dynamodb-region"),
			Endpoint:      a.v.GetString("dynamodb-endpoint"),
			ProductsTable: a.v.GetString("dynamodb-products-table"),
			OrdersTable:   a.v.GetString("dynamodb-orders-table"),
		},
	}
}

func (a *app) engine() (*pricing.Engine, error) {
	rate, err := decimal.NewFromString(a.v.GetString("pricing.tax-rate"))
	if err != nil {
		return nil, fmt.Errorf("pricing.tax-rate: %w", err)
	}
	shipping, err := decimal.NewFromString(a.v.GetString("pricing.shipping-cost"))
	if err != nil {
		return nil, fmt.Errorf("pricing.shipping-cost: %w", err)
	}
	return pricing.NewEngine(rate, shipping)
}

func (a *app) orderService(opts ...order.Option) (*order.Service, error) {
	engine, err := a.engine()
	if err != nil {
		return nil, err
	}
	return order.NewService(a.backend, a.backend, engine, a.logger, opts...), nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.owned && a.backend != nil {
		if err := a.backend.Close(); err != nil && a.logger != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			r := bufio.NewReader(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "ordercore> ")
				line, err := r.ReadString('\n')
				line = strings.TrimSpace(line)
				if line == "exit" || line == "quit" {
					return nil
				}
				if line != "" {
					// Every line shares this shell's configuration and store.
					sub := newRootCmd(&app{v: a.v, logger: a.logger, backend: a.backend, ready: true})
					sub.SetArgs(strings.Fields(line))
					sub.SetIn(r)
					sub.SetOut(out)
					sub.SetErr(cmd.ErrOrStderr())
					if err := sub.ExecuteContext(cmd.Context()); err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), err)
					}
				}
				if err != nil {
					return nil
				}
			}
		},
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
