package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ordercore/domain"
	"ordercore/pricing"
	"ordercore/util"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func newProductCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage inventory products",
	}
	cmd.AddCommand(
		newProductCreateCmd(a),
		newProductGetCmd(a),
		newProductUpdateCmd(a),
		newProductListCmd(a),
		newProductDeleteCmd(a),
		newProductImportCmd(a),
		newProductExportCmd(a),
	)
	return cmd
}

func parsePrice(flag, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, domain.NewInvalidProductError(flag, "must be a decimal number", raw)
	}
	return d, nil
}

func newProductCreateCmd(a *app) *cobra.Command {
	var id, name, price, category string
	var stock int
	var active bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("name required")
			}
			amount, err := parsePrice("price", price)
			if err != nil {
				return err
			}
			if id == "" {
				id = util.GenerateUUID()
			}
			p := domain.Product{ID: id, Name: name, Price: amount, Stock: stock, Category: category, IsActive: active}
			start := time.Now()
			if err := a.backend.Create(cmd.Context(), p); err != nil {
				a.logger.Error("create failed", zap.String("product_id", id), zap.Error(err))
				return err
			}
			a.logger.Info("product created",
				zap.String("product_id", id),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()))
			created, err := a.backend.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "product id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&price, "price", "0", "unit price")
	cmd.Flags().IntVar(&stock, "stock", 0, "units in stock")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().BoolVar(&active, "active", true, "whether the product can be ordered")
	return cmd
}

func newProductGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get product by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.backend.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func newProductUpdateCmd(a *app) *cobra.Command {
	var name, price, category string
	var stock int
	var active bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			p, err := a.backend.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				p.Name = name
			}
			if flags.Changed("price") {
				if p.Price, err = parsePrice("price", price); err != nil {
					return err
				}
			}
			if flags.Changed("stock") {
				p.Stock = stock
			}
			if flags.Changed("category") {
				p.Category = category
			}
			if flags.Changed("active") {
				p.IsActive = active
			}
			if err := domain.ValidateProduct(p); err != nil {
				return err
			}

			start := time.Now()
			// stock is written only when asked for, and only if the product is
			// unchanged since the read
			if flags.Changed("stock") {
				if err := a.backend.SetStock(cmd.Context(), id, p.Stock, p.UpdatedAt); err != nil {
					a.logger.Error("stock update failed", zap.String("product_id", id), zap.Error(err))
					return err
				}
			}
			if !flags.Changed("stock") || describes(flags) {
				if err := a.backend.Update(cmd.Context(), id, p); err != nil {
					a.logger.Error("update failed", zap.String("product_id", id), zap.Error(err))
					return err
				}
			}
			a.logger.Info("product updated",
				zap.String("product_id", id),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()))

			updated, err := a.backend.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), updated)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&price, "price", "", "unit price")
	cmd.Flags().IntVar(&stock, "stock", 0, "units in stock")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().BoolVar(&active, "active", true, "whether the product can be ordered")
	return cmd
}

// describes reports whether any descriptive field was set on the command line.
func describes(flags *pflag.FlagSet) bool {
	for _, name := range []string{"name", "price", "category", "active"} {
		if flags.Changed(name) {
			return true
		}
	}
	return false
}

func newProductListCmd(a *app) *cobra.Command {
	var category, sortBy, order, output, minPrice, maxPrice string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.ListFilter{
				Category:   category,
				ActiveOnly: activeOnly,
				SortBy:     sortBy,
				Order:      order,
			}
			if cmd.Flags().Changed("min-price") {
				d, err := parsePrice("min-price", minPrice)
				if err != nil {
					return err
				}
				filter.MinPrice = &d
			}
			if cmd.Flags().Changed("max-price") {
				d, err := parsePrice("max-price", maxPrice)
				if err != nil {
					return err
				}
				filter.MaxPrice = &d
			}

			out, err := a.backend.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), out)
			}
			for _, p := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "%s | %s | %s | %d | %s | %t\n",
					p.ID, p.Name, pricing.Format(p.Price), p.Stock, p.Category, p.IsActive)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&minPrice, "min-price", "", "min price")
	cmd.Flags().StringVar(&maxPrice, "max-price", "", "max price")
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "only products that can be ordered")
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "sort field: name|price|stock")
	cmd.Flags().StringVar(&order, "order", "asc", "sort order")
	cmd.Flags().StringVar(&output, "output", "", "output format")
	return cmd
}

func newProductDeleteCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !force {
				fmt.Fprintf(out, "Delete %s? (y/N): ", args[0])
				resp, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				resp = strings.TrimSpace(resp)
				if resp != "y" && resp != "Y" {
					fmt.Fprintln(out, "aborted")
					return nil
				}
			}
			if err := a.backend.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.logger.Info("product deleted", zap.String("product_id", args[0]))
			fmt.Fprintln(out, "deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation")
	return cmd
}

// productInput is the import record. A missing isActive means active and a
// missing id is generated.
type productInput struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category"`
	IsActive *bool           `json:"isActive"`
}

func (in productInput) product() domain.Product {
	p := domain.Product{
		ID:       in.ID,
		Name:     in.Name,
		Price:    in.Price,
		Stock:    in.Stock,
		Category: in.Category,
		IsActive: true,
	}
	if p.ID == "" {
		p.ID = util.GenerateUUID()
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return p
}

// parseProducts accepts a JSON array, a single object or NDJSON.
func parseProducts(b []byte) ([]domain.Product, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errors.New("empty file")
	}

	var inputs []productInput
	if b[0] == '[' {
		if err := json.Unmarshal(b, &inputs); err != nil {
			return nil, err
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(b))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var in productInput
			if err := json.Unmarshal(line, &in); err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	products := make([]domain.Product, 0, len(inputs))
	for _, in := range inputs {
		products = append(products, in.product())
	}
	return products, nil
}

func newProductImportCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import --file <file>",
		Short: "Import products from JSON or NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file required")
			}
			b, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			products, err := parseProducts(b)
			if err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			start := time.Now()
			if err := a.backend.BulkImport(cmd.Context(), products); err != nil {
				a.logger.Error("import failed", zap.String("file", file), zap.Error(err))
				return err
			}
			a.logger.Info("products imported",
				zap.Int("count", len(products)),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d products\n", len(products))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "input file")
	return cmd
}

func newProductExportCmd(a *app) *cobra.Command {
	var file, category string
	cmd := &cobra.Command{
		Use:   "export --file <file>",
		Short: "Export products to JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file required")
			}
			out, err := a.backend.List(cmd.Context(), domain.ListFilter{Category: category})
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			return os.WriteFile(file, b, 0o644)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "output file")
	cmd.Flags().StringVar(&category, "category", "", "category")
	return cmd
}
