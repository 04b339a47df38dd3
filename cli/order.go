package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ordercore/domain"
	"ordercore/order"
	"ordercore/pricing"

	"github.com/spf13/cobra"
)

func newOrderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Create, inspect and advance orders",
	}
	cmd.AddCommand(
		newOrderCreateCmd(a),
		newOrderGetCmd(a),
		newOrderListCmd(a),
		newOrderStatusCmd(a),
	)
	return cmd
}

// parseItem reads "productId:quantity"; a bare id means one unit.
func parseItem(raw string) (order.ItemRequest, error) {
	id, qty, found := strings.Cut(strings.TrimSpace(raw), ":")
	if !found {
		return order.ItemRequest{ProductID: id, Quantity: 1}, nil
	}
	n, err := strconv.Atoi(qty)
	if err != nil {
		return order.ItemRequest{}, fmt.Errorf("item %q: quantity must be an integer", raw)
	}
	return order.ItemRequest{ProductID: id, Quantity: n}, nil
}

func newOrderCreateCmd(a *app) *cobra.Command {
	var owner string
	var items []string
	var addr domain.ShippingAddress
	cmd := &cobra.Command{
		Use:   "create --owner <id> --item <productId:qty>...",
		Short: "Place an order on behalf of an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]order.ItemRequest, 0, len(items))
			for _, raw := range items {
				it, err := parseItem(raw)
				if err != nil {
					return err
				}
				reqs = append(reqs, it)
			}
			svc, err := a.orderService()
			if err != nil {
				return err
			}
			o, err := svc.CreateOrder(cmd.Context(), owner, reqs, addr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&owner, "owner", "", "owner (user) id")
	f.StringArrayVar(&items, "item", nil, "line item as productId:quantity, repeatable")
	f.StringVar(&addr.FullName, "full-name", "", "recipient name")
	f.StringVar(&addr.AddressLine1, "address-line1", "", "address line 1")
	f.StringVar(&addr.AddressLine2, "address-line2", "", "address line 2")
	f.StringVar(&addr.City, "city", "", "city")
	f.StringVar(&addr.State, "state", "", "state or province")
	f.StringVar(&addr.PostalCode, "postal-code", "", "postal code")
	f.StringVar(&addr.Country, "country", "", "country (default "+domain.DefaultCountry+")")
	f.StringVar(&addr.Phone, "phone", "", "contact phone")
	return cmd
}

func newOrderGetCmd(a *app) *cobra.Command {
	var owner string
	var admin bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !admin && owner == "" {
				return errors.New("--owner or --admin required")
			}
			svc, err := a.orderService()
			if err != nil {
				return err
			}
			var o domain.Order
			if admin {
				o, err = svc.AdminGetOrder(cmd.Context(), args[0])
			} else {
				o, err = svc.GetOrder(cmd.Context(), owner, args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner (user) id")
	cmd.Flags().BoolVar(&admin, "admin", false, "read any order regardless of owner")
	return cmd
}

func newOrderListCmd(a *app) *cobra.Command {
	var owner, output string
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list --owner <id>",
		Short: "List an owner's orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return errors.New("--owner required")
			}
			svc, err := a.orderService()
			if err != nil {
				return err
			}
			p, err := svc.ListOrders(cmd.Context(), owner, page, pageSize)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), p)
			}
			w := cmd.OutOrStdout()
			for _, o := range p.Items {
				fmt.Fprintf(w, "%s | %s | %d | %s | %s\n",
					o.ID, o.Status, o.TotalItems(), pricing.Format(o.Total), o.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(w, "page %d/%d, %d orders\n", p.Page, p.Pages, p.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner (user) id")
	cmd.Flags().IntVar(&page, "page", 1, "page number, from 1")
	cmd.Flags().IntVar(&pageSize, "page-size", order.DefaultPageSize, "orders per page")
	cmd.Flags().StringVar(&output, "output", "", "output format")
	return cmd
}

func newOrderStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move an order to its next status or cancel it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := domain.ParseOrderStatus(args[1])
			if err != nil {
				return err
			}
			svc, err := a.orderService()
			if err != nil {
				return err
			}
			o, err := svc.UpdateStatus(cmd.Context(), args[0], next)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		},
	}
}
