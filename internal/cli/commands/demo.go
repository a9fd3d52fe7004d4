package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposit-go/reposit/internal/cli/ui"
	"github.com/reposit-go/reposit/pkg/repository"
)

// Shop models used by the demo command

type Customer struct {
	Id      int
	Name    string `db:",required"`
	Country string
	Orders  []*Order
}

type Order struct {
	Id         int
	CustomerId int
	Customer   *Customer
	Total      float64
	Status     string
	Lines      []*OrderLine
}

type OrderLine struct {
	OrderId  int    `db:",key,order=1"`
	LineNo   int    `db:",key,order=2"`
	Sku      string `db:",required"`
	Quantity int
	Order    *Order
}

var demoCountries = []string{"NZ", "DE", "JP", "BR"}

type demoFlags struct {
	page  int
	size  int
	reset bool
}

func newDemoCommand(g *globals) *cobra.Command {
	f := &demoFlags{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Create and query a sample shop database",
		Long: `Create the Customers, Orders and OrderLines tables, seed them on first
run, then print a page of customers with their orders and the customer count
per country.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			return runDemo(ctx, s.store, cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().IntVar(&f.page, "page", 1, "Page of customers to show, starting at 1")
	cmd.Flags().IntVar(&f.size, "size", 5, "Customers per page")
	cmd.Flags().BoolVar(&f.reset, "reset", false, "Delete existing shop rows before seeding")

	return cmd
}

func runDemo(ctx context.Context, store *repository.Store, out io.Writer, f *demoFlags) error {
	noColor := color.NoColor

	err := store.Do(ctx, func(ctx context.Context, c *repository.Context) error {
		if err := c.EnsureTables(ctx, OrderLine{}, Order{}, Customer{}); err != nil {
			return err
		}
		customers, err := repository.For[Customer](c)
		if err != nil {
			return err
		}
		if f.reset {
			if err := resetShop(ctx, c); err != nil {
				return err
			}
		}
		n, err := customers.Count(ctx, nil)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := customers.AddRange(ctx, seedShop(12)); err != nil {
			return err
		}
		ui.WriteSuccess(out, "seeded 12 customers", noColor)
		return nil
	})
	if err != nil {
		return err
	}

	return store.Do(ctx, func(ctx context.Context, c *repository.Context) error {
		customers, err := repository.For[Customer](c)
		if err != nil {
			return err
		}

		opts := repository.Query().OrderBy("Name").Page(f.page, f.size).Include("Orders.Lines")
		page, err := customers.Page(ctx, opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\nCustomers (page %d of %d, %d total)\n", page.Index, max(page.Pages(), 1), page.Total)
		t := ui.NewTable(out, []string{"Id", "Name", "Country", "Orders", "Lines", "Spent"}, noColor)
		for _, cu := range page.Items {
			lines, spent := 0, 0.0
			for _, o := range cu.Orders {
				lines += len(o.Lines)
				spent += o.Total
			}
			t.AddRow(strconv.Itoa(cu.Id), cu.Name, cu.Country,
				strconv.Itoa(len(cu.Orders)), strconv.Itoa(lines), strconv.FormatFloat(spent, 'f', 2, 64))
		}
		t.Render()

		groups, err := repository.GroupBy[string](ctx, customers, repository.GroupOptions{Key: "Country"})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nCustomers per country")
		gt := ui.NewTable(out, []string{"Country", "Customers"}, noColor)
		for _, g := range groups {
			gt.AddRow(g.Key, strconv.FormatInt(g.Count, 10))
		}
		gt.Render()

		orders, err := repository.For[Order](c)
		if err != nil {
			return err
		}
		openOrders, err := orders.Count(ctx, repository.Field("Status").Eq("open"))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nOpen orders: %d\n", openOrders)
		return nil
	})
}

// resetShop removes shop rows, dependents first
func resetShop(ctx context.Context, c *repository.Context) error {
	lines, err := repository.For[OrderLine](c)
	if err != nil {
		return err
	}
	orders, err := repository.For[Order](c)
	if err != nil {
		return err
	}
	customers, err := repository.For[Customer](c)
	if err != nil {
		return err
	}
	if _, err := lines.DeleteWhere(ctx, nil); err != nil {
		return err
	}
	if _, err := orders.DeleteWhere(ctx, nil); err != nil {
		return err
	}
	_, err = customers.DeleteWhere(ctx, nil)
	return err
}

// seedShop builds n customers, each with up to three orders of two lines.
// Keys are left zero so the database assigns them.
func seedShop(n int) []*Customer {
	out := make([]*Customer, n)
	for i := range out {
		cu := &Customer{
			Name:    fmt.Sprintf("Customer %02d", i+1),
			Country: demoCountries[i%len(demoCountries)],
		}
		for j := 0; j < i%4; j++ {
			status := "shipped"
			if j == 0 {
				status = "open"
			}
			cu.Orders = append(cu.Orders, &Order{
				Total:  float64((i+1)*10 + j),
				Status: status,
				Lines: []*OrderLine{
					{LineNo: 1, Sku: fmt.Sprintf("SKU-%d", j), Quantity: 1},
					{LineNo: 2, Sku: "SKU-GIFT", Quantity: 1},
				},
			})
		}
		out[i] = cu
	}
	return out
}
