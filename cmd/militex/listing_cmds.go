package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/militex-client/listings"
)

func newCarsCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cars",
		Short: "Browse vehicle listings",
	}

	var filter listings.CarFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List cars for sale",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			page, err := a.cars().List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tYEAR\tMAKE\tMODEL\tPRICE\tMILEAGE\tLOCATION")
			for _, c := range page.Results {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t$%.2f\t%d\t%s\n", c.ID, c.Year, c.Make, c.Model, c.Price, c.Mileage, c.Location)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%d of %d shown\n", len(page.Results), page.Count)
			return nil
		}),
	}
	f := list.Flags()
	f.StringVar(&filter.Search, "search", "", "free text search")
	f.StringVar(&filter.Make, "make", "", "manufacturer")
	f.StringVar(&filter.Model, "model", "", "model")
	f.IntVar(&filter.MinYear, "min-year", 0, "earliest model year")
	f.IntVar(&filter.MaxYear, "max-year", 0, "latest model year")
	f.Float64Var(&filter.MinPrice, "min-price", 0, "minimum price")
	f.Float64Var(&filter.MaxPrice, "max-price", 0, "maximum price")
	f.IntVar(&filter.Page, "page", 0, "page number")

	cmd.AddCommand(list)
	return cmd
}

func newFundraisersCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fundraisers",
		Short: "Browse fundraisers",
	}

	var pageNum int
	list := &cobra.Command{
		Use:   "list",
		Short: "List active fundraisers",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			page, err := a.fundraisers().List(cmd.Context(), pageNum)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tRAISED\tGOAL\tPROGRESS")
			for _, fr := range page.Results {
				fmt.Fprintf(tw, "%s\t%s\t$%.2f\t$%.2f\t%.0f%%\n", fr.ID, fr.Title, fr.Raised, fr.Goal, fr.Progress()*100)
			}
			return tw.Flush()
		}),
	}
	list.Flags().IntVar(&pageNum, "page", 0, "page number")

	cmd.AddCommand(list)
	return cmd
}

func newDonateCmd(withApp appRunner) *cobra.Command {
	var donation listings.Donation
	cmd := &cobra.Command{
		Use:   "donate <fundraiser-id>",
		Short: "Donate to a fundraiser",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			receipt, err := a.fundraisers().Donate(cmd.Context(), args[0], donation)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Thank you! Donated $%.2f, fundraiser has now raised $%.2f\n", receipt.Amount, receipt.Raised)
			return nil
		}),
	}
	f := cmd.Flags()
	f.Float64Var(&donation.Amount, "amount", 0, "amount to donate")
	f.StringVar(&donation.Message, "message", "", "message for the organizer")
	f.BoolVar(&donation.Anonymous, "anonymous", false, "hide your name")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
