package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rentmarket/pkg/client/offerflow"
	"rentmarket/pkg/models"
)

func newOffersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "List, accept or reject offers",
	}
	cmd.AddCommand(
		newOffersListCmd(a),
		newOffersAcceptCmd(a),
		newOffersRejectCmd(a),
		newOffersExportCmd(a),
	)
	return cmd
}

// loadFlow fetches the caller's offers into a fresh flow.
func loadFlow(cmd *cobra.Command, a *app) (*offerflow.Flow, error) {
	if err := a.requireLogin(); err != nil {
		return nil, err
	}
	ctx, cancel := a.context(cmd)
	defer cancel()

	flow := offerflow.New(a.api, offerflow.Options{})
	if err := flow.Load(ctx); err != nil {
		return nil, flowError(flow, err)
	}
	return flow, nil
}

// flowError prefers the message the flow shows to the user.
func flowError(flow *offerflow.Flow, err error) error {
	if msg := flow.State().Error; msg != "" {
		return errors.New(msg)
	}
	return err
}

func newOffersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Offers made or received by you",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flow, err := loadFlow(cmd, a)
			if err != nil {
				return err
			}
			st := flow.State()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tRENT\tADDRESS\tCONTRACT\tACTIONS")
			for _, o := range st.Offers {
				contract := ""
				if o.Status == models.OfferPaid {
					contract = st.Contracts[o.ID].State.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
					o.ID, o.Status, o.RentAmount, truncate(o.PropertyAddress, 32), contract, actions(flow.Actions(o.ID)))
			}
			return w.Flush()
		},
	}
}

func actions(list []offerflow.Action) string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = string(a)
	}
	return strings.Join(out, ",")
}

func newOffersAcceptCmd(a *app) *cobra.Command {
	var gateway string
	cmd := &cobra.Command{
		Use:   "accept <offer-id>",
		Short: "Accept a pending offer and choose how to pay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(cmd, a)
			if err != nil {
				return err
			}
			if err := flow.BeginAccept(args[0]); err != nil {
				return err
			}
			if gateway != "" {
				g, err := models.ParsePaymentGateway(gateway)
				if err != nil {
					flow.CancelAccept()
					return err
				}
				if err := flow.SelectGateway(g); err != nil {
					flow.CancelAccept()
					return err
				}
			}

			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := flow.ConfirmAccept(ctx); err != nil {
				flow.CancelAccept()
				return flowError(flow, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), flow.State().Success)
			return nil
		},
	}
	cmd.Flags().StringVar(&gateway, "gateway", "", "payment gateway: "+gatewayNames())
	return cmd
}

func gatewayNames() string {
	names := make([]string, 0, 4)
	for _, g := range models.PaymentGateways() {
		names = append(names, string(g))
	}
	return strings.Join(names, ", ")
}

func newOffersRejectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <offer-id>",
		Short: "Reject a pending offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(cmd, a)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := flow.Reject(ctx, args[0]); err != nil {
				return flowError(flow, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), flow.State().Success)
			return nil
		},
	}
}

func newOffersExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download your offers as a spreadsheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			data, err := a.api.ExportOffers(ctx)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "offers.xlsx", "output file")
	return cmd
}
