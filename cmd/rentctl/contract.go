package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rentmarket/pkg/client/api"
	"rentmarket/pkg/contractdoc"
	"rentmarket/pkg/models"
)

func newContractCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Contract of a paid offer",
	}
	cmd.AddCommand(
		newContractStatusCmd(a),
		newContractSignCmd(a),
		newContractDownloadCmd(a),
		newContractRenderCmd(a),
	)
	return cmd
}

func newContractStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <offer-id>",
		Short: "Show whether the contract exists and is signed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(cmd, a)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			v := flow.ContractView(args[0])
			switch v.State {
			case models.ContractNotAvailable:
				fmt.Fprintf(out, "Contract not available: %s\n", v.Reason)
			case models.ContractUnsigned:
				fmt.Fprintf(out, "Contract %s is waiting for your signature\n", v.Contract.ContractNumber)
			case models.ContractSigned:
				fmt.Fprintf(out, "Contract %s signed on %s\n", v.Contract.ContractNumber, v.SignedAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newContractSignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <offer-id>",
		Short: "Sign the contract with your stored signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(cmd, a)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := flow.Sign(ctx, args[0]); err != nil {
				return flowError(flow, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), flow.State().Success)
			return nil
		},
	}
}

func newContractDownloadCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <offer-id>",
		Short: "Save the contract rendered by the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(cmd, a)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			doc, err := flow.Download(ctx, args[0])
			if err != nil {
				return flowError(flow, err)
			}
			if err := os.WriteFile(out, doc, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "contract.html", "output file")
	return cmd
}

// ownSignature serves the logged in user's signature to the generator.
type ownSignature struct {
	api *api.Client
}

func (s ownSignature) GetSignature(ctx context.Context, _ string) (string, error) {
	return s.api.Signature(ctx)
}

func newContractRenderCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "render <offer-id>",
		Short: "Render a draft of the contract locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(cmd, a)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			offer, err := a.api.Offer(ctx, args[0])
			if err != nil {
				return err
			}
			me, err := a.api.Me(ctx)
			if err != nil {
				return err
			}

			var opts []contractdoc.Option
			if v := flow.ContractView(args[0]); v.Contract != nil {
				opts = append(opts, contractdoc.WithExisting(*v.Contract))
			}
			doc := contractdoc.NewGenerator(ownSignature{api: a.api}).Generate(ctx, offer, &me, opts...)

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := contractdoc.Render(f, doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s to %s\n", doc.ContractNumber, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "contract-draft.html", "output file")
	return cmd
}
