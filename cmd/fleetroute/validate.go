package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleetroute/internal/api"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an instance file without solving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			req, err := readRequest(cmd, file)
			if err != nil {
				return err
			}
			in, err := api.BuildInstance(req, cfg.Optimizer.MaxNodes)
			if err != nil {
				return err
			}
			var demand, capacity float64
			for _, d := range in.Demands {
				demand += d
			}
			for _, c := range in.Capacities {
				capacity += c
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes, %d vehicles, demand %g of capacity %g\n",
				in.N(), in.NumVehicles, demand, capacity)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "instance JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
