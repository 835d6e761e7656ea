// cmd/v850ctl/devices.go
package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"v850-service/internal/service"
)

func newDevicesCmd(a *app) *cobra.Command {
	var scanType string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List connected bridge boards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := service.NewDiscoveryService(a.cfg, a.logger).ScanBridges(cmd.Context(), scanType)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Bridges) == 0 {
				color.New(color.FgYellow).Fprintln(out, "No bridge found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LOCATION\tVID:PID\tBOARD\tSERIAL\tCONFIDENCE")
			for _, b := range result.Bridges {
				fmt.Fprintf(w, "%s\t%s:%s\t%s\t%s\t%.2f\n",
					b.Location, b.VendorID, b.ProductID, b.Board, b.SerialNumber, b.Confidence)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&scanType, "type", "t", service.ScanAll, "scan type: all, usb or serial")
	return cmd
}
