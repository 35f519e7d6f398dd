package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func PortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := listPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PORT\tUSB\tVID:PID\tVENDOR\tPRODUCT")
			for _, p := range ports {
				id := "-"
				if p.IsUSB {
					id = p.VendorID + ":" + p.ProductID
				}
				product := p.Product
				if p.LikelyScanner {
					product += " (scanner)"
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", p.Name, p.IsUSB, id, p.Vendor, product)
			}
			return w.Flush()
		},
	}
	return cmd
}
