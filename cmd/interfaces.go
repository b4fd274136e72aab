package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vshark/internal/capture"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capture interfaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaces, err := capture.ListInterfaces()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESSES\tDESCRIPTION")
		for _, iface := range ifaces {
			fmt.Fprintf(w, "%s\t%s\t%s\n", iface.Name, strings.Join(iface.Addresses, ","), iface.Description)
		}
		return w.Flush()
	},
}
