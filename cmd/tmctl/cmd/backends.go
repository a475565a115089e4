package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the declared backends and their state",
	Args:  cobra.NoArgs,
	RunE:  runBackends,
}

func runBackends(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	statuses, err := newClient(timeout).backends(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(statuses)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENGINE\tADDRESS\tWEIGHT\tMIN\tENABLED\tBREAKER\tWRITABLE")
	for _, s := range statuses {
		breaker := s.Breaker
		if breaker == "" {
			breaker = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%t\t%s\t%t\n",
			s.Name, s.Engine, s.Addr(), s.Weight, s.MinScore, s.Enabled, breaker, s.Writable)
	}
	return w.Flush()
}
