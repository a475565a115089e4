package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var lookupFlags struct {
	sourceLocale string
	targetLocale string
	project      string
	max          int
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <text>",
	Short: "Show ranked translation memory matches for a segment",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLookup,
}

func init() {
	f := lookupCmd.Flags()
	f.StringVarP(&lookupFlags.sourceLocale, "source", "s", "en", "source locale")
	f.StringVarP(&lookupFlags.targetLocale, "target", "t", "", "target locale")
	f.StringVarP(&lookupFlags.project, "project", "p", "", "restrict to one project")
	f.IntVarP(&lookupFlags.max, "max", "n", 0, "maximum matches (default from server)")
	_ = lookupCmd.MarkFlagRequired("target")
}

func runLookup(_ *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	text := strings.Join(args, " ")
	resp, err := newClient(timeout).lookup(ctx, text, lookupFlags.sourceLocale, lookupFlags.targetLocale, lookupFlags.project, lookupFlags.max)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	if resp.Degraded {
		fmt.Fprintf(os.Stderr, "warning: partial results, failed backends: %s\n", strings.Join(resp.FailedBackends, ", "))
	}
	if len(resp.Matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tSOURCE\tTARGET\tBACKENDS")
	for _, m := range resp.Matches {
		fmt.Fprintf(w, "%d\t%.0f%%\t%s\t%s\t%s\n", m.Rank, m.Score*100, m.SourceText, m.TargetText, strings.Join(m.Backends, ","))
	}
	return w.Flush()
}
