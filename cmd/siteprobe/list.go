package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ternarybob/siteprobe/internal/scenarios"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scenarios selected by the current filter",
	RunE:  runList,
}

var listTags bool

func init() {
	listCmd.Flags().BoolVar(&listTags, "tags", false, "List the known tags instead of scenarios")
}

func runList(cmd *cobra.Command, args []string) error {
	extra, err := scenarios.LoadDir(config.Suite.DefinitionsDir, logger)
	if err != nil {
		return err
	}
	defs := scenarios.Merge(scenarios.Catalog(config.Target), extra)

	if listTags {
		for _, tag := range scenarios.Tags(defs) {
			fmt.Println(tag)
		}
		return nil
	}

	selected, err := scenarios.Select(defs, config.Suite.Filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTAGS\tDESCRIPTION")
	for _, d := range selected {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, strings.Join(d.Tags, ","), d.Description)
	}
	return w.Flush()
}
