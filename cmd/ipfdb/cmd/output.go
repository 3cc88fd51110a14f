package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssargent/ipfdb/pkg/store"
)

func jsonOutput(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return strings.EqualFold(format, "json")
}

// outputJSON writes v as indented JSON
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// outputFields displays profile fields in table format, TYPE and SYMBOL first
func outputFields(w io.Writer, fields map[string]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "TYPE:\t%s\n", fields["TYPE"])
	fmt.Fprintf(tw, "SYMBOL:\t%s\n", fields["SYMBOL"])
	for _, name := range sortedKeys(fields) {
		if name == "TYPE" || name == "SYMBOL" {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", name, fields[name])
	}
}

// outputImportResult displays one import in table format
func outputImportResult(w io.Writer, res *store.ImportResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "ID:\t%s\n", res.ID)
	fmt.Fprintf(tw, "Source:\t%s\n", res.Source)
	fmt.Fprintf(tw, "Started:\t%s\n", res.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Duration:\t%s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(tw, "Profiles:\t%d\n", res.Profiles)
	fmt.Fprintf(tw, "Upserted:\t%d\n", res.Upserted)
	fmt.Fprintf(tw, "Removed:\t%d\n", res.Removed)
	fmt.Fprintf(tw, "Skipped:\t%d\n", res.Skipped)
	fmt.Fprintf(tw, "Complete:\t%t\n", res.Complete)
	if res.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", res.Error)
	}
}

// outputImports displays import history in table format
func outputImports(w io.Writer, history []*store.ImportResult) {
	if len(history) == 0 {
		fmt.Fprintln(w, "No imports found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tSOURCE\tSTARTED\tUPSERTED\tREMOVED\tCOMPLETE\tERROR")
	for _, res := range history {
		errText := res.Error
		if len(errText) > 40 {
			errText = errText[:37] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
			res.ID, res.Source, res.StartedAt.Format(time.RFC3339),
			res.Upserted, res.Removed, res.Complete, errText)
	}
}

// outputCounts displays a count per name, sorted by name
func outputCounts(w io.Writer, header string, counts map[string]int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "%s\tCOUNT\n", header)
	for _, name := range sortedKeys(counts) {
		fmt.Fprintf(tw, "%s\t%d\n", name, counts[name])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
