/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ssargent/ipfdb/pkg/ipf"
)

// Declaration is one format declaration met while reading
type Declaration struct {
	Entry  string   `json:"entry,omitempty"`
	Type   string   `json:"type"`
	Fields []string `json:"fields"`
}

// Inspection summarizes the content of a profile file
type Inspection struct {
	Source       string                                   `json:"source"`
	Profiles     int                                      `json:"profiles"`
	Types        *orderedmap.OrderedMap[string, int]      `json:"types"`
	Declarations []Declaration                            `json:"declarations"`
	CustomFields *orderedmap.OrderedMap[string, []string] `json:"custom_fields"`
	Flushes      int                                      `json:"flushes"`
	Complete     bool                                     `json:"complete"`
}

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <file|url>",
	Short: "Summarize a profile file",
	Long: `Read a profile file and report profile counts per type, the format
declarations it contains, custom fields per type and the flush and
complete markers seen.

Examples:
  ipfdb inspect profiles.ipf.zip
  ipfdb inspect https://example.com/profiles.ipf.gz -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := runtimeFrom(cmd)
		if err != nil {
			return err
		}

		in, err := inspect(cmd, args[0], rt)
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			return outputJSON(cmd.OutOrStdout(), in)
		}
		outputInspection(cmd.OutOrStdout(), in)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func inspect(cmd *cobra.Command, location string, rt *runtime) (*Inspection, error) {
	in := &Inspection{
		Source:       location,
		Types:        orderedmap.New[string, int](),
		Declarations: []Declaration{},
		CustomFields: orderedmap.New[string, []string](),
	}

	// only zip archives have entries of their own
	var reader *ipf.StreamReader
	entry := func() string {
		if reader == nil || ipf.DetectCompression(location) != ipf.CompressionZip {
			return ""
		}
		return reader.Entry()
	}

	reader, closer, err := ipf.Open(cmd.Context(), location,
		ipf.WithFormatHandler(func(typ string, fields []string) {
			in.Declarations = append(in.Declarations, Declaration{
				Entry:  entry(),
				Type:   typ,
				Fields: append([]string{"TYPE"}, fields...),
			})
		}),
		ipf.WithFlushHandler(func() { in.Flushes++ }),
		ipf.WithCompleteHandler(func() { in.Complete = true }),
		ipf.WithParserLogger(rt.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	defer closer.Close()

	for {
		p, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return in, nil
		}
		if err != nil {
			return nil, err
		}

		in.Profiles++
		count, _ := in.Types.Get(p.Type())
		in.Types.Set(p.Type(), count+1)

		for _, name := range p.CustomFieldNames() {
			known, _ := in.CustomFields.Get(p.Type())
			if !contains(known, name) {
				in.CustomFields.Set(p.Type(), append(known, name))
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// outputInspection displays an inspection in table format
func outputInspection(w io.Writer, in *Inspection) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Source:\t%s\n", in.Source)
	fmt.Fprintf(tw, "Profiles:\t%d\n", in.Profiles)
	fmt.Fprintf(tw, "Flushes:\t%d\n", in.Flushes)
	fmt.Fprintf(tw, "Complete:\t%t\n", in.Complete)

	fmt.Fprintln(tw, "\nTYPE\tCOUNT\tCUSTOM FIELDS")
	for pair := in.Types.Oldest(); pair != nil; pair = pair.Next() {
		custom, _ := in.CustomFields.Get(pair.Key)
		fmt.Fprintf(tw, "%s\t%d\t%s\n", pair.Key, pair.Value, strings.Join(custom, ","))
	}
	tw.Flush()

	fmt.Fprintln(w, "\nDECLARATIONS")
	for _, d := range in.Declarations {
		prefix := ""
		if d.Entry != "" {
			prefix = d.Entry + ": "
		}
		fmt.Fprintf(w, "%s#%s::=%s\n", prefix, d.Type, strings.Join(d.Fields, ","))
	}
}
