package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/open-sspm/intreg/internal/config"
	"github.com/open-sspm/intreg/internal/integrations/registry"
	"github.com/spf13/cobra"
)

var (
	listJSON  bool
	specsJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered integrations.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(_ context.Context, cat *catalog) error {
			if listJSON {
				return writeJSON(cmd.OutOrStdout(), cat.registry.Metadata())
			}
			return writeIntegrationTable(cmd.OutOrStdout(), cat.registry)
		})
	},
}

var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "Print the specification of every registered integration.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(_ context.Context, cat *catalog) error {
			specs := cat.registry.Specs()
			if specsJSON {
				return writeJSON(cmd.OutOrStdout(), specs)
			}
			return writeSpecs(cmd.OutOrStdout(), specs)
		})
	},
}

// withCatalog loads config, opens the catalog for the duration of fn and
// closes it afterwards.
func withCatalog(cmd *cobra.Command, fn func(context.Context, *catalog) error) error {
	logger, err := commandLogger(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cat.Close()
	return fn(ctx, cat)
}

func writeIntegrationTable(w io.Writer, reg *registry.Registry) error {
	meta := reg.Metadata()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPLATFORM\tSECRETS\tDESCRIPTION")
	for _, key := range reg.List() {
		m := meta[key]
		secretNames := strings.Join(m.Secrets, ",")
		if secretNames == "" {
			secretNames = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", key, m.Platform, secretNames, m.Description)
	}
	return tw.Flush()
}

func writeSpecs(w io.Writer, specs []registry.IntegrationSpec) error {
	for i, spec := range specs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s.%s: %s\n", spec.Platform, spec.Name, spec.Description)
		for _, p := range spec.Parameters {
			line := fmt.Sprintf("  %s: %s", p.Name, p.Type)
			if p.Required {
				line += " (required)"
			} else {
				def, err := json.Marshal(p.Default)
				if err != nil {
					return err
				}
				line += " = " + string(def)
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print metadata as JSON")
	specsCmd.Flags().BoolVar(&specsJSON, "json", false, "Print specs as JSON")
}
