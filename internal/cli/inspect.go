package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/crimecast/internal/adapters/artifact"
)

func newInspectCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect PATH",
		Short: "Validate a model artifact and describe it",
		Long: `Load a model artifact the way the server does, including the vocabulary
integrity check, and print what it declares: name, kind, checksum, tree
count for ensembles and training columns.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, info, err := artifact.NewFileLoader().Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if g.jsonOut {
				return json.NewEncoder(out).Encode(info)
			}

			fmt.Fprintf(out, "Name:     %s\n", info.Name)
			fmt.Fprintf(out, "Version:  %s\n", info.Version)
			fmt.Fprintf(out, "Kind:     %s\n", info.Kind)
			fmt.Fprintf(out, "Target:   %s\n", info.Target)
			fmt.Fprintf(out, "Checksum: %s\n", info.Checksum)
			if info.Trees > 0 {
				fmt.Fprintf(out, "Trees:    %d\n", info.Trees)
			}
			fmt.Fprintf(out, "Columns (%d):\n", len(info.Columns))
			for i, c := range info.Columns {
				fmt.Fprintf(out, "  %2d. %s\n", i+1, c)
			}
			if len(info.Columns) == 0 {
				fmt.Fprintln(out, "  (not declared)")
			}
			return nil
		},
	}
}
