package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	app "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/domain/vocabulary"
)

func newMunicipalitiesCmd(g *globalOptions) *cobra.Command {
	var (
		remote bool
		filter string
	)

	cmd := &cobra.Command{
		Use:     "municipalities",
		Aliases: []string{"municipios"},
		Short:   "List the municipality vocabulary with its codes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := listMunicipalities(cmd, g, remote)
			if err != nil {
				return err
			}
			if filter != "" {
				want := vocabulary.Normalize(filter)
				kept := items[:0]
				for _, m := range items {
					if strings.Contains(m.Name, want) {
						kept = append(kept, m)
					}
				}
				items = kept
			}

			out := cmd.OutOrStdout()
			if g.jsonOut {
				return json.NewEncoder(out).Encode(items)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME")
			for _, m := range items {
				fmt.Fprintf(tw, "%d\t%s\n", m.Code, m.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "read the list from the server instead of the built-in vocabulary")
	cmd.Flags().StringVar(&filter, "filter", "", "only names containing this text")
	return cmd
}

func listMunicipalities(cmd *cobra.Command, g *globalOptions, remote bool) ([]app.Municipality, error) {
	if !remote {
		names := vocabulary.Default().Names()
		items := make([]app.Municipality, len(names))
		for i, n := range names {
			items[i] = app.Municipality{Code: i, Name: n}
		}
		return items, nil
	}

	data, status, err := NewClient(g).Get(cmd.Context(), "/municipalities")
	if err != nil {
		return nil, fmt.Errorf("failed to list municipalities: %w", err)
	}
	if status != http.StatusOK {
		return nil, responseError(status, data)
	}
	var body struct {
		Items []app.Municipality `json:"items"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode municipalities: %w", err)
	}
	return body.Items, nil
}
