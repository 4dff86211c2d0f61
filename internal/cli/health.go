package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	app "github.com/okian/crimecast/internal/app"
)

func newHealthCmd(g *globalOptions) *cobra.Command {
	var ready bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the server's model state",
		Long: `Query /healthz on the running server. With --ready the command fails
unless a model is serving, which makes it usable as a readiness check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, status, err := NewClient(g).Get(cmd.Context(), "/healthz")
			if err != nil {
				return fmt.Errorf("failed to get health: %w", err)
			}
			if status != http.StatusOK {
				return responseError(status, data)
			}

			var h app.HealthStatus
			if err := json.Unmarshal(data, &h); err != nil {
				return fmt.Errorf("decode health: %w", err)
			}

			out := cmd.OutOrStdout()
			if g.jsonOut {
				fmt.Fprintln(out, string(data))
			} else {
				printHealth(cmd, h)
			}

			if ready && !h.ModelLoaded {
				return fmt.Errorf("model not loaded: %s", h.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ready, "ready", false, "fail unless a model is loaded")
	return cmd
}

func printHealth(cmd *cobra.Command, h app.HealthStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status:     %s\n", h.Status)
	fmt.Fprintf(out, "State:      %s\n", h.State)
	fmt.Fprintf(out, "Model path: %s\n", h.ModelPath)
	fmt.Fprintf(out, "Generation: %d\n", h.Generation)
	if h.Vocabulary != "" {
		fmt.Fprintf(out, "Vocabulary: %s\n", h.Vocabulary)
	}
	if h.Model != nil {
		fmt.Fprintf(out, "Model:      %s %s (%s)\n", h.Model.Name, h.Model.Version, h.Model.Kind)
	}
	if h.LoadedAt != nil {
		fmt.Fprintf(out, "Loaded at:  %s\n", h.LoadedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if h.Reason != "" {
		fmt.Fprintf(out, "Reason:     %s\n", h.Reason)
	}
	if h.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", h.LastError)
	}
}
