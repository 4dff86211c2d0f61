package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	app "github.com/okian/crimecast/internal/app"
)

type reloadOptions struct {
	pid     int
	pidFile string
}

func newReloadCmd(g *globalOptions) *cobra.Command {
	opts := &reloadOptions{}

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Reload the server's model artifact",
		Long: `Ask the running server to reload its model artifact through
POST /admin/reload. With --pid or --pid-file a SIGHUP is sent to the process
instead. When a reload fails the previous artifact keeps serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.pid > 0 || opts.pidFile != "" {
				return signalReload(cmd, g, opts)
			}
			return requestReload(cmd, g)
		},
	}

	cmd.Flags().IntVar(&opts.pid, "pid", 0, "send SIGHUP to this process id")
	cmd.Flags().StringVar(&opts.pidFile, "pid-file", "", "send SIGHUP to the process id stored in this file")
	cmd.MarkFlagsMutuallyExclusive("pid", "pid-file")
	return cmd
}

func requestReload(cmd *cobra.Command, g *globalOptions) error {
	data, status, err := NewClient(g).Post(cmd.Context(), "/admin/reload", nil)
	if err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	if status != http.StatusOK {
		return responseError(status, data)
	}

	out := cmd.OutOrStdout()
	if g.jsonOut {
		fmt.Fprintln(out, string(data))
		return nil
	}

	var h app.HealthStatus
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("decode reload response: %w", err)
	}
	fmt.Fprintf(out, "Reloaded %s (generation %d)\n", h.ModelPath, h.Generation)
	return nil
}

func signalReload(cmd *cobra.Command, g *globalOptions, opts *reloadOptions) error {
	pid := opts.pid
	if opts.pidFile != "" {
		data, err := os.ReadFile(opts.pidFile)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("PID file not found: %s (server may not be running)", opts.pidFile)
			}
			return fmt.Errorf("failed to read PID file: %w", err)
		}
		pidStr := strings.TrimSpace(string(data))
		if pid, err = strconv.Atoi(pidStr); err != nil || pid <= 0 {
			return fmt.Errorf("invalid PID in file: %s", pidStr)
		}
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %d", pid)
	}
	if err := process.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}

	out := cmd.OutOrStdout()
	if g.jsonOut {
		fmt.Fprintf(out, `{"status":"reload_requested","pid":%d}`+"\n", pid)
	} else {
		fmt.Fprintf(out, "Sent SIGHUP to process %d (model reload requested)\n", pid)
	}
	return nil
}
