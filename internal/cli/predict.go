package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/crimecast/internal/adapters/artifact"
	"github.com/okian/crimecast/internal/adapters/http/api"
	app "github.com/okian/crimecast/internal/app"
	"github.com/okian/crimecast/internal/domain/model"
	"github.com/okian/crimecast/internal/domain/registry"
	"github.com/okian/crimecast/pkg/logger"
)

type predictOptions struct {
	modelPath     string
	file          string
	set           []string
	clampNegative bool
	strictSchema  bool
}

func newPredictCmd(g *globalOptions) *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the total crime count of a municipality",
		Long: `Predict the total crime count from education indicators.

With --model the artifact is loaded locally; otherwise the request is sent to
the server. Inputs come from a JSON file (--file, "-" for stdin) or from
key=value pairs (--set), using the keys of POST /predict.`,
		Example: `  crimecastctl predict --model models/model.json \
    --set municipality=Recife --set year=2024 --set ideb=5.2 ...
  crimecastctl predict --file request.json --server http://localhost:8000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.modelPath, "model", "m", "", "predict locally from this artifact instead of the server")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", `JSON request file ("-" for stdin)`)
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "request field as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.clampNegative, "clamp-negative", false, "map negative predictions to zero (local only)")
	cmd.Flags().BoolVar(&opts.strictSchema, "strict", false, "reject rows missing an artifact column (local only)")
	cmd.MarkFlagsMutuallyExclusive("file", "set")
	cmd.MarkFlagsOneRequired("file", "set")
	return cmd
}

func runPredict(cmd *cobra.Command, g *globalOptions, opts *predictOptions) error {
	req, err := readRequest(cmd.InOrStdin(), opts)
	if err != nil {
		return err
	}

	var res model.Result
	if opts.modelPath != "" {
		res, err = predictLocal(cmd.Context(), opts, req)
	} else {
		res, err = predictRemote(cmd.Context(), g, req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if g.jsonOut {
		return json.NewEncoder(out).Encode(res)
	}
	_, err = fmt.Fprintln(out, strconv.FormatFloat(res.Value, 'f', 2, 64))
	return err
}

// readRequest builds the request from --file or --set.
func readRequest(stdin io.Reader, opts *predictOptions) (*model.Request, error) {
	if opts.file != "" {
		var (
			data []byte
			err  error
		)
		if opts.file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(opts.file)
		}
		if err != nil {
			return nil, fmt.Errorf("read request: %w", err)
		}
		req, err := api.ParseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		return req, nil
	}

	q := url.Values{}
	for _, kv := range opts.set {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", kv)
		}
		q.Set(strings.TrimSpace(k), v)
	}
	return api.ParseQuery(q)
}

func predictLocal(ctx context.Context, opts *predictOptions, req *model.Request) (model.Result, error) {
	reg := registry.New(opts.modelPath, artifact.NewFileLoader(), registry.WithLogger(logger.Get().Named("registry")))
	if err := reg.Load(ctx); err != nil {
		return model.Result{}, err
	}

	svc := app.New(
		app.WithRegistry(reg),
		app.WithLogger(logger.Get().Named("service")),
		app.WithClampNegative(opts.clampNegative),
		app.WithStrictSchema(opts.strictSchema),
		app.WithCacheSize(0),
	)
	return svc.Predict(ctx, req)
}

func predictRemote(ctx context.Context, g *globalOptions, req *model.Request) (model.Result, error) {
	data, status, err := NewClient(g).Post(ctx, "/predict", req)
	if err != nil {
		return model.Result{}, fmt.Errorf("failed to predict: %w", err)
	}
	if status != http.StatusOK {
		return model.Result{}, responseError(status, data)
	}

	var res model.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return model.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}
