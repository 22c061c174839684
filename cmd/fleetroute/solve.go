package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fleetroute/internal/api"
	"fleetroute/internal/config"
	"fleetroute/internal/logger"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
)

type solveFlags struct {
	file          string
	timeBudget    time.Duration
	maxMoves      int
	returnToDepot bool
	verbose       bool
}

type solveOutput struct {
	Routes         map[string][]int   `json:"routes"`
	TotalDistance  float64            `json:"totalDistance"`
	RouteDistances map[string]float64 `json:"routeDistances"`
	RouteLoads     map[string]float64 `json:"routeLoads"`
	Metrics        opt.Metrics        `json:"metrics"`
}

type infeasibleOutput struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	Nodes  []int  `json:"nodes,omitempty"`
}

func newSolveCmd(opts *rootOptions) *cobra.Command {
	f := &solveFlags{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve an instance file and print the routes as JSON",
		Example: `  fleetroute solve -f instance.json
  cat instance.json | fleetroute solve -f - --time-budget 2s --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runSolve(cmd, cfg, f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "instance JSON file, - for stdin")
	cmd.Flags().DurationVar(&f.timeBudget, "time-budget", 0, "local search wall-clock limit, 0 for unlimited")
	cmd.Flags().IntVar(&f.maxMoves, "max-moves", 0, "local search move limit, 0 for unlimited")
	cmd.Flags().BoolVar(&f.returnToDepot, "return-to-depot", true, "close each route at the depot")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "include distances, loads and search metrics")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSolve(cmd *cobra.Command, cfg *config.Config, f *solveFlags) error {
	req, err := readRequest(cmd, f.file)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("return-to-depot") {
		req.ReturnToDepot = &f.returnToDepot
	}
	in, err := api.BuildInstance(req, cfg.Optimizer.MaxNodes)
	if err != nil {
		return err
	}
	budget := solveBudget(cmd, cfg, req, f)

	log := logger.NewWithWriter(cmd.ErrOrStderr(), "solve", cfg.Logging.Level)
	res, m, err := opt.Solve(cmd.Context(), in, budget)
	if err != nil {
		var inf *opt.InfeasibleError
		if errors.As(err, &inf) {
			if werr := writeJSON(cmd.OutOrStdout(), infeasibleOutput{Error: "No solution found", Reason: inf.Reason, Nodes: inf.Nodes}); werr != nil {
				return werr
			}
			return &exitError{code: 2, err: err}
		}
		return err
	}
	log.Debugw("solved", map[string]any{
		"nodes":       in.N(),
		"cost":        res.TotalDistance,
		"improvement": m.Improvement(),
		"moves":       m.Moves.Total(),
		"stopReason":  m.StopReason,
	})

	if !f.verbose {
		return writeJSON(cmd.OutOrStdout(), res.Mapping())
	}
	out := solveOutput{
		Routes:         res.Mapping(),
		TotalDistance:  res.TotalDistance,
		RouteDistances: make(map[string]float64, len(res.Routes)),
		RouteLoads:     make(map[string]float64, len(res.Routes)),
		Metrics:        m,
	}
	for _, r := range res.Routes {
		out.RouteDistances[r.Label] = r.Distance
		out.RouteLoads[r.Label] = r.Load
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

// solveBudget layers flags over the request over the configured defaults.
func solveBudget(cmd *cobra.Command, cfg *config.Config, req *model.OptimizeRequest, f *solveFlags) opt.SearchBudget {
	b := opt.SearchBudget{
		TimeLimit: time.Duration(cfg.Optimizer.TimeBudgetMs) * time.Millisecond,
		MaxMoves:  cfg.Optimizer.MaxMoves,
	}
	if req.TimeBudgetMs != nil {
		b.TimeLimit = time.Duration(*req.TimeBudgetMs) * time.Millisecond
	}
	if req.MaxMoves != nil {
		b.MaxMoves = *req.MaxMoves
	}
	if cmd.Flags().Changed("time-budget") {
		b.TimeLimit = f.timeBudget
	}
	if cmd.Flags().Changed("max-moves") {
		b.MaxMoves = f.maxMoves
	}
	return b
}

func readRequest(cmd *cobra.Command, path string) (*model.OptimizeRequest, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		fh, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = fh.Close() }()
		r = fh
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
