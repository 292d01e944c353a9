package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/spf13/cobra"

	"github.com/sarchlab/l0csim/timing/cache"
	"github.com/sarchlab/l0csim/timing/harness"
	"github.com/sarchlab/l0csim/timing/trace"
)

type runFlags struct {
	configPath string
	tracePath  string
	verbose    bool
	harness    harness.Config
}

var runOpts = runFlags{harness: harness.DefaultConfig()}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the randomized testbench and print a report.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTestbench(cmd.OutOrStdout(), runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	h := &runOpts.harness

	f.StringVar(&runOpts.configPath, "config", "",
		"Path to cache configuration JSON file")
	f.StringVar(&runOpts.tracePath, "trace", "",
		"Record cache events into this SQLite file")
	f.BoolVarP(&runOpts.verbose, "verbose", "v", false,
		"Log every cache event to stderr")
	f.IntVar(&h.Requests, "requests", h.Requests,
		"Number of requests to issue")
	f.Int64Var(&h.Seed, "seed", h.Seed, "Traffic random seed")
	f.IntVar(&h.AddrPool, "addr-pool", h.AddrPool,
		"Number of distinct addresses (0: half the request ids)")
	f.Float64Var(&h.BubbleProb, "bubble", h.BubbleProb,
		"Chance a requestor idles in a cycle")
	f.Uint64Var(&h.MaxCycles, "max-cycles", h.MaxCycles,
		"Give up after this many cycles")
	f.Uint64Var(&h.Memory.MinLatency, "mem-min-latency", h.Memory.MinLatency,
		"Minimum memory latency in cycles")
	f.Uint64Var(&h.Memory.MaxLatency, "mem-max-latency", h.Memory.MaxLatency,
		"Maximum memory latency in cycles")
	f.Float64Var(&h.Memory.StallProb, "mem-stall", h.Memory.StallProb,
		"Chance memory refuses a request in a cycle")
	f.Int64Var(&h.Memory.Seed, "mem-seed", h.Memory.Seed, "Memory random seed")

	rootCmd.AddCommand(runCmd)
}

func runTestbench(out io.Writer, opts runFlags) error {
	cacheConfig := cache.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cacheConfig, err = cache.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
	}

	var hopts []harness.Option

	if opts.verbose {
		hopts = append(hopts, harness.WithLogger(slog.New(
			slog.NewTextHandler(os.Stderr,
				&slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	if opts.tracePath != "" {
		recorder, err := trace.NewSQLiteRecorder(opts.tracePath)
		if err != nil {
			return err
		}
		defer recorder.Close()

		err = recorder.RecordRun(map[string]any{
			"cache":   cacheConfig,
			"harness": opts.harness,
		})
		if err != nil {
			return err
		}

		hopts = append(hopts, harness.WithHook(recorder))
	}

	h, err := harness.New(cacheConfig, opts.harness, hopts...)
	if err != nil {
		return err
	}

	engine := sim.NewSerialEngine()
	tb := sim.NewTickingComponent("Testbench", engine, 1*sim.GHz, h)
	tb.TickLater()

	if err := engine.Run(); err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	report(out, cacheConfig, h.Result(), h.Err())

	return h.Err()
}

func report(out io.Writer, config *cache.Config, res harness.Result, err error) {
	verdict := "PASS"
	if !res.Passed {
		verdict = "FAIL"
	}

	s := res.Cache
	requests := s.Requests
	if requests == 0 {
		requests = 1 // Avoid division by zero
	}

	pct := func(n uint64) float64 {
		return 100.0 * float64(n) / float64(requests)
	}

	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "%s\n", verdict)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	fmt.Fprintf(out, "Slots: %d  Ports: %d  Ref count max: %d  Coalesce: %t\n",
		config.SlotCnt, config.ReqCnt, config.RefCntMax, config.Coalesce)
	fmt.Fprintf(out, "Total Cycles: %d\n", res.Cycles)
	fmt.Fprintf(out, "Requests issued: %d, completed: %d, retried: %d\n",
		res.Issued, res.Completed, res.Retries)
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Statuses:\n")
	fmt.Fprintf(out, "  Hit:              %6d (%5.1f%%)\n", s.Hits, pct(s.Hits))
	fmt.Fprintf(out, "  HitBeingFilled:   %6d (%5.1f%%)\n",
		s.HitsBeingFilled, pct(s.HitsBeingFilled))
	fmt.Fprintf(out, "  Miss:             %6d (%5.1f%%)\n", s.Misses, pct(s.Misses))
	fmt.Fprintf(out, "  MissCantAlloc:    %6d (%5.1f%%)\n",
		s.MissesCantAlloc, pct(s.MissesCantAlloc))
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Cache Events:\n")
	fmt.Fprintf(out, "  Coalesced:    %d\n", s.Coalesced)
	fmt.Fprintf(out, "  Mem fetches:  %d\n", s.MemFetches)
	fmt.Fprintf(out, "  Fills:        %d\n", s.Fills)
	fmt.Fprintf(out, "  Deliveries:   %d\n", s.Deliveries)
	fmt.Fprintf(out, "  Stall cycles: %d\n", s.StallCycles)
	fmt.Fprintf(out, "  Hit rate:     %.2f\n", s.HitRate())
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Memory:\n")
	fmt.Fprintf(out, "  Reordered responses: %d\n", res.Memory.Reordered)
	fmt.Fprintf(out, "  Max in flight:       %d\n", res.Memory.MaxInFlight)
	fmt.Fprintf(out, "  Stall cycles:        %d\n", res.Memory.StallCycles)
}
