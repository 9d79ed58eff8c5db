package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gentam/flashbench/bench"
)

func benchCmd() *cobra.Command {
	var (
		iterations  int
		patternStr  string
		wholeDevice bool
	)

	cmd := &cobra.Command{
		Use:   "bench [read|program|erase]",
		Short: "Run the timed benchmark suite",
		Long: `Runs repeated timed trials per block-size class and appends one record
per trial to the results log. With no operation argument all three operations
run over every class. The whole-device class reads and erases the entire chip
and is skipped unless --whole-device is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			pattern, err := bench.ParsePattern(patternStr)
			if err != nil {
				return err
			}

			d, err := openDevice()
			if err != nil {
				return err
			}
			if err := d.Flash.PowerUp(); err != nil {
				return fmt.Errorf("flash power up failed: %w", err)
			}
			defer d.Flash.PowerDown()

			store := &bench.FileStore{Dir: flagDir}
			r := bench.NewRunner(d.Flash, store, flagLog)
			r.Env = hostProbe{}
			r.Iterations = iterations
			r.BusClockMHz = float64(d.BusClockHz()) / 1e6
			r.Progress = func(format string, args ...any) {
				fmt.Printf(format+"\n", args...)
			}

			classes := bench.FixedClasses()
			if wholeDevice {
				classes = bench.Classes()
			}

			if len(args) == 1 {
				op, err := bench.ParseOperation(args[0])
				if err != nil {
					return err
				}
				for _, class := range classes {
					if _, err := r.RunSeries(class, op, pattern); err != nil {
						return fmt.Errorf("%s %s: %w", op, class.Label(), err)
					}
				}
			} else if err := r.RunSuite(classes, pattern); err != nil {
				return err
			}

			printSummaries(r.Results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "i", bench.DefaultIterations, "trials per class and operation")
	cmd.Flags().StringVarP(&patternStr, "pattern", "p", "0x55", "data pattern for program trials and erase prefills")
	cmd.Flags().BoolVar(&wholeDevice, "whole-device", false, "include the whole-device class (erases the entire chip)")
	return cmd
}

// printSummaries prints one summary line per completed series, with latencies
// in milliseconds and throughput derived from the mean latency.
func printSummaries(results []*bench.SampleSeries) {
	if len(results) == 0 {
		return
	}
	fmt.Println()
	for _, s := range results {
		st := s.Stats()
		if st.Count == 0 {
			fmt.Printf("%-7s %-10s no samples\n", s.Op, s.Class.Label())
			continue
		}
		fmt.Printf("%-7s %-10s n=%-4d mean=%.3fms p25=%.3f p50=%.3f p75=%.3f min=%.3f max=%.3f stddev=%.3f (%.3f MB/s)\n",
			s.Op, s.Class.Label(), st.Count,
			st.Mean/1000, st.P25/1000, st.P50/1000, st.P75/1000,
			st.Min/1000, st.Max/1000, st.StdDev/1000,
			bench.MBps(s.BlockSize, st.Mean))
	}
}
