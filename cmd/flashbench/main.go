// Command flashbench benchmarks an SPI NOR flash chip behind an FT2232H
// adapter and matches the measured timings against a reference database to
// identify the part.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagClockMHz float64
	flagDBPath   string
	flagDir      string
	flagLog      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flashbench",
		Short: "SPI NOR flash benchmark and forensic chip identification",
		Long: `flashbench drives a NOR flash chip over an FT2232H SPI adapter: raw
read/program/erase access, repeated timed benchmark runs, and a report that
matches the measured timings against datasheet figures to guess the part.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Float64Var(&flagClockMHz, "clock", 10, "SPI clock in MHz")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "datasheet.csv", "reference chip database")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", ".", "directory for results and reports")
	rootCmd.PersistentFlags().StringVar(&flagLog, "log", "RESULTS.CSV", "results log file name")

	rootCmd.AddCommand(idCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(programCmd())
	rootCmd.AddCommand(eraseCmd())
	rootCmd.AddCommand(unprotectCmd())
	rootCmd.AddCommand(benchCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
