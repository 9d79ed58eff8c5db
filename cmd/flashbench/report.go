package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gentam/flashbench/bench"
	"github.com/gentam/flashbench/chipdb"
	"github.com/gentam/flashbench/forensic"
)

func reportCmd() *cobra.Command {
	var (
		outFile  string
		offline  bool
		jedecStr string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Match the results log against the chip database",
		Long: `Aggregates the results log, compares the measured timings against the
reference database, and writes the transposed report with per-class candidate
sets and a scored final guess. With --offline the chip is not probed; pass
--jedec to supply an identification by hand.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			db, dbErr := loadDB()
			if dbErr != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", dbErr)
			}

			detected := chipdb.NormalizeJEDEC(jedecStr)
			sckMHz := flagClockMHz
			if !offline {
				d, err := openDevice()
				if err != nil {
					return err
				}
				if err := d.Flash.PowerUp(); err != nil {
					return fmt.Errorf("flash power up failed: %w", err)
				}
				defer d.Flash.PowerDown()

				if id, live, err := d.Flash.Identify(); err == nil && live {
					detected = id.Hex()
				}
				sckMHz = float64(d.BusClockHz()) / 1e6
			}

			var capacity int64
			if db != nil {
				if n, ok := db.CapacityBytes(detected); ok {
					capacity = n
				}
			}

			store := &bench.FileStore{Dir: flagDir}
			records, err := readRecords(store, flagLog)
			if err != nil {
				return err
			}

			agg := forensic.Collect(records, capacity, sckMHz)

			out, err := os.Create(resultsPath(outFile))
			if err != nil {
				return err
			}
			defer out.Close()

			if err := forensic.WriteReport(out, db, agg, detected); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Printf("%s written (%d records aggregated)\n", outFile, len(records))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "report.csv", "report file name")
	cmd.Flags().BoolVar(&offline, "offline", false, "do not probe the chip")
	cmd.Flags().StringVar(&jedecStr, "jedec", "", "identification to assume with --offline")
	return cmd
}

// readRecords loads the results log and parses every data row, skipping the
// header and anything malformed.
func readRecords(store bench.LogStore, name string) ([]bench.Record, error) {
	if !store.Exists(name) {
		return nil, fmt.Errorf("results log %q not found", name)
	}
	lines, err := store.ReadLines(name)
	if err != nil {
		return nil, err
	}

	var records []bench.Record
	for _, line := range lines {
		if line == "" || line == bench.Header {
			continue
		}
		rec, err := bench.ParseRecord(line)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
