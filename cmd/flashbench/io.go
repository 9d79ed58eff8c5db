package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gentam/flashbench/bench"
)

func readCmd() *cobra.Command {
	var (
		addrStr string
		n       int
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read flash memory",
		RunE: func(_ *cobra.Command, _ []string) error {
			addr, err := parseAddr(addrStr)
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

			data, err := d.Flash.Read(addr, n)
			if err != nil {
				return fmt.Errorf("read flash failed: %w", err)
			}
			if outFile == "" {
				fmt.Println(hex.Dump(data))
				return nil
			}
			return os.WriteFile(outFile, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&addrStr, "addr", "a", "0x000000", "start address")
	cmd.Flags().IntVarP(&n, "n", "n", 256, "number of bytes to read")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: hexdump)")
	return cmd
}

func programCmd() *cobra.Command {
	var (
		addrStr    string
		inFile     string
		patternStr string
		size       int64
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "program",
		Short: "Erase and program flash memory from a file or a generated pattern",
		RunE: func(_ *cobra.Command, _ []string) error {
			addr, err := parseAddr(addrStr)
			if err != nil {
				return err
			}

			var data []byte
			switch {
			case inFile != "" && patternStr != "":
				return fmt.Errorf("--file and --pattern are mutually exclusive")
			case inFile != "":
				if data, err = os.ReadFile(inFile); err != nil {
					return fmt.Errorf("failed to open file: %w", err)
				}
			case patternStr != "":
				pattern, err := bench.ParsePattern(patternStr)
				if err != nil {
					return err
				}
				if size <= 0 {
					return fmt.Errorf("size must be positive")
				}
				data = make([]byte, size)
				pattern.Fill(data, 0)
			default:
				return fmt.Errorf("either --file or --pattern is required")
			}

			d, err := openDevice()
			if err != nil {
				return err
			}
			if err := d.Flash.PowerUp(); err != nil {
				return fmt.Errorf("flash power up failed: %w", err)
			}
			defer d.Flash.PowerDown()

			if err := d.Flash.Unprotect(); err != nil {
				return err
			}
			if err := d.Flash.EraseSpan(addr, int64(len(data))); err != nil {
				return fmt.Errorf("erase failed: %w", err)
			}
			if err := d.Flash.Program(addr, data); err != nil {
				return fmt.Errorf("program failed: %w", err)
			}

			if verify {
				got, err := d.Flash.Read(addr, len(data))
				if err != nil {
					return fmt.Errorf("verify read failed: %w", err)
				}
				for i := range data {
					if got[i] != data[i] {
						return fmt.Errorf("verify mismatch at 0x%06X: wrote %02X read %02X",
							addr+int64(i), data[i], got[i])
					}
				}
			}
			fmt.Printf("programmed %d bytes at 0x%06X\n", len(data), addr)
			return nil
		},
	}

	cmd.Flags().StringVarP(&addrStr, "addr", "a", "0x000000", "start address")
	cmd.Flags().StringVarP(&inFile, "file", "f", "", "input file")
	cmd.Flags().StringVarP(&patternStr, "pattern", "p", "", "generated data pattern (0x00|0xFF|0x55|random|incremental)")
	cmd.Flags().Int64VarP(&size, "size", "s", 4096, "bytes to program when using --pattern")
	cmd.Flags().BoolVar(&verify, "verify", true, "read back and compare after programming")
	return cmd
}

func eraseCmd() *cobra.Command {
	var (
		addrStr string
		size    int64
		whole   bool
	)

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase a span of flash memory",
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := openDevice()
			if err != nil {
				return err
			}
			if err := d.Flash.PowerUp(); err != nil {
				return fmt.Errorf("flash power up failed: %w", err)
			}
			defer d.Flash.PowerDown()

			if err := d.Flash.Unprotect(); err != nil {
				return err
			}

			if whole {
				if err := d.Flash.EraseChip(); err != nil {
					return fmt.Errorf("bulk erase failed: %w", err)
				}
				fmt.Println("chip erased")
				return nil
			}

			addr, err := parseAddr(addrStr)
			if err != nil {
				return err
			}
			if size <= 0 {
				return fmt.Errorf("size must be positive")
			}
			if err := d.Flash.EraseSpan(addr, size); err != nil {
				return fmt.Errorf("erase failed: %w", err)
			}
			fmt.Printf("erased %d bytes at 0x%06X (sector aligned)\n", size, addr)
			return nil
		},
	}

	cmd.Flags().StringVarP(&addrStr, "addr", "a", "0x000000", "start address")
	cmd.Flags().Int64VarP(&size, "size", "s", 4096, "number of bytes to erase")
	cmd.Flags().BoolVar(&whole, "chip", false, "bulk erase the entire device")
	return cmd
}

func unprotectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unprotect",
		Short: "Clear block-protection bits",
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := openDevice()
			if err != nil {
				return err
			}
			if err := d.Flash.PowerUp(); err != nil {
				return fmt.Errorf("flash power up failed: %w", err)
			}
			defer d.Flash.PowerDown()

			if err := d.Flash.Unprotect(); err != nil {
				return err
			}
			sr, err := d.Flash.ReadStatus()
			if err != nil {
				return err
			}
			fmt.Println(sr)
			return nil
		},
	}
}
