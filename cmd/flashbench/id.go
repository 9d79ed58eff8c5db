package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func idCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Read the chip identification",
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := openDevice()
			if err != nil {
				return err
			}

			if err := d.Flash.PowerUp(); err != nil {
				return fmt.Errorf("flash power up failed: %w", err)
			}
			defer d.Flash.PowerDown()

			if statusOnly {
				sr, err := d.Flash.ReadStatus()
				if err != nil {
					return fmt.Errorf("read status register failed: %w", err)
				}
				fmt.Println(sr)
				return nil
			}

			id, live, err := d.Flash.Identify()
			if err != nil {
				return fmt.Errorf("identification failed: %w", err)
			}

			vendor := id.Vendor()
			if vendor == "" {
				vendor = "unknown vendor"
			}
			fmt.Printf("%s\t%s\n", id, vendor)
			if !live {
				fmt.Println("(cached: chip did not answer the last probe)")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&statusOnly, "status", "s", false, "just print the status register")
	return cmd
}
