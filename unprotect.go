package flashbench

import (
	"fmt"
	"time"
)

// unprotectStrategy clears whatever protection scheme a vendor ships.
// Strategies must be idempotent and safe to run speculatively.
type unprotectStrategy func(f *Flash) error

// Vendors with a dedicated global-unprotect command get their own entry;
// everyone else goes through the generic status-register path.
var unprotectByVendor = map[byte]unprotectStrategy{
	0xBF: unprotectULBPR, // Microchip/SST26
}

// Unprotect clears block-protection bits using the live manufacturer byte to
// pick a strategy. It is best effort: unknown vendors get the generic path,
// and a device that cannot be identified is left alone.
func (f *Flash) Unprotect() error {
	id, _, err := f.Identify()
	if err != nil {
		return nil // no live chip; nothing to do
	}
	strategy, ok := unprotectByVendor[id[0]]
	if !ok {
		strategy = unprotectStatusRegisters
	}
	if err := strategy(f); err != nil {
		return fmt.Errorf("unprotect: %w", err)
	}
	return nil
}

// unprotectULBPR issues the SST26 global block-protection unlock (0x98).
func unprotectULBPR(f *Flash) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.bus.Tx([]byte{cmdGlobalUnprotect}); err != nil {
		return err
	}
	if err := f.busyWait(timeoutPageProgram); err != nil {
		return err
	}
	f.clk.Sleep(time.Millisecond)
	return nil
}

// unprotectStatusRegisters clears BP2..BP0 in SR1 and the CMP bit in SR2.
// Parts without SR2 or without the 0x50 volatile enable ignore the extra
// commands.
func unprotectStatusRegisters(f *Flash) error {
	sr1, err := f.ReadStatus()
	if err != nil {
		return err
	}
	sr2, err := f.ReadStatus2()
	if err != nil {
		return err
	}

	sr1After := byte(sr1) &^ 0x1C // BP2..BP0 (bits 4:2)
	sr2After := sr2 &^ (1 << 6)   // CMP
	if sr1After == byte(sr1) && sr2After == sr2 {
		return nil
	}

	if err := f.bus.Tx([]byte{cmdWriteEnableSR}); err != nil {
		return err
	}
	f.clk.Sleep(5 * time.Microsecond)

	if err := f.writeStatus(cmdWriteStatus, sr1After); err != nil {
		return err
	}
	return f.writeStatus(cmdWriteStatus2, sr2After)
}

func (f *Flash) writeStatus(opcode, value byte) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.bus.Tx([]byte{opcode, value}); err != nil {
		return err
	}
	return f.busyWait(timeoutPageProgram)
}
