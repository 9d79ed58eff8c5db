package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"periph.io/x/conn/v3/physic"

	"github.com/gentam/flashbench"
	"github.com/gentam/flashbench/chipdb"
)

// openDevice brings up the adapter at the requested clock and resolves the
// chip capacity from the database when one is loadable.
func openDevice() (*flashbench.Device, error) {
	d, err := flashbench.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("open adapter: %w", err)
	}
	clock := physic.Frequency(flagClockMHz * float64(physic.MegaHertz))
	if err := d.SetBusClock(clock); err != nil {
		return nil, fmt.Errorf("set clock: %w", err)
	}
	if db, err := loadDB(); err == nil {
		d.Flash.ResolveCapacity(db)
	}
	return d, nil
}

// loadDB reads the reference database. A missing or malformed file is
// reported as chipdb.ErrUnavailable; callers that can run without the
// database degrade instead of failing.
func loadDB() (*chipdb.DB, error) {
	f, err := os.Open(flagDBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chipdb.ErrUnavailable, err)
	}
	defer f.Close()
	return chipdb.Load(f)
}

// parseAddr accepts decimal and 0x-prefixed hex.
func parseAddr(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return v, nil
}

func resultsPath(name string) string {
	return filepath.Join(flagDir, name)
}
