package flashbench

import "time"

// Flash commands:
//   - [W25Q128|8.1.2 Instruction Set Table 1]
//   - [SST26VF|Table 5-1: Command Set Summary]
const (
	cmdReadData        = 0x03
	cmdPageProgram     = 0x02
	cmdSectorErase     = 0x20 // 4KB
	cmdBlock32Erase    = 0x52 // 32KB (not on all parts)
	cmdBlock64Erase    = 0xD8 // 64KB
	cmdChipErase       = 0xC7 // also 0x60 on some parts
	cmdWriteEnable     = 0x06
	cmdWriteDisable    = 0x04
	cmdReadStatus      = 0x05
	cmdReadStatus2     = 0x35
	cmdWriteStatus     = 0x01
	cmdWriteStatus2    = 0x31
	cmdWriteEnableSR   = 0x50 // volatile SR write enable; no-op on many parts
	cmdGlobalUnprotect = 0x98 // SST26 ULBPR; ignored where unsupported
	cmdJEDECID         = 0x9F
	cmdPowerDown       = 0xB9
	cmdPowerUp         = 0xAB
	cmdResetEnable     = 0x66
	cmdReset           = 0x99
)

// Geometry shared by every supported part.
const (
	PageSize    = 256
	SectorSize  = 4096
	Block32Size = 32 * 1024
	Block64Size = 64 * 1024
)

// FallbackCapacity is assumed when the chip cannot be identified or is not in
// the reference database.
const FallbackCapacity = 1 << 20 // 1 MiB

// Worst-case datasheet durations per erase granularity, used as busy-wait
// deadlines. Page program and the command-ignored sanity window are shorter.
const (
	timeoutPageProgram = 100 * time.Millisecond
	timeoutErase4K     = 1 * time.Second
	timeoutErase32K    = 2 * time.Second
	timeoutErase64K    = 4 * time.Second
	timeoutEraseChip   = 20 * time.Second

	// A just-issued erase/program must raise the busy flag within this
	// window or it was ignored.
	ignoredWindow = 3 * time.Millisecond

	busyPollInterval = 100 * time.Microsecond
)

// Identification probing.
const (
	jedecOversample = 8 // slide a 3-byte window past bus junk
	jedecRetries    = 4
)

// Manufacturer bytes considered plausible when scanning oversampled
// identification reads. Anything else is treated as bus float/junk.
var plausibleVendors = map[byte]string{
	0xBF: "Microchip/SST",
	0xEF: "Winbond",
	0xC2: "Macronix",
	0x20: "Micron",
	0x1F: "Adesto/Atmel",
	0x9D: "ISSI",
	0x34: "GigaDevice",
	0x62: "Boyamicro",
}

func plausibleVendor(m byte) bool {
	_, ok := plausibleVendors[m]
	return ok
}
