package flashbench

import (
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
)

// ID is a JEDEC identification: manufacturer byte plus two device bytes.
type ID [3]byte

// String formats the identification the way it appears in log records,
// e.g. "EF 40 16".
func (id ID) String() string {
	return fmt.Sprintf("%02X %02X %02X", id[0], id[1], id[2])
}

// Hex returns the normalized compact form used as a database key, e.g. "EF4016".
func (id ID) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", id[0], id[1], id[2])
}

// Vendor returns the manufacturer name for known vendor bytes.
func (id ID) Vendor() string {
	if name, ok := plausibleVendors[id[0]]; ok {
		return name
	}
	return ""
}

// clockControl lets the identification ladder drop the bus clock for a retry
// and restore it afterwards. The Device implements it; a nil control skips
// clock stepping.
type clockControl interface {
	BusClock() physic.Frequency
	SetBusClock(f physic.Frequency) error
}

// capacityLookup resolves a normalized JEDEC id to a device size in bytes.
// The chip database implements it.
type capacityLookup interface {
	CapacityBytes(jedec string) (int64, bool)
}

// Flash talks the command protocol of one attached SPI NOR chip. All methods
// block on the calling goroutine; the handle is not safe for concurrent use.
type Flash struct {
	bus   Bus
	clk   timeSource
	clock clockControl

	id       ID
	idValid  bool
	capacity int64
}

// NewFlash returns a handle over the given bus. The capacity starts at the
// conservative fallback until ResolveCapacity is called.
func NewFlash(bus Bus) *Flash {
	return &Flash{
		bus:      bus,
		clk:      realTime{},
		capacity: FallbackCapacity,
	}
}

// Capacity returns the device size in bytes (fallback if never resolved).
func (f *Flash) Capacity() int64 { return f.capacity }

// ResolveCapacity looks the live identification up in the reference database
// and fixes the handle's capacity. Without an identification or a database
// match the fallback stays in effect.
func (f *Flash) ResolveCapacity(db capacityLookup) int64 {
	if db != nil {
		if id, _, err := f.Identify(); err == nil {
			if n, ok := db.CapacityBytes(id.Hex()); ok && n > 0 {
				f.capacity = n
			}
		}
	}
	return f.capacity
}

// PowerUp releases the chip from deep power-down.
func (f *Flash) PowerUp() error {
	if err := f.bus.Tx([]byte{cmdPowerUp}); err != nil {
		return err
	}
	f.clk.Sleep(30 * time.Microsecond) // tRES1 worst case
	return nil
}

// PowerDown puts the chip into deep power-down.
func (f *Flash) PowerDown() error {
	if err := f.bus.Tx([]byte{cmdPowerDown}); err != nil {
		return err
	}
	f.clk.Sleep(3 * time.Microsecond) // tDP
	return nil
}

// SoftReset runs the 0x66/0x99 reset pair followed by power-up. Safe on most
// parts; parts without the sequence ignore it.
func (f *Flash) SoftReset() error {
	if err := f.bus.Tx([]byte{cmdResetEnable}); err != nil {
		return err
	}
	f.clk.Sleep(10 * time.Microsecond)
	if err := f.bus.Tx([]byte{cmdReset}); err != nil {
		return err
	}
	f.clk.Sleep(time.Millisecond)
	if err := f.bus.Tx([]byte{cmdPowerUp}); err != nil {
		return err
	}
	f.clk.Sleep(time.Millisecond)
	return nil
}

// readJEDEC issues a plain 3-byte identification read.
func (f *Flash) readJEDEC() (ID, error) {
	buf := make([]byte, 4)
	buf[0] = cmdJEDECID
	if err := f.bus.Tx(buf); err != nil {
		return ID{}, err
	}
	return ID(buf[1:]), nil
}

func plausibleID(id ID) bool {
	m := id[0]
	return m != 0x00 && m != 0xFF && m != 0xFE && plausibleVendor(m)
}

// Identify reads the chip identification. It tries a plain 3-byte read first,
// then falls back to oversampled reads at a reduced bus clock with a soft
// reset before each attempt, sliding a 3-byte window over the sampled bytes
// for the first plausible manufacturer code. live reports whether the result
// came from the probe that just ran; when the probe fails but an earlier one
// succeeded, the cached identification is returned with live=false.
func (f *Flash) Identify() (id ID, live bool, err error) {
	if id, err := f.readJEDEC(); err == nil && plausibleID(id) {
		f.id, f.idValid = id, true
		return id, true, nil
	}

	if id, ok := f.identifyRobust(); ok {
		f.id, f.idValid = id, true
		return id, true, nil
	}

	if f.idValid {
		return f.id, false, nil
	}
	return ID{}, false, ErrIdentificationUnavailable
}

func (f *Flash) identifyRobust() (ID, bool) {
	// Drop to a conservative identification clock if we control the bus.
	if f.clock != nil {
		prev := f.clock.BusClock()
		if err := f.clock.SetBusClock(physic.MegaHertz); err == nil {
			defer f.clock.SetBusClock(prev)
		}
	}

	for attempt := 0; attempt < jedecRetries; attempt++ {
		if err := f.SoftReset(); err != nil {
			return ID{}, false
		}
		f.clk.Sleep(2 * time.Millisecond)

		raw := make([]byte, 1+jedecOversample)
		raw[0] = cmdJEDECID
		if err := f.bus.Tx(raw); err != nil {
			return ID{}, false
		}

		sample := raw[1:]
		for i := 0; i+3 <= len(sample); i++ {
			id := ID(sample[i : i+3])
			if plausibleID(id) {
				return id, true
			}
		}
		f.clk.Sleep(time.Millisecond)
	}
	return ID{}, false
}

// ReadStatus reads status register 1.
func (f *Flash) ReadStatus() (StatusRegister, error) {
	buf := []byte{cmdReadStatus, 0}
	if err := f.bus.Tx(buf); err != nil {
		return 0, err
	}
	return StatusRegister(buf[1]), nil
}

// ReadStatus2 reads status register 2 (0x35 on most parts).
func (f *Flash) ReadStatus2() (byte, error) {
	buf := []byte{cmdReadStatus2, 0}
	if err := f.bus.Tx(buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// checkRange enforces address+size <= capacity.
func (f *Flash) checkRange(addr, size int64) error {
	if addr < 0 || size < 0 || addr+size > f.capacity {
		return fmt.Errorf("0x%06X+%d > %d: %w", addr, size, f.capacity, ErrCapacityExceeded)
	}
	return nil
}

// ReadInto fills p from the given address, splitting the transfer to stay
// within the adapter's maximum transaction size.
func (f *Flash) ReadInto(addr int64, p []byte) error {
	const (
		maxTx    = 65536 // [FTDI-AN_108]
		cmdBytes = 4     // opcode + 24-bit address
		maxData  = maxTx - cmdBytes
	)

	if err := f.checkRange(addr, int64(len(p))); err != nil {
		return fmt.Errorf("read: %w", err)
	}

	off := 0
	for remaining := len(p); remaining > 0; {
		chunk := min(remaining, maxData)
		buf := make([]byte, cmdBytes+chunk)
		buf[0] = cmdReadData
		put24(buf[1:], addr)

		if err := f.bus.Tx(buf); err != nil {
			return fmt.Errorf("read @0x%06X: %w", addr, err)
		}
		copy(p[off:], buf[cmdBytes:])

		addr += int64(chunk)
		off += chunk
		remaining -= chunk
	}
	return nil
}

// Read returns n bytes starting at addr.
func (f *Flash) Read(addr int64, n int) ([]byte, error) {
	out := make([]byte, n)
	if err := f.ReadInto(addr, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Flash) writeEnable() error {
	return f.bus.Tx([]byte{cmdWriteEnable})
}

// pageProgram programs data that must not cross a page boundary. Unlike the
// erase paths there is no ignored-command check here: a short page program can
// complete before the first status poll would ever see the busy flag.
func (f *Flash) pageProgram(addr int64, data []byte) error {
	if len(data) > PageSize {
		return fmt.Errorf("page program: %d bytes exceeds page size", len(data))
	}
	if err := f.writeEnable(); err != nil {
		return err
	}

	buf := make([]byte, 4+len(data))
	buf[0] = cmdPageProgram
	put24(buf[1:], addr)
	copy(buf[4:], data)

	if err := f.bus.Tx(buf); err != nil {
		return err
	}
	return f.busyWait(timeoutPageProgram)
}

// Program writes data starting at addr, splitting it into chunks that never
// cross a page boundary, with write-enable before each chunk and a busy wait
// after it.
func (f *Flash) Program(addr int64, data []byte) error {
	if err := f.checkRange(addr, int64(len(data))); err != nil {
		return fmt.Errorf("program: %w", err)
	}

	for len(data) > 0 {
		room := PageSize - int(addr&(PageSize-1))
		chunk := min(len(data), room)
		if err := f.pageProgram(addr, data[:chunk]); err != nil {
			return fmt.Errorf("program @0x%06X: %w", addr, err)
		}
		addr += int64(chunk)
		data = data[chunk:]
	}
	return nil
}

// eraseOp issues write-enable, then the erase opcode with address, then
// requires the busy flag to appear within the ignored-command window before
// waiting it out under the granularity's deadline. Erases always run long
// enough for the window check to be meaningful; programs do not.
func (f *Flash) eraseOp(opcode byte, addr int64, timeout time.Duration) error {
	if err := f.writeEnable(); err != nil {
		return err
	}

	buf := make([]byte, 4)
	buf[0] = opcode
	put24(buf[1:], addr)
	if err := f.bus.Tx(buf); err != nil {
		return err
	}

	if err := f.requireBusy(ignoredWindow); err != nil {
		return err
	}
	return f.busyWait(timeout)
}

// EraseSector erases the 4KB sector containing addr (aligned down).
func (f *Flash) EraseSector(addr int64) error {
	addr &^= SectorSize - 1
	if err := f.eraseOp(cmdSectorErase, addr, timeoutErase4K); err != nil {
		return fmt.Errorf("erase 4KB @0x%06X: %w", addr, err)
	}
	return nil
}

// EraseBlock32 erases a 32KB block; addr must be 32KB-aligned.
func (f *Flash) EraseBlock32(addr int64) error {
	if addr&(Block32Size-1) != 0 {
		return fmt.Errorf("erase 32KB: address 0x%06X not aligned", addr)
	}
	if err := f.eraseOp(cmdBlock32Erase, addr, timeoutErase32K); err != nil {
		return fmt.Errorf("erase 32KB @0x%06X: %w", addr, err)
	}
	return nil
}

// EraseBlock64 erases a 64KB block; addr must be 64KB-aligned.
func (f *Flash) EraseBlock64(addr int64) error {
	if addr&(Block64Size-1) != 0 {
		return fmt.Errorf("erase 64KB: address 0x%06X not aligned", addr)
	}
	if err := f.eraseOp(cmdBlock64Erase, addr, timeoutErase64K); err != nil {
		return fmt.Errorf("erase 64KB @0x%06X: %w", addr, err)
	}
	return nil
}

// EraseChip bulk-erases the entire device.
func (f *Flash) EraseChip() error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.bus.Tx([]byte{cmdChipErase}); err != nil {
		return err
	}
	if err := f.requireBusy(ignoredWindow); err != nil {
		return fmt.Errorf("erase chip: %w", err)
	}
	if err := f.busyWait(timeoutEraseChip); err != nil {
		return fmt.Errorf("erase chip: %w", err)
	}
	return nil
}

// EraseSpan erases [addr, addr+size) rounded out to sector boundaries,
// greedily consuming the span with the largest aligned granularity: 64KB
// blocks where alignment and remaining length allow, then 32KB, then 4KB
// sectors. A 32KB failure falls through to sectors (the opcode is missing on
// some parts); after the whole span completes a verification pass confirms
// every byte reads as 0xFF.
func (f *Flash) EraseSpan(addr, size int64) error {
	_, err := f.timedEraseSpan(addr, size)
	return err
}

// TimeErase erases the span like EraseSpan and reports how long the erase
// commands themselves took; the verification pass runs outside the
// measurement.
func (f *Flash) TimeErase(addr, size int64) (time.Duration, error) {
	return f.timedEraseSpan(addr, size)
}

func (f *Flash) timedEraseSpan(addr, size int64) (time.Duration, error) {
	if addr >= f.capacity {
		return 0, fmt.Errorf("erase span: %w", ErrCapacityExceeded)
	}
	if addr+size > f.capacity {
		size = f.capacity - addr
	}

	start := addr &^ (SectorSize - 1)
	end := (addr + size + SectorSize - 1) &^ (SectorSize - 1)

	t0 := f.clk.Now()
	if err := f.eraseAligned(start, end); err != nil {
		return 0, err
	}
	elapsed := f.clk.Now().Sub(t0)

	if err := f.verifyErased(start, end-start); err != nil {
		return 0, err
	}
	return elapsed, nil
}

func (f *Flash) eraseAligned(start, end int64) error {
	for p := start; p < end; {
		remain := end - p
		if p&(Block64Size-1) == 0 && remain >= Block64Size {
			if err := f.EraseBlock64(p); err != nil {
				return err
			}
			p += Block64Size
			continue
		}
		if p&(Block32Size-1) == 0 && remain >= Block32Size {
			if err := f.EraseBlock32(p); err == nil {
				p += Block32Size
				continue
			}
		}
		if err := f.EraseSector(p); err != nil {
			return err
		}
		p += SectorSize
	}
	return nil
}

// AlignSpan rounds [addr, addr+size) out to sector boundaries and returns the
// physical span an erase of that range touches.
func AlignSpan(addr, size int64) (start, physical int64) {
	start = addr &^ (SectorSize - 1)
	end := (addr + size + SectorSize - 1) &^ (SectorSize - 1)
	return start, end - start
}

// VerifyErased confirms every byte of the sector-aligned span covering
// [addr, addr+size) reads as the erased-state value.
func (f *Flash) VerifyErased(addr, size int64) error {
	start, physical := AlignSpan(addr, size)
	return f.verifyErased(start, physical)
}

// verifyErased reads the span back in chunks and confirms 0xFF throughout.
func (f *Flash) verifyErased(addr, size int64) error {
	buf := make([]byte, 512)
	for size > 0 {
		n := min(size, int64(len(buf)))
		if err := f.ReadInto(addr, buf[:n]); err != nil {
			return err
		}
		for i := int64(0); i < n; i++ {
			if buf[i] != 0xFF {
				return fmt.Errorf("erase verify @0x%06X: %w", addr+i, ErrVerificationFailed)
			}
		}
		addr += n
		size -= n
	}
	return nil
}

// busyWait polls status register 1 until the busy bit clears or the deadline
// passes.
func (f *Flash) busyWait(timeout time.Duration) error {
	// Fast path
	if sr, err := f.ReadStatus(); err == nil && !sr.Busy() {
		return nil
	}

	deadline := f.clk.Now().Add(timeout)
	for {
		f.clk.Sleep(busyPollInterval)
		sr, err := f.ReadStatus()
		if err != nil {
			return err
		}
		if !sr.Busy() {
			return nil
		}
		if !f.clk.Now().Before(deadline) {
			return ErrBusTimeout
		}
	}
}

// requireBusy confirms the device actually started the operation: the busy
// flag must appear within the window or the command was ignored.
func (f *Flash) requireBusy(window time.Duration) error {
	deadline := f.clk.Now().Add(window)
	for {
		sr, err := f.ReadStatus()
		if err != nil {
			return err
		}
		if sr.Busy() {
			return nil
		}
		if !f.clk.Now().Before(deadline) {
			return ErrCommandIgnored
		}
		f.clk.Sleep(50 * time.Microsecond)
	}
}

// StatusRegister is status register 1 of the flash chip.
//
//	Bits| [W25Q128|7.1 Status Registers]
//	----+-------------------------------
//	7   | SRP: Status Register Protect
//	6   | SEC: Sector protect
//	5   | TB: Top/Bottom protect
//	4:2 | BP2-0: Block Protect bit 2-0
//	1   | WEL: Write Enable Latch
//	0   | BUSY: Erase/Write in progress
type StatusRegister byte

func (sr StatusRegister) StatusRegisterProtect() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister) SectorProtect() bool         { return sr&(1<<6) != 0 }
func (sr StatusRegister) TopBottom() bool             { return sr&(1<<5) != 0 }
func (sr StatusRegister) BlockProtect2() bool         { return sr&(1<<4) != 0 }
func (sr StatusRegister) BlockProtect1() bool         { return sr&(1<<3) != 0 }
func (sr StatusRegister) BlockProtect0() bool         { return sr&(1<<2) != 0 }
func (sr StatusRegister) WriteEnabled() bool          { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool                  { return sr&(1<<0) != 0 }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	if sr.StatusRegisterProtect() {
		s = append(s, "SRP")
	}
	if sr.SectorProtect() {
		s = append(s, "SEC")
	}
	if sr.TopBottom() {
		s = append(s, "TB")
	}
	if sr.BlockProtect2() {
		s = append(s, "BP2")
	}
	if sr.BlockProtect1() {
		s = append(s, "BP1")
	}
	if sr.BlockProtect0() {
		s = append(s, "BP0")
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "BUSY")
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
