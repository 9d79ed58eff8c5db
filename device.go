package flashbench

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Default bus clocks. Identification retries drop to 1 MHz on their own.
const (
	// RunClock is the normal operating clock, also the clock benchmark
	// latencies are recorded against.
	RunClock = 10 * physic.MegaHertz
)

// Device is one attached FT2232H adapter with a flash chip on its SPI pins.
type Device struct {
	FTDI  *ftdi.FT232H
	Flash *Flash

	cs gpio.PinIO // ADBUS4 Chip Select

	clock physic.Frequency
	port  spi.Port
	conn  spi.Conn
}

var hostInitialized atomic.Bool

// NewDevice finds an FT2232H and opens an MPSSE/SPI connection to the flash.
func NewDevice() (*Device, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	d := &Device{clock: RunClock}
	if err := d.findFT2232H(); err != nil {
		return nil, err
	}

	// ADBUS0 SCK, ADBUS1 MOSI, ADBUS2 MISO are claimed by the MPSSE engine;
	// chip select is driven manually on ADBUS4.
	d.cs = d.FTDI.D4

	if err := d.connectSPI(); err != nil {
		return nil, err
	}

	d.Flash = NewFlash(&spiBus{conn: d.conn, cs: d.cs})
	d.Flash.clock = d

	return d, nil
}

// BusClock returns the current SPI clock.
func (d *Device) BusClock() physic.Frequency { return d.clock }

// BusClockHz returns the current SPI clock in Hz for log records.
func (d *Device) BusClockHz() uint32 {
	return uint32(d.clock / physic.Hertz)
}

// SetBusClock reconnects the SPI port at a different clock. The flash handle
// keeps working over the new connection.
func (d *Device) SetBusClock(f physic.Frequency) error {
	if f == d.clock && d.conn != nil {
		return nil
	}
	d.clock = f
	if err := d.connectSPI(); err != nil {
		return err
	}
	if d.Flash != nil {
		d.Flash.bus = &spiBus{conn: d.conn, cs: d.cs}
	}
	return nil
}

func (d *Device) findFT2232H() error {
	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6010 // FT2232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.FTDI = ft
			return nil
		}
	}
	return errors.New("FT2232H not found")
}

func (d *Device) connectSPI() (err error) {
	if d.FTDI == nil {
		return errors.New("FT2232H device not found")
	}

	if d.port == nil {
		d.port, err = d.FTDI.SPI()
		if err != nil {
			return fmt.Errorf("failed to get SPI port: %w", err)
		}
	}

	// [FTDI-AN_114|1.2]> the MPSSE engine supports mode 0 and mode 2 only;
	// NOR flash parts support mode 0 and mode 3.
	d.conn, err = d.port.Connect(d.clock, spi.Mode0, 8)
	return err
}
