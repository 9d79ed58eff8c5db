package flashbench

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Bus is one full-duplex exchange on the serial bus with chip select held
// for the whole buffer. buf is transmitted in place; received bytes overwrite
// it position for position.
type Bus interface {
	Tx(buf []byte) error
}

// spiBus wraps an SPI connection and a chip-select line into a single
// framed transaction.
type spiBus struct {
	conn spi.Conn
	cs   gpio.PinIO
}

func (b *spiBus) Tx(buf []byte) (err error) {
	if err = b.cs.Out(gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := b.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = b.conn.Tx(buf, buf)
	return
}

// put24 writes a 24-bit big-endian address after the opcode byte.
func put24(buf []byte, addr int64) {
	buf[0] = byte(addr >> 16)
	buf[1] = byte(addr >> 8)
	buf[2] = byte(addr)
}
