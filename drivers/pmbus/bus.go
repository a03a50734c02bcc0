package pmbus

import (
	"errors"

	"powertool-go/drivers/transport"
)

// ---------------- Paged access ----------------

// SetPage writes PAGE. Every page-scoped operation calls it.
func (b *Bus) SetPage(page uint8) error {
	b.w[0] = cmdPage
	b.w[1] = page
	if err := b.i2c.Tx(b.addr, b.w[:2], nil); err != nil {
		b.pageValid = false
		return b.busErr("set_page", int(page), PAGE, err)
	}
	b.lastPage, b.pageValid = page, true
	b.settle(b.cfg.PageSettle)
	return nil
}

// ReadByteReg is the PMBus read-byte transaction on page.
func (b *Bus) ReadByteReg(page uint8, reg Register) (uint8, error) {
	if err := b.SetPage(page); err != nil {
		return 0, err
	}
	if err := b.read(reg, 1); err != nil {
		return 0, b.busErr("read_byte", int(page), reg, err)
	}
	return b.r[0], nil
}

func (b *Bus) ReadWord(page uint8, reg Register) (uint16, error) {
	if err := b.SetPage(page); err != nil {
		return 0, err
	}
	if err := b.read(reg, 2); err != nil {
		return 0, b.busErr("read_word", int(page), reg, err)
	}
	return uint16(b.r[0]) | uint16(b.r[1])<<8, nil
}

// ReadRaw reads a 1- or 2-byte register; width 1 values are zero-extended.
func (b *Bus) ReadRaw(page uint8, reg Register, width int) (uint16, error) {
	switch width {
	case 1:
		v, err := b.ReadByteReg(page, reg)
		return uint16(v), err
	case 2:
		return b.ReadWord(page, reg)
	}
	return 0, ErrBadWidth
}

// WriteByteReg is the PMBus write-byte transaction on page.
func (b *Bus) WriteByteReg(page uint8, reg Register, val uint8) error {
	if reg.Space == Extended {
		return b.busErr("write_byte", int(page), reg, ErrNotStandard)
	}
	if err := b.SetPage(page); err != nil {
		return err
	}
	b.w[0] = byte(reg.Value)
	b.w[1] = val
	if err := b.i2c.Tx(b.addr, b.w[:2], nil); err != nil {
		return b.busErr("write_byte", int(page), reg, err)
	}
	b.settle(b.cfg.WriteSettle)
	return nil
}

func (b *Bus) WriteWord(page uint8, reg Register, val uint16) error {
	if reg.Space == Extended {
		return b.busErr("write_word", int(page), reg, ErrNotStandard)
	}
	if err := b.SetPage(page); err != nil {
		return err
	}
	b.w[0] = byte(reg.Value)
	b.w[1] = byte(val)      // low
	b.w[2] = byte(val >> 8) // high
	if err := b.i2c.Tx(b.addr, b.w[:3], nil); err != nil {
		return b.busErr("write_word", int(page), reg, err)
	}
	b.settle(b.cfg.WriteSettle)
	return nil
}

// SendCommand issues a send-byte (command code, no data), e.g. CLEAR_FAULTS.
func (b *Bus) SendCommand(page uint8, reg Register) error {
	if reg.Space == Extended {
		return b.busErr("send_command", int(page), reg, ErrNotStandard)
	}
	if err := b.SetPage(page); err != nil {
		return err
	}
	b.w[0] = byte(reg.Value)
	if err := b.i2c.Tx(b.addr, b.w[:1], nil); err != nil {
		return b.busErr("send_command", int(page), reg, err)
	}
	b.settle(b.cfg.WriteSettle)
	return nil
}

// ---------------- Extended access ----------------

// ReadExtended reads the 16-bit extended register at addr through
// MFR_REG_ACCESS. It is not page-scoped.
func (b *Bus) ReadExtended(addr uint16) (uint16, error) {
	b.settle(b.cfg.ExtendedSettle)
	b.w[0] = cmdMfrRegAccess
	b.w[1] = byte(addr)
	b.w[2] = byte(addr >> 8)
	if err := b.tx(b.w[:3], b.r[:2]); err != nil {
		return 0, b.busErr("read_extended", -1, Ext(addr), err)
	}
	return uint16(b.r[0]) | uint16(b.r[1])<<8, nil
}

// WriteExtended writes val to the extended register at addr.
func (b *Bus) WriteExtended(addr, val uint16) error {
	b.settle(b.cfg.ExtendedSettle)
	b.w[0] = cmdMfrRegAccess
	b.w[1] = byte(addr)
	b.w[2] = byte(addr >> 8)
	b.w[3] = byte(val)
	b.w[4] = byte(val >> 8)
	if err := b.i2c.Tx(b.addr, b.w[:5], nil); err != nil {
		return b.busErr("write_extended", -1, Ext(addr), err)
	}
	b.settle(b.cfg.WriteSettle)
	return nil
}

// ---------------- Helpers ----------------

func (b *Bus) read(reg Register, n int) error {
	if reg.Space == Extended {
		return ErrNotStandard
	}
	b.w[0] = byte(reg.Value)
	return b.tx(b.w[:1], b.r[:n])
}

func (b *Bus) tx(w, r []byte) error {
	return b.i2c.Tx(b.addr, w, r)
}

func (b *Bus) busErr(op string, page int, reg Register, err error) *BusError {
	kind := KindTransport
	if errors.Is(err, transport.ErrShortRead) {
		kind = KindShortRead
	}
	return &BusError{Op: op, Page: page, Reg: reg, Kind: kind, Err: err}
}
