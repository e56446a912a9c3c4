// internal/device/device.go

// Package device binds a device type and a bus id into the typed façade the
// command layer talks to: get/set with unit conversion, raw register access,
// and the ping/reset/deferred-write plumbing.
package device

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/halfduplex/dynabus/internal/bus"
	"github.com/halfduplex/dynabus/internal/devtype"
	"github.com/halfduplex/dynabus/internal/packet"
	"github.com/halfduplex/dynabus/internal/register"
)

// Device is a stateless proxy for one bus address. The only cached state is
// the status-return-level the driver last wrote, used to decide whether a
// write earns a status packet; it starts unknown, which fail-safes to
// awaiting one.
type Device struct {
	typ   *devtype.DeviceType
	id    byte
	trans *bus.Transactor
	level bus.ReturnLevel
}

// New creates a proxy for the given address.
func New(typ *devtype.DeviceType, id byte, trans *bus.Transactor) *Device {
	return &Device{typ: typ, id: id, trans: trans}
}

// ID returns the bus address this proxy speaks to.
func (d *Device) ID() byte { return d.id }

// Type returns the device schema.
func (d *Device) Type() *devtype.DeviceType { return d.typ }

// Ping reports the device's error flags. Non-zero flags are a successful
// outcome here; transport failures are not.
func (d *Device) Ping() (packet.ErrorFlags, error) {
	return d.trans.Ping(d.id)
}

// Reset restores factory defaults. The cached return level no longer
// applies afterwards.
func (d *Device) Reset() error {
	if err := d.trans.Reset(d.id, d.level); err != nil {
		return d.wrap("reset", err)
	}
	d.level = bus.LevelUnknown
	return nil
}

// ReadData reads length raw bytes at a register name or numeric offset.
func (d *Device) ReadData(nameOrOffset string, length byte) ([]byte, error) {
	offset, err := d.typ.Offset(nameOrOffset)
	if err != nil {
		return nil, err
	}
	data, err := d.trans.Read(d.id, offset, length)
	if err != nil {
		return nil, d.wrap("read", err)
	}
	return data, nil
}

// WriteData writes raw bytes at a register name or numeric offset.
func (d *Device) WriteData(nameOrOffset string, data []byte) error {
	offset, err := d.typ.Offset(nameOrOffset)
	if err != nil {
		return err
	}
	if err := d.trans.Write(d.id, offset, data, d.level); err != nil {
		return d.wrap("write", err)
	}
	return nil
}

// RegWrite stages raw bytes as a deferred write, latched until ACTION.
func (d *Device) RegWrite(nameOrOffset string, data []byte) error {
	offset, err := d.typ.Offset(nameOrOffset)
	if err != nil {
		return err
	}
	if err := d.trans.RegWrite(d.id, offset, data, d.level); err != nil {
		return d.wrap("reg-write", err)
	}
	return nil
}

// Get reads one register and formats it by kind. The special name "all"
// returns a table of every readable register in offset order.
func (d *Device) Get(name string) (string, error) {
	return d.get(name, false)
}

// GetRaw is Get without unit conversion.
func (d *Device) GetRaw(name string) (string, error) {
	return d.get(name, true)
}

func (d *Device) get(name string, raw bool) (string, error) {
	if d.id == packet.Broadcast {
		return "", errors.New("device: broadcast id not valid with get")
	}
	if strings.EqualFold(name, "all") {
		return d.getAll(raw)
	}
	reg, err := d.typ.Register(name)
	if err != nil {
		return "", err
	}
	val, err := d.readReg(reg)
	if err != nil {
		return "", d.wrap("get "+reg.Name, err)
	}
	if raw {
		return reg.FormatRaw(val), nil
	}
	return reg.Format(val), nil
}

func (d *Device) getAll(raw bool) (string, error) {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "Addr\tSize\tValue\tType\tName")
	fmt.Fprintln(w, "----\t----\t-----\t----\t----")
	for _, reg := range d.typ.Registers() {
		val, err := d.readReg(reg)
		if err != nil {
			return "", d.wrap("get "+reg.Name, err)
		}
		s := reg.Format(val)
		if raw {
			s = reg.FormatRaw(val)
		}
		fmt.Fprintf(w, "0x%02x\t%s %d\t%s\t%s\t%s\n",
			reg.Offset, reg.Access, reg.Size, s, reg.Kind, reg.Name)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n"), nil
}

// Set parses text by the register's kind, range-checks, and writes.
func (d *Device) Set(name, text string) error {
	return d.set(name, text, false, false)
}

// SetRaw is Set without unit conversion; range and width still apply.
func (d *Device) SetRaw(name, text string) error {
	return d.set(name, text, true, false)
}

// DeferredSet is Set via REG_WRITE, latched until a broadcast ACTION.
func (d *Device) DeferredSet(name, text string) error {
	return d.set(name, text, false, true)
}

func (d *Device) set(name, text string, raw, deferred bool) error {
	reg, err := d.typ.Register(name)
	if err != nil {
		return err
	}
	if !reg.Writable() {
		return fmt.Errorf("%w: register %q is read-only", register.ErrRange, reg.Name)
	}
	var val uint16
	if raw {
		val, err = reg.ParseRaw(text)
	} else {
		val, err = reg.Parse(text)
	}
	if err != nil {
		return err
	}

	data := reg.Encode(val)
	if deferred {
		err = d.trans.RegWrite(d.id, reg.Offset, data, d.level)
	} else {
		err = d.trans.Write(d.id, reg.Offset, data, d.level)
	}
	if err != nil {
		return d.wrap("set "+reg.Name, err)
	}
	if !deferred && strings.EqualFold(reg.Name, "status-return-level") {
		d.level = bus.ReturnLevelFromRaw(val)
	}
	return nil
}

func (d *Device) readReg(reg *register.Register) (uint16, error) {
	data, err := d.trans.Read(d.id, reg.Offset, byte(reg.Size))
	if err != nil {
		return 0, err
	}
	return reg.Decode(data), nil
}

func (d *Device) wrap(op string, err error) error {
	return fmt.Errorf("%s %d: %s: %w", d.typ.Name(), d.id, op, err)
}
