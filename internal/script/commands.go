// internal/script/commands.go
package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/halfduplex/dynabus/internal/device"
	"github.com/halfduplex/dynabus/internal/devtype"
	"github.com/halfduplex/dynabus/internal/packet"
	"github.com/halfduplex/dynabus/internal/register"
)

// handler is one top-level command.
type handler func(r *Runner, args []string) (string, error)

var commands map[string]handler

func init() {
	commands = map[string]handler{
		"echo":      cmdEcho,
		"scan":      cmdScan,
		"action":    cmdAction,
		"dev-types": cmdDevTypes,
		"test":      cmdTest,
	}
}

func cmdEcho(r *Runner, args []string) (string, error) {
	return strings.Join(args, " "), nil
}

func cmdAction(r *Runner, args []string) (string, error) {
	return "", r.trans.Action()
}

func cmdDevTypes(r *Runner, args []string) (string, error) {
	var lines []string
	for _, name := range r.registry.Names() {
		t, err := r.registry.Get(name)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%-10s Model: %5d with %2d registers",
			t.Name(), t.Model(), len(t.Registers())))
	}
	return strings.Join(lines, "\n"), nil
}

// cmdScan pings id ranges and reports model and version for responders.
// With n < 100 both the servo range (0..n-1) and the sensor range
// (100..100+n-1) are scanned.
func cmdScan(r *Runner, args []string) (string, error) {
	n := 32
	if len(args) > 0 {
		v, err := register.ParseUint(args[0])
		if err != nil {
			return "", err
		}
		n = int(v)
	}
	var ids []byte
	addRange := func(start, count int) {
		for id := start; id < start+count && id < int(packet.Broadcast); id++ {
			ids = append(ids, byte(id))
		}
	}
	if n < 100 {
		addRange(0, n)
		addRange(100, n)
	} else {
		addRange(0, n)
	}

	found, err := r.trans.ScanRange(ids)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "No devices found", nil
	}
	var lines []string
	for _, info := range found {
		lines = append(lines, fmt.Sprintf("ID: %3d Model: %5d Version: %5d",
			info.ID, info.Model, info.Version))
	}
	return strings.Join(lines, "\n"), nil
}

// ---- device-type commands ----

// deviceVerb is one verb at the device level.
type deviceVerb func(r *Runner, d *device.Device, args []string) (string, error)

var deviceVerbs = map[string]deviceVerb{
	"ping":       verbPing,
	"reset":      verbReset,
	"get":        verbGet,
	"get-raw":    verbGetRaw,
	"set":        verbSet,
	"set-raw":    verbSetRaw,
	"read-data":  verbReadData,
	"rd":         verbReadData,
	"write-data": verbWriteData,
	"wd":         verbWriteData,
	"reg-write":    verbRegWrite,
	"rw":           verbRegWrite,
	"deferred-set": verbDeferredSet,
}

// deviceCommand handles <type> [id] <verb> args. The reg/reg-raw table
// dumps work without an id.
func (r *Runner) deviceCommand(typ *devtype.DeviceType, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("script: %s: expecting an id or reg/reg-raw", typ.Name())
	}
	switch args[0] {
	case "reg":
		return strings.TrimRight(typ.DumpRegs(false), "\n"), nil
	case "reg-raw":
		return strings.TrimRight(typ.DumpRegs(true), "\n"), nil
	}

	id, err := register.ParseUint(args[0])
	if err != nil || id > uint16(packet.Broadcast) {
		return "", fmt.Errorf("script: %s: expecting a device id, found %q", typ.Name(), args[0])
	}
	if len(args) < 2 {
		return "", fmt.Errorf("script: %s %d: expecting a command", typ.Name(), id)
	}
	dev := device.New(typ, byte(id), r.trans)

	verb := args[1]
	rest := args[2:]
	switch verb {
	case "reg":
		return strings.TrimRight(typ.DumpRegs(false), "\n"), nil
	case "reg-raw":
		return strings.TrimRight(typ.DumpRegs(true), "\n"), nil
	}
	h, ok := deviceVerbs[verb]
	if !ok {
		return "", fmt.Errorf("script: %s: unrecognized command %q", typ.Name(), verb)
	}
	return h(r, dev, rest)
}

func verbPing(r *Runner, d *device.Device, args []string) (string, error) {
	flags, err := d.Ping()
	if err != nil {
		return "", err
	}
	return "Rcvd Status: " + flags.String(), nil
}

func verbReset(r *Runner, d *device.Device, args []string) (string, error) {
	return "", d.Reset()
}

func verbGet(r *Runner, d *device.Device, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("script: get: expecting a register name")
	}
	return d.Get(args[0])
}

func verbGetRaw(r *Runner, d *device.Device, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("script: get-raw: expecting a register name")
	}
	return d.GetRaw(args[0])
}

func verbSet(r *Runner, d *device.Device, args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("script: set: expecting a register name and value")
	}
	return "", d.Set(args[0], args[1])
}

func verbSetRaw(r *Runner, d *device.Device, args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("script: set-raw: expecting a register name and value")
	}
	return "", d.SetRaw(args[0], args[1])
}

func verbReadData(r *Runner, d *device.Device, args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("script: read-data: expecting an offset and length")
	}
	length, err := register.ParseUint(args[1])
	if err != nil || length > 0xFF {
		return "", fmt.Errorf("script: read-data: bad length %q", args[1])
	}
	data, err := d.ReadData(args[0], byte(length))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Read:% 02X", data), nil
}

func verbWriteData(r *Runner, d *device.Device, args []string) (string, error) {
	offset, data, err := offsetAndData(args)
	if err != nil {
		return "", err
	}
	return "", d.WriteData(offset, data)
}

func verbDeferredSet(r *Runner, d *device.Device, args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("script: deferred-set: expecting a register name and value")
	}
	return "", d.DeferredSet(args[0], args[1])
}

func verbRegWrite(r *Runner, d *device.Device, args []string) (string, error) {
	offset, data, err := offsetAndData(args)
	if err != nil {
		return "", err
	}
	return "", d.RegWrite(offset, data)
}

// offsetAndData parses "<offset-or-name> <byte> [<byte> ...]".
func offsetAndData(args []string) (string, []byte, error) {
	if len(args) < 2 {
		return "", nil, errors.New("script: expecting an offset and at least one byte")
	}
	data := make([]byte, 0, len(args)-1)
	for _, s := range args[1:] {
		v, err := register.ParseUint(s)
		if err != nil || v > 0xFF {
			return "", nil, fmt.Errorf("script: expecting a byte in 0-255, found %q", s)
		}
		data = append(data, byte(v))
	}
	return args[0], data, nil
}
