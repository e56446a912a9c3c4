// internal/devtype/devtype.go

// Package devtype holds the declarative device-type model: immutable
// register tables built once at startup from .bld files and shared by every
// device of that type.
package devtype

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/halfduplex/dynabus/internal/register"
)

// Lookup failure kinds.
var (
	ErrUnknownType     = errors.New("devtype: unknown device type")
	ErrUnknownRegister = errors.New("devtype: unknown register")
)

// DeviceType is one device schema: a model number plus registers indexed by
// offset and by case-insensitive name. Immutable after construction.
type DeviceType struct {
	name   string
	model  uint16
	regs   []*register.Register // ordered by offset
	byName map[string]*register.Register
}

// New builds a device type, rejecting duplicate offsets or names.
func New(name string, model uint16, regs []*register.Register) (*DeviceType, error) {
	t := &DeviceType{
		name:   name,
		model:  model,
		byName: make(map[string]*register.Register, len(regs)),
	}
	byOffset := make(map[byte]*register.Register, len(regs))
	for _, r := range regs {
		if prev, ok := byOffset[r.Offset]; ok {
			return nil, fmt.Errorf("registers %q and %q share offset 0x%02x",
				prev.Name, r.Name, r.Offset)
		}
		key := strings.ToLower(r.Name)
		if _, ok := t.byName[key]; ok {
			return nil, fmt.Errorf("duplicate register name %q", r.Name)
		}
		byOffset[r.Offset] = r
		t.byName[key] = r
		t.regs = append(t.regs, r)
	}
	sort.Slice(t.regs, func(i, j int) bool { return t.regs[i].Offset < t.regs[j].Offset })
	return t, nil
}

// Name returns the device type name.
func (t *DeviceType) Name() string { return t.name }

// Model returns the numeric model id.
func (t *DeviceType) Model() uint16 { return t.model }

// Registers returns the registers in offset order. Callers must not
// modify the slice.
func (t *DeviceType) Registers() []*register.Register { return t.regs }

// Register looks up a register by name (case-insensitive) or, failing
// that, by numeric offset.
func (t *DeviceType) Register(nameOrOffset string) (*register.Register, error) {
	if r, ok := t.byName[strings.ToLower(nameOrOffset)]; ok {
		return r, nil
	}
	if offset, err := register.ParseUint(nameOrOffset); err == nil {
		for _, r := range t.regs {
			if uint16(r.Offset) == offset {
				return r, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q in device type %q", ErrUnknownRegister, nameOrOffset, t.name)
}

// Offset resolves a register name or a bare numeric offset. Unlike
// Register, a numeric offset need not name a declared register: read-data
// and write-data address the control table directly.
func (t *DeviceType) Offset(nameOrOffset string) (byte, error) {
	if r, ok := t.byName[strings.ToLower(nameOrOffset)]; ok {
		return r.Offset, nil
	}
	offset, err := register.ParseUint(nameOrOffset)
	if err != nil || offset > 0xFF {
		return 0, fmt.Errorf("%w: expecting register name or offset, found %q",
			ErrUnknownRegister, nameOrOffset)
	}
	return byte(offset), nil
}

// DumpRegs renders the register table. With raw set, min and max print as
// raw integers instead of kind-formatted values.
func (t *DeviceType) DumpRegs(raw bool) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "Addr\tSize\tMin\tMax\tType\tName")
	fmt.Fprintln(w, "----\t----\t---\t---\t----\t----")
	for _, r := range t.regs {
		min, max := "", ""
		if r.HasRange {
			if raw {
				min, max = r.FormatRaw(r.MinRaw), r.FormatRaw(r.MaxRaw)
			} else {
				min, max = r.Format(r.MinRaw), r.Format(r.MaxRaw)
			}
		}
		fmt.Fprintf(w, "0x%02x\t%s %d\t%s\t%s\t%s\t%s\n",
			r.Offset, r.Access, r.Size, min, max, r.Kind, r.Name)
	}
	w.Flush()
	return b.String()
}

// Registry maps device-type names to their schemas. Built once at startup,
// read-only afterwards.
type Registry struct {
	types map[string]*DeviceType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*DeviceType)}
}

// Add registers a device type, replacing any previous schema of that name.
func (r *Registry) Add(t *DeviceType) {
	r.types[strings.ToLower(t.Name())] = t
}

// Get looks up a device type by name, case-insensitive.
func (r *Registry) Get(name string) (*DeviceType, error) {
	if t, ok := r.types[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for _, t := range r.types {
		names = append(names, t.Name())
	}
	sort.Strings(names)
	return names
}
