// internal/devtype/parser.go
package devtype

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/halfduplex/dynabus/internal/register"
)

// ErrLoad marks a malformed register-table file.
var ErrLoad = errors.New("devtype: load error")

// Parser builds DeviceTypes from the line-oriented .bld table format:
//
//	DeviceType: servo
//	Model: 12
//	Register: 0x1e goal-position 2 rw 0 1023 Angle
//	EndDeviceType
//
// Offsets and ranges accept decimal, hex (0x), and octal (leading 0);
// # starts a comment. Parsed types are added to the registry.
type Parser struct {
	registry *Registry

	source string
	line   int

	typeName string
	model    uint16
	regs     []*register.Register
}

// NewParser returns a parser feeding the given registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// ParseDir parses every reg-*.bld file in dir.
func (p *Parser) ParseDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("reg-*.bld", e.Name()); ok {
			if err := p.ParseFile(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseFile parses one table file. A path to a directory loads its
// reg-*.bld files instead.
func (p *Parser) ParseFile(path string) error {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return p.ParseDir(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer f.Close()
	return p.Parse(f, path)
}

// Parse reads table syntax from r; source names it in errors.
func (p *Parser) Parse(r io.Reader, source string) error {
	p.source = source
	p.line = 0
	p.reset()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		if err := p.parseLine(words); err != nil {
			return p.errorf("%v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLoad, source, err)
	}
	if p.typeName != "" {
		return p.errorf("device type %q not terminated with EndDeviceType", p.typeName)
	}
	return nil
}

func (p *Parser) reset() {
	p.typeName = ""
	p.model = 0
	p.regs = nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s line %d: %s", ErrLoad, p.source, p.line, fmt.Sprintf(format, args...))
}

func (p *Parser) parseLine(words []string) error {
	keyword := words[0]
	args := words[1:]

	if p.typeName == "" {
		if keyword != "DeviceType:" {
			return fmt.Errorf("unexpected keyword outside a device type: %s", keyword)
		}
		if len(args) != 1 {
			return errors.New("DeviceType: expecting exactly one name")
		}
		p.typeName = args[0]
		return nil
	}

	switch keyword {
	case "Model:":
		if len(args) != 1 {
			return errors.New("Model: expecting exactly one integer")
		}
		model, err := register.ParseUint(args[0])
		if err != nil {
			return fmt.Errorf("Model: %v", err)
		}
		p.model = model
		return nil

	case "Register:":
		return p.parseRegister(args)

	case "EndDeviceType":
		if len(args) != 0 {
			return errors.New("EndDeviceType: not expecting arguments")
		}
		t, err := New(p.typeName, p.model, p.regs)
		if err != nil {
			return err
		}
		p.registry.Add(t)
		p.reset()
		return nil
	}
	return fmt.Errorf("unrecognized keyword: %s", keyword)
}

// parseRegister handles: <offset> <name> <size> <access> [min max] [kind]
func (p *Parser) parseRegister(args []string) error {
	if len(args) < 4 {
		return errors.New("Register: expecting offset, name, size, and access")
	}
	offset, err := register.ParseUint(args[0])
	if err != nil || offset > 0xFF {
		return fmt.Errorf("Register: bad offset %q", args[0])
	}
	name := args[1]
	size, err := register.ParseUint(args[2])
	if err != nil || size < 1 || size > 2 {
		return fmt.Errorf("Register %s: size must be 1 or 2, found %q", name, args[2])
	}
	access, err := register.ParseAccess(args[3])
	if err != nil {
		return fmt.Errorf("Register %s: %v", name, err)
	}

	reg := &register.Register{
		Offset: byte(offset),
		Name:   name,
		Size:   int(size),
		Access: access,
	}

	rest := args[4:]
	if len(rest) >= 2 {
		min, errMin := register.ParseUint(rest[0])
		max, errMax := register.ParseUint(rest[1])
		if errMin != nil || errMax != nil {
			return fmt.Errorf("Register %s: bad range %q %q", name, rest[0], rest[1])
		}
		if min > max {
			return fmt.Errorf("Register %s: min %d above max %d", name, min, max)
		}
		reg.MinRaw, reg.MaxRaw = min, max
		reg.HasRange = true
		rest = rest[2:]
	}
	switch len(rest) {
	case 0:
	case 1:
		if _, err := register.ParseUint(rest[0]); err == nil {
			return fmt.Errorf("Register %s: raw_min %q without raw_max", name, rest[0])
		}
		// An unrecognized kind name falls back to the raw-integer kind.
		reg.Kind = register.KindByName(rest[0])
	default:
		return fmt.Errorf("Register %s: expecting 'kind' or 'min max kind', found %d extra arguments",
			name, len(rest))
	}

	p.regs = append(p.regs, reg)
	return nil
}
