// internal/register/kinds.go
package register

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/halfduplex/dynabus/internal/packet"
)

// Kind is the closed set of register semantics. Each kind maps raw values
// to human-facing text and back; the raw domain a kind accepts is enforced
// in Parse, on top of any per-register range.
type Kind int

const (
	Raw Kind = iota
	OnOff
	Direction
	BaudRate
	RDT
	Angle
	AngularVelocity
	Temperature
	Voltage
	StatusRet
	Alarm
	Load
)

var kindNames = map[Kind]string{
	Raw:             "",
	OnOff:           "OnOff",
	Direction:       "Direction",
	BaudRate:        "BaudRate",
	RDT:             "RDT",
	Angle:           "Angle",
	AngularVelocity: "AngularVelocity",
	Temperature:     "Temperature",
	Voltage:         "Voltage",
	StatusRet:       "StatusRet",
	Alarm:           "Alarm",
	Load:            "Load",
}

func (k Kind) String() string {
	return kindNames[k]
}

// KindByName maps a .bld kind token to its Kind. Unrecognized names fall
// back to Raw, matching the table format's default.
func KindByName(name string) Kind {
	for k, n := range kindNames {
		if n != "" && strings.EqualFold(n, name) {
			return k
		}
	}
	return Raw
}

// Format renders a raw value with units appropriate to the kind.
func (k Kind) Format(raw uint16) string {
	switch k {
	case OnOff:
		if raw != 0 {
			return "on"
		}
		return "off"
	case Direction:
		if raw != 0 {
			return "output"
		}
		return "input"
	case BaudRate:
		return fmt.Sprintf("%d bps", baudFromRaw(raw))
	case RDT:
		return fmt.Sprintf("%d usec", uint32(raw)*2)
	case Angle:
		return fmt.Sprintf("%.1f deg", float64(raw)*300.0/1023.0)
	case AngularVelocity:
		return fmt.Sprintf("%.1f RPM", float64(raw)*114.0/1023.0)
	case Temperature:
		return fmt.Sprintf("%dC", raw)
	case Voltage:
		return fmt.Sprintf("%.1fV", float64(raw)/10.0)
	case StatusRet:
		switch raw {
		case 0:
			return "none"
		case 1:
			return "read"
		case 2:
			return "all"
		}
		return strconv.FormatUint(uint64(raw), 10)
	case Alarm:
		return packet.ErrorFlags(raw).String()
	case Load:
		if raw&0x400 != 0 {
			return fmt.Sprintf("CW %d", raw&0x3FF)
		}
		return fmt.Sprintf("CCW %d", raw&0x3FF)
	}
	return strconv.FormatUint(uint64(raw), 10)
}

// Parse converts text back to a raw value, rejecting out-of-domain and
// unrecognized input.
func (k Kind) Parse(text string) (uint16, error) {
	text = strings.TrimSpace(text)
	// The unit Format appends is optional, so formatted text parses back.
	switch k {
	case BaudRate:
		text = strings.TrimSpace(strings.TrimSuffix(text, "bps"))
	case RDT:
		text = strings.TrimSpace(strings.TrimSuffix(text, "usec"))
	case Angle:
		text = strings.TrimSpace(strings.TrimSuffix(text, "deg"))
	case AngularVelocity:
		text = strings.TrimSpace(strings.TrimSuffix(text, "RPM"))
	case Temperature:
		text = strings.TrimSuffix(text, "C")
	case Voltage:
		text = strings.TrimSuffix(text, "V")
	}
	switch k {
	case Raw:
		return ParseUint(text)

	case OnOff:
		switch strings.ToLower(text) {
		case "on":
			return 1, nil
		case "off":
			return 0, nil
		}
		return 0, fmt.Errorf("%w: expecting on or off, found %q", ErrParse, text)

	case Direction:
		switch strings.ToLower(text) {
		case "output":
			return 1, nil
		case "input":
			return 0, nil
		}
		return 0, fmt.Errorf("%w: expecting input or output, found %q", ErrParse, text)

	case BaudRate:
		return parseBaud(text)

	case RDT:
		usec, err := parseInt(text, "a delay in usec")
		if err != nil {
			return 0, err
		}
		if usec < 0 || usec%2 != 0 || usec/2 > 254 {
			return 0, fmt.Errorf("%w: %d usec is not an even delay in 0-508", ErrParse, usec)
		}
		return uint16(usec / 2), nil

	case Angle:
		deg, err := parseFloat(text, "an angle in degrees")
		if err != nil {
			return 0, err
		}
		if deg < 0 || deg > 300 {
			return 0, fmt.Errorf("%w: %s deg is outside 0-300", ErrParse, text)
		}
		raw := math.Round(deg * 1023.0 / 300.0)
		if raw > 1023 {
			return 0, fmt.Errorf("%w: %s deg is outside 0-300", ErrParse, text)
		}
		return uint16(raw), nil

	case AngularVelocity:
		rpm, err := parseFloat(text, "a speed in RPM")
		if err != nil {
			return 0, err
		}
		if rpm < 0 {
			return 0, fmt.Errorf("%w: negative speed %s", ErrParse, text)
		}
		raw := math.Round(rpm * 1023.0 / 114.0)
		if raw > 1023 {
			return 0, fmt.Errorf("%w: %s RPM is outside 0-114", ErrParse, text)
		}
		return uint16(raw), nil

	case Temperature:
		deg, err := parseInt(text, "a temperature in C")
		if err != nil {
			return 0, err
		}
		if deg < 0 || deg > math.MaxUint16 {
			return 0, fmt.Errorf("%w: temperature %d out of range", ErrParse, deg)
		}
		return uint16(deg), nil

	case Voltage:
		volts, err := parseFloat(text, "a voltage")
		if err != nil {
			return 0, err
		}
		if volts < 0 {
			return 0, fmt.Errorf("%w: negative voltage %s", ErrParse, text)
		}
		raw := math.Round(volts * 10.0)
		if raw > 255 {
			return 0, fmt.Errorf("%w: voltage %s out of range", ErrParse, text)
		}
		return uint16(raw), nil

	case StatusRet:
		switch strings.ToLower(text) {
		case "none":
			return 0, nil
		case "read":
			return 1, nil
		case "all":
			return 2, nil
		}
		return 0, fmt.Errorf("%w: expecting none, read, or all, found %q", ErrParse, text)

	case Alarm:
		flags, err := packet.ParseErrorFlags(text)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return uint16(flags), nil

	case Load:
		return 0, fmt.Errorf("%w: load registers are read-only", ErrParse)
	}
	return 0, fmt.Errorf("%w: unhandled register kind", ErrParse)
}

// baudFromRaw computes 2000000/(raw+1) bps, rounded to the nearest bps.
func baudFromRaw(raw uint16) uint32 {
	div := uint32(raw) + 1
	return (2000000 + div/2) / div
}

// parseBaud reverse-computes the divisor and rejects rates that do not
// round-trip to a representable raw value.
func parseBaud(text string) (uint16, error) {
	bps, err := parseInt(text, "a baud rate in bps")
	if err != nil {
		return 0, err
	}
	if bps <= 0 {
		return 0, fmt.Errorf("%w: baud rate must be positive, found %d", ErrParse, bps)
	}
	raw := math.Round(2000000.0/float64(bps)) - 1
	if raw < 0 || raw > 254 {
		return 0, fmt.Errorf("%w: baud rate %d bps has no divisor in 0-254", ErrParse, bps)
	}
	if baudFromRaw(uint16(raw)) != uint32(bps) {
		return 0, fmt.Errorf("%w: baud rate %d bps is not representable", ErrParse, bps)
	}
	return uint16(raw), nil
}

func parseInt(s, what string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expecting %s, found %q", ErrParse, what, s)
	}
	return v, nil
}

func parseFloat(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expecting %s, found %q", ErrParse, what, s)
	}
	return v, nil
}
