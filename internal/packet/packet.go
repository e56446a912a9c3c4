// internal/packet/packet.go

// Package packet implements the Dynamixel/Bioloid wire protocol: instruction
// and status frames, the additive-complement checksum, and a byte-at-a-time
// decoder for status packets.
package packet

import (
	"fmt"
	"strings"
)

// Reserved device ids.
const (
	Broadcast byte = 0xFE // devices never reply to a broadcast
	MaxID     byte = 0xFD
)

// Instr is a one-byte instruction code.
type Instr byte

// Instruction codes.
const (
	Ping      Instr = 0x01
	ReadData  Instr = 0x02
	WriteData Instr = 0x03
	RegWrite  Instr = 0x04
	Action    Instr = 0x05
	Reset     Instr = 0x06
	SyncWrite Instr = 0x83
)

var instrNames = map[Instr]string{
	Ping:      "PING",
	ReadData:  "READ",
	WriteData: "WRITE",
	RegWrite:  "REG_WRITE",
	Action:    "ACTION",
	Reset:     "RESET",
	SyncWrite: "SYNC_WRITE",
}

func (i Instr) String() string {
	if s, ok := instrNames[i]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", byte(i))
}

// ParseInstr recognizes the instruction names used in test scripts
// (ping, read, write, reg-write, action, reset, sync-write).
func ParseInstr(s string) (Instr, error) {
	switch strings.ToLower(s) {
	case "ping":
		return Ping, nil
	case "read":
		return ReadData, nil
	case "write":
		return WriteData, nil
	case "reg-write":
		return RegWrite, nil
	case "action":
		return Action, nil
	case "reset":
		return Reset, nil
	case "sync-write":
		return SyncWrite, nil
	}
	return 0, fmt.Errorf("packet: unrecognized instruction %q", s)
}

// ErrorFlags is the status-packet error bitfield. Zero means normal.
type ErrorFlags byte

const (
	ErrInputVoltage ErrorFlags = 0x01
	ErrAngleLimit   ErrorFlags = 0x02
	ErrOverHeating  ErrorFlags = 0x04
	ErrRange        ErrorFlags = 0x08
	ErrChecksumFlag ErrorFlags = 0x10
	ErrOverload     ErrorFlags = 0x20
	ErrInstruction  ErrorFlags = 0x40

	AllFlags ErrorFlags = 0x7F
)

var flagNames = []string{
	"InputVoltage",
	"AngleLimit",
	"OverHeating",
	"Range",
	"Checksum",
	"Overload",
	"Instruction",
	"Reserved",
}

func (e ErrorFlags) String() string {
	if e == 0 {
		return "None"
	}
	if e == AllFlags {
		return "All"
	}
	var parts []string
	for i, name := range flagNames {
		if e&(1<<uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseErrorFlags parses a comma-separated list of flag names, or the
// special words "none" and "all". Matching is case-insensitive.
func ParseErrorFlags(s string) (ErrorFlags, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return 0, nil
	case "all":
		return AllFlags, nil
	}
	var flags ErrorFlags
	for _, word := range strings.Split(s, ",") {
		word = strings.TrimSpace(word)
		found := false
		for i, name := range flagNames {
			if strings.EqualFold(word, name) {
				flags |= 1 << uint(i)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("packet: invalid error flag %q", word)
		}
	}
	return flags, nil
}

// Status is a decoded status packet.
type Status struct {
	ID     byte
	Flags  ErrorFlags
	Params []byte
}
