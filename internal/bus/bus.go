// internal/bus/bus.go

// Package bus drives the half-duplex Dynamixel link: the transport contract,
// the serial and TCP adapters, and the transactor that issues instructions
// and collects status packets.
package bus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/halfduplex/dynabus/internal/packet"
)

// Bus is the transport contract. A transaction is one WritePacket followed
// by at most one ReadStatusPacket; the caller owns the bus for its duration.
type Bus interface {
	// WritePacket puts one encoded frame on the wire atomically.
	WritePacket(frame []byte) error

	// ReadStatusPacket parses one status packet from the wire, waiting up
	// to timeout for it to complete.
	ReadStatusPacket(timeout time.Duration) (packet.Status, error)
}

// Error kinds surfaced by transactions. Framing and checksum errors come
// from the decoder (packet.ErrFraming, packet.ErrChecksum).
var (
	ErrTimeout = errors.New("bus: timed out waiting for status")
	ErrIO      = errors.New("bus: transport error")
)

// DeviceFault reports a non-zero error byte in a status packet.
type DeviceFault packet.ErrorFlags

func (e DeviceFault) Error() string {
	return "Rcvd Status: " + packet.ErrorFlags(e).String()
}

// Flags returns the device-reported error bits.
func (e DeviceFault) Flags() packet.ErrorFlags {
	return packet.ErrorFlags(e)
}

// ReturnLevel is the driver's knowledge of a device's status-return-level
// register. Unknown awaits status on everything (a timeout is recoverable,
// a stolen response is not).
type ReturnLevel int

const (
	LevelUnknown ReturnLevel = iota
	LevelNone
	LevelRead
	LevelAll
)

// ReturnLevelFromRaw maps the status-return-level register value.
func ReturnLevelFromRaw(raw uint16) ReturnLevel {
	switch raw {
	case 0:
		return LevelNone
	case 1:
		return LevelRead
	default:
		return LevelAll
	}
}

// returnsStatus reports whether a device at the given level answers the
// given instruction. PING is always answered by hardware.
func returnsStatus(instr packet.Instr, level ReturnLevel) bool {
	switch level {
	case LevelNone:
		return instr == packet.Ping
	case LevelRead:
		return instr == packet.Ping || instr == packet.ReadData
	default:
		return true
	}
}

// DumpPacket formats a frame for packet tracing: "W FF FF 01 02 01 FB".
func DumpPacket(dir string, frame []byte) string {
	var b strings.Builder
	b.WriteString(dir)
	for _, c := range frame {
		fmt.Fprintf(&b, " %02X", c)
	}
	return b.String()
}
