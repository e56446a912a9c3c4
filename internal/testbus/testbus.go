// internal/testbus/testbus.go

// Package testbus implements a hardware-free bus.Bus driven by scripted
// expectations. Commands the driver emits are compared byte-for-byte against
// an expectation queue, and status reads are served from a response queue,
// so test scripts are reproducible down to the checksum.
package testbus

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/halfduplex/dynabus/internal/bus"
	"github.com/halfduplex/dynabus/internal/packet"
)

// Assertion failure kinds.
var (
	ErrUnexpectedWrite     = errors.New("testbus: write with no expected command queued")
	ErrUnexpectedRead      = errors.New("testbus: read with no scripted response queued")
	ErrExpectationMismatch = errors.New("testbus: emitted bytes differ from expectation")
	ErrLeftover            = errors.New("testbus: expectations left over at end of script")
)

// expectation is one queued command descriptor, kept as encoded bytes.
type expectation struct {
	frame []byte
	desc  string
}

type rspKind int

const (
	rspBytes rspKind = iota
	rspTimeout
	rspNone
)

// response is one queued response directive.
type response struct {
	kind  rspKind
	frame []byte
}

// Bus is the scripted bus. Queue expectations and responses before running
// the commands under test; both queues must be empty for a clean run.
type Bus struct {
	cmds []expectation
	rsps []response
	dec  packet.Decoder
}

// New returns an empty scripted bus.
func New() *Bus {
	return &Bus{}
}

// ---- scripting ----

// ExpectRaw queues an exact frame, preamble and checksum included.
func (b *Bus) ExpectRaw(frame []byte) {
	b.cmds = append(b.cmds, expectation{
		frame: append([]byte(nil), frame...),
		desc:  "raw",
	})
}

// ExpectCmd queues a structured command expectation; the frame is
// re-encoded through the codec for comparison.
func (b *Bus) ExpectCmd(id byte, instr packet.Instr, params []byte) {
	cmd := packet.Command{ID: id, Instr: instr, Params: params}
	b.cmds = append(b.cmds, expectation{
		frame: cmd.Encode(),
		desc:  fmt.Sprintf("id 0x%02x %v", id, instr),
	})
}

// QueueRaw queues exact response bytes.
func (b *Bus) QueueRaw(frame []byte) {
	b.rsps = append(b.rsps, response{kind: rspBytes, frame: append([]byte(nil), frame...)})
}

// QueueStatus queues a structured status response.
func (b *Bus) QueueStatus(id byte, flags packet.ErrorFlags, params []byte) {
	b.rsps = append(b.rsps, response{kind: rspBytes, frame: packet.EncodeStatus(id, flags, params)})
}

// QueueTimeout queues a read that yields bus.ErrTimeout.
func (b *Bus) QueueTimeout() {
	b.rsps = append(b.rsps, response{kind: rspTimeout})
}

// QueueNoResponse marks the previous command as one the transactor must not
// read a status for (broadcast, or status returns disabled). A read landing
// on it fails; it is consumed silently by the next write or by Drained.
func (b *Bus) QueueNoResponse() {
	b.rsps = append(b.rsps, response{kind: rspNone})
}

// ---- bus.Bus ----

// WritePacket pops the head expectation and compares byte-for-byte.
func (b *Bus) WritePacket(frame []byte) error {
	// The previous transaction is over; a pending NoResponse was honored.
	b.popNoResponse()

	if len(b.cmds) == 0 {
		return fmt.Errorf("%w: got % 02X", ErrUnexpectedWrite, frame)
	}
	want := b.cmds[0]
	b.cmds = b.cmds[1:]

	if !bytes.Equal(frame, want.frame) {
		return fmt.Errorf("%w (%s):\n  expected % 02X\n  got      % 02X",
			ErrExpectationMismatch, want.desc, want.frame, frame)
	}
	return nil
}

// ReadStatusPacket pops the head response directive.
func (b *Bus) ReadStatusPacket(timeout time.Duration) (packet.Status, error) {
	if len(b.rsps) == 0 {
		return packet.Status{}, ErrUnexpectedRead
	}
	rsp := b.rsps[0]
	b.rsps = b.rsps[1:]

	switch rsp.kind {
	case rspTimeout:
		return packet.Status{}, bus.ErrTimeout
	case rspNone:
		return packet.Status{}, fmt.Errorf("%w: transaction was scripted with no response", ErrUnexpectedRead)
	}

	// Raw response bytes run through the real decoder so scripts can
	// exercise framing and checksum errors too.
	b.dec.Reset()
	for _, c := range rsp.frame {
		done, err := b.dec.Feed(c)
		if err != nil {
			return packet.Status{}, err
		}
		if done {
			return b.dec.Status(), nil
		}
	}
	return packet.Status{}, fmt.Errorf("%w: scripted response is truncated", packet.ErrFraming)
}

func (b *Bus) popNoResponse() {
	for len(b.rsps) > 0 && b.rsps[0].kind == rspNone {
		b.rsps = b.rsps[1:]
	}
}

// Drained verifies both queues are empty. Trailing NoResponse markers are
// satisfied by construction and do not count.
func (b *Bus) Drained() error {
	b.popNoResponse()
	if len(b.cmds) == 0 && len(b.rsps) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d commands, %d responses", ErrLeftover, len(b.cmds), len(b.rsps))
}
