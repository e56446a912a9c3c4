// internal/packet/decode.go
package packet

import (
	"errors"
	"fmt"
)

// Decoder error kinds. The bus layer wraps these with transaction context.
var (
	ErrFraming  = errors.New("packet: framing error")
	ErrChecksum = errors.New("packet: checksum mismatch")
)

type decodeState int

const (
	waitPre1 decodeState = iota
	waitPre2
	readID
	readLen
	readErr
	readPayload
	readChecksum
)

// Decoder is the status-packet parse state machine. Feed it one byte at a
// time; it resets itself after every completed packet or error so it can be
// reused across transactions.
type Decoder struct {
	state  decodeState
	id     byte
	length byte
	flags  byte
	params []byte
	sum    byte
	last   Status
}

// Reset returns the decoder to the idle state, dropping any partial frame.
func (d *Decoder) Reset() {
	d.state = waitPre1
	d.params = nil
	d.sum = 0
}

// Feed runs one byte through the state machine. It returns done=true when a
// complete packet is available via Status. On ErrFraming or ErrChecksum the
// decoder has already reset; the caller is responsible for resyncing the
// byte stream to the next preamble.
func (d *Decoder) Feed(b byte) (done bool, err error) {
	switch d.state {
	case waitPre1:
		if b == 0xFF {
			d.state = waitPre2
		}
		return false, nil

	case waitPre2:
		if b != 0xFF {
			d.Reset()
			return false, fmt.Errorf("%w: preamble interrupted by 0x%02x", ErrFraming, b)
		}
		d.state = readID
		return false, nil

	case readID:
		// 0xFF is not a valid id; a run of 0xFF bytes keeps the last two
		// as the preamble.
		if b == 0xFF {
			return false, nil
		}
		d.id = b
		d.sum = b
		d.params = d.params[:0]
		d.state = readLen
		return false, nil

	case readLen:
		if b < 2 || b > 253 {
			d.Reset()
			return false, fmt.Errorf("%w: length %d out of range", ErrFraming, b)
		}
		d.length = b
		d.sum += b
		d.state = readErr
		return false, nil

	case readErr:
		d.flags = b
		d.sum += b
		if d.length == 2 {
			d.state = readChecksum
		} else {
			d.state = readPayload
		}
		return false, nil

	case readPayload:
		d.params = append(d.params, b)
		d.sum += b
		if len(d.params)+2 >= int(d.length) {
			d.state = readChecksum
		}
		return false, nil

	case readChecksum:
		want := ^d.sum
		if b != want {
			d.Reset()
			return false, fmt.Errorf("%w: got 0x%02x expecting 0x%02x", ErrChecksum, b, want)
		}
		params := make([]byte, len(d.params))
		copy(params, d.params)
		d.last = Status{ID: d.id, Flags: ErrorFlags(d.flags), Params: params}
		d.Reset()
		return true, nil
	}
	d.Reset()
	return false, fmt.Errorf("%w: invalid decoder state", ErrFraming)
}

// Status returns the last completed packet. Valid only immediately after
// Feed reported done.
func (d *Decoder) Status() Status {
	return d.last
}
