// internal/bus/transactor.go
package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/halfduplex/dynabus/internal/packet"
)

// DefaultTimeout is the per-transaction response window. The worst-case
// return delay time is 254 x 2 usec plus transmission time; 50 ms leaves
// room for slow USB adapters.
const DefaultTimeout = 50 * time.Millisecond

// Transactor issues instructions on a Bus and collects the status replies.
// Transactions are strictly serialized: write, then at most one read.
type Transactor struct {
	bus     Bus
	timeout time.Duration
}

// NewTransactor wraps a bus. timeout <= 0 selects DefaultTimeout.
func NewTransactor(b Bus, timeout time.Duration) (*Transactor, error) {
	if b == nil {
		return nil, errors.New("bus: transactor requires a bus")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transactor{bus: b, timeout: timeout}, nil
}

// transact writes cmd and, when a status is due, reads and returns it.
func (t *Transactor) transact(cmd packet.Command, level ReturnLevel) (packet.Status, bool, error) {
	if err := t.bus.WritePacket(cmd.Encode()); err != nil {
		return packet.Status{}, false, err
	}
	if cmd.ID == packet.Broadcast || !returnsStatus(cmd.Instr, level) {
		return packet.Status{}, false, nil
	}
	status, err := t.bus.ReadStatusPacket(t.timeout)
	if err != nil {
		return packet.Status{}, false, err
	}
	return status, true, nil
}

// Ping checks that a device answers. The device error flags are returned
// verbatim: a device that is overheating still answers its ping, and the
// caller decides what to surface.
func (t *Transactor) Ping(id byte) (packet.ErrorFlags, error) {
	status, _, err := t.transact(packet.PingCmd(id), LevelAll)
	if err != nil {
		return 0, err
	}
	return status.Flags, nil
}

// Read reads length bytes of the control table starting at offset.
// A non-zero device error byte is a failure here.
func (t *Transactor) Read(id, offset, length byte) ([]byte, error) {
	status, _, err := t.transact(packet.ReadCmd(id, offset, length), LevelAll)
	if err != nil {
		return nil, err
	}
	if status.Flags != 0 {
		return nil, DeviceFault(status.Flags)
	}
	if status.ID != id {
		return nil, fmt.Errorf("%w: status from id %d, expected %d", packet.ErrFraming, status.ID, id)
	}
	if len(status.Params) != int(length) {
		return nil, fmt.Errorf("%w: read returned %d bytes, expected %d",
			packet.ErrFraming, len(status.Params), length)
	}
	return status.Params, nil
}

// Write writes data at offset. No status is awaited for a broadcast or when
// the device's status-return-level suppresses it.
func (t *Transactor) Write(id, offset byte, data []byte, level ReturnLevel) error {
	return t.checkedWrite(packet.WriteCmd(id, offset, data), level)
}

// RegWrite stages a deferred write, latched at the device until ACTION.
func (t *Transactor) RegWrite(id, offset byte, data []byte, level ReturnLevel) error {
	return t.checkedWrite(packet.RegWriteCmd(id, offset, data), level)
}

// Action broadcasts the trigger for deferred writes. Never answered.
func (t *Transactor) Action() error {
	_, _, err := t.transact(packet.ActionCmd(), LevelAll)
	return err
}

// Reset restores a device's control table to factory defaults.
func (t *Transactor) Reset(id byte, level ReturnLevel) error {
	return t.checkedWrite(packet.ResetCmd(id), level)
}

// SyncWrite broadcasts one value block per device in a single frame.
// Broadcasts are never answered.
func (t *Transactor) SyncWrite(offset, length byte, rows []packet.SyncRow) error {
	cmd, err := packet.SyncWriteCmd(offset, length, rows)
	if err != nil {
		return err
	}
	_, _, err = t.transact(cmd, LevelAll)
	return err
}

func (t *Transactor) checkedWrite(cmd packet.Command, level ReturnLevel) error {
	status, replied, err := t.transact(cmd, level)
	if err != nil {
		return err
	}
	if replied && status.Flags != 0 {
		return DeviceFault(status.Flags)
	}
	return nil
}

// ScanInfo describes one device found by ScanRange.
type ScanInfo struct {
	ID      byte
	Model   uint16
	Version byte
}

// ScanRange pings each id and, for responders, reads the model number and
// firmware version from the head of the control table. Ids that time out
// are skipped; any other error aborts the scan.
func (t *Transactor) ScanRange(ids []byte) ([]ScanInfo, error) {
	var found []ScanInfo
	for _, id := range ids {
		if _, err := t.Ping(id); err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return found, err
		}
		data, err := t.Read(id, 0, 3)
		if err != nil {
			return found, err
		}
		found = append(found, ScanInfo{
			ID:      id,
			Model:   uint16(data[0]) | uint16(data[1])<<8,
			Version: data[2],
		})
	}
	return found, nil
}
