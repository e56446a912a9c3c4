// internal/packet/encode.go
package packet

import "fmt"

// Command is an instruction packet before encoding.
type Command struct {
	ID     byte
	Instr  Instr
	Params []byte
}

// Checksum computes the packet checksum over the bytes after the preamble
// (id, len, code, params).
func Checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return ^sum
}

// Encode builds the wire frame: FF FF id len code params... chk,
// with len = 2 + len(params).
func (c Command) Encode() []byte {
	buf := make([]byte, 0, 6+len(c.Params))
	buf = append(buf, 0xFF, 0xFF, c.ID, byte(len(c.Params)+2), byte(c.Instr))
	buf = append(buf, c.Params...)
	return append(buf, Checksum(buf[2:]))
}

// EncodeStatus builds a status frame. Only the test bus sends these.
func EncodeStatus(id byte, flags ErrorFlags, params []byte) []byte {
	buf := make([]byte, 0, 6+len(params))
	buf = append(buf, 0xFF, 0xFF, id, byte(len(params)+2), byte(flags))
	buf = append(buf, params...)
	return append(buf, Checksum(buf[2:]))
}

// ---- instruction layouts ----

func PingCmd(id byte) Command {
	return Command{ID: id, Instr: Ping}
}

func ReadCmd(id, offset, length byte) Command {
	return Command{ID: id, Instr: ReadData, Params: []byte{offset, length}}
}

func WriteCmd(id, offset byte, data []byte) Command {
	return Command{ID: id, Instr: WriteData, Params: writeParams(offset, data)}
}

func RegWriteCmd(id, offset byte, data []byte) Command {
	return Command{ID: id, Instr: RegWrite, Params: writeParams(offset, data)}
}

func ActionCmd() Command {
	return Command{ID: Broadcast, Instr: Action}
}

func ResetCmd(id byte) Command {
	return Command{ID: id, Instr: Reset}
}

func writeParams(offset byte, data []byte) []byte {
	p := make([]byte, 1+len(data))
	p[0] = offset
	copy(p[1:], data)
	return p
}

// SyncRow is one device's slice of a SYNC_WRITE.
type SyncRow struct {
	ID   byte
	Data []byte
}

// SyncWriteCmd builds a broadcast SYNC_WRITE: offset, per-device length,
// then (id, data) per row. Every row must carry length bytes.
func SyncWriteCmd(offset, length byte, rows []SyncRow) (Command, error) {
	params := make([]byte, 0, 2+len(rows)*(1+int(length)))
	params = append(params, offset, length)
	for _, row := range rows {
		if len(row.Data) != int(length) {
			return Command{}, fmt.Errorf("packet: sync write row for id %d carries %d bytes, want %d",
				row.ID, len(row.Data), length)
		}
		params = append(params, row.ID)
		params = append(params, row.Data...)
	}
	return Command{ID: Broadcast, Instr: SyncWrite, Params: params}, nil
}
