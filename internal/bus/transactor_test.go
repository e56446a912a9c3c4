// internal/bus/transactor_test.go
package bus_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/halfduplex/dynabus/internal/bus"
	"github.com/halfduplex/dynabus/internal/packet"
	"github.com/halfduplex/dynabus/internal/testbus"
)

func newTrans(t *testing.T, tb *testbus.Bus) *bus.Transactor {
	t.Helper()
	trans, err := bus.NewTransactor(tb, 0)
	if err != nil {
		t.Fatalf("NewTransactor err=%v", err)
	}
	return trans
}

func drained(t *testing.T, tb *testbus.Bus) {
	t.Helper()
	if err := tb.Drained(); err != nil {
		t.Fatalf("expectations left over: %v", err)
	}
}

func TestPing_ReturnsFlagsVerbatim(t *testing.T) {
	tb := testbus.New()
	tb.ExpectRaw([]byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB})
	tb.QueueRaw([]byte{0xFF, 0xFF, 0x01, 0x02, 0x04, 0xF8})

	flags, err := newTrans(t, tb).Ping(1)
	if err != nil {
		t.Fatalf("Ping err=%v", err)
	}
	// An overheating device still answers its ping; that is a success.
	if flags != packet.ErrOverHeating {
		t.Fatalf("flags = %v", flags)
	}
	drained(t, tb)
}

func TestPing_Timeout(t *testing.T) {
	tb := testbus.New()
	tb.ExpectCmd(1, packet.Ping, nil)
	tb.QueueTimeout()

	if _, err := newTrans(t, tb).Ping(1); !errors.Is(err, bus.ErrTimeout) {
		t.Fatalf("err=%v, want ErrTimeout", err)
	}
	drained(t, tb)
}

func TestRead_ReturnsData(t *testing.T) {
	tb := testbus.New()
	tb.ExpectRaw([]byte{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x2B, 0x01, 0xCC})
	tb.QueueRaw([]byte{0xFF, 0xFF, 0x01, 0x03, 0x00, 0x20, 0xDB})

	data, err := newTrans(t, tb).Read(1, 0x2B, 1)
	if err != nil {
		t.Fatalf("Read err=%v", err)
	}
	if !bytes.Equal(data, []byte{0x20}) {
		t.Fatalf("data = % 02X", data)
	}
	drained(t, tb)
}

func TestRead_DeviceFault(t *testing.T) {
	tb := testbus.New()
	tb.ExpectCmd(1, packet.ReadData, []byte{0x2B, 0x01})
	tb.QueueStatus(1, packet.ErrOverHeating|packet.ErrOverload, nil)

	_, err := newTrans(t, tb).Read(1, 0x2B, 1)
	var fault bus.DeviceFault
	if !errors.As(err, &fault) {
		t.Fatalf("err=%v, want DeviceFault", err)
	}
	if fault.Flags() != packet.ErrOverHeating|packet.ErrOverload {
		t.Fatalf("flags = %v", fault.Flags())
	}
	drained(t, tb)
}

func TestRead_ShortPayloadIsFramingError(t *testing.T) {
	tb := testbus.New()
	tb.ExpectCmd(1, packet.ReadData, []byte{0x00, 0x03})
	tb.QueueStatus(1, 0, []byte{0x0C})

	if _, err := newTrans(t, tb).Read(1, 0, 3); !errors.Is(err, packet.ErrFraming) {
		t.Fatalf("err=%v, want packet.ErrFraming", err)
	}
	drained(t, tb)
}

func TestWrite_BroadcastNeverReads(t *testing.T) {
	tb := testbus.New()
	tb.ExpectRaw([]byte{0xFF, 0xFF, 0xFE, 0x04, 0x03, 0x03, 0x01, 0xF6})
	// No response queued: a read here would fail UnexpectedRead.

	err := newTrans(t, tb).Write(packet.Broadcast, 0x03, []byte{0x01}, bus.LevelUnknown)
	if err != nil {
		t.Fatalf("Write err=%v", err)
	}
	drained(t, tb)
}

func TestWrite_StatusReturnLevels(t *testing.T) {
	// level none and level read both suppress the write status.
	for _, level := range []bus.ReturnLevel{bus.LevelNone, bus.LevelRead} {
		tb := testbus.New()
		tb.ExpectCmd(1, packet.WriteData, []byte{0x19, 0x01})

		if err := newTrans(t, tb).Write(1, 0x19, []byte{0x01}, level); err != nil {
			t.Fatalf("level %v: Write err=%v", level, err)
		}
		drained(t, tb)
	}

	// level all and unknown both await it.
	for _, level := range []bus.ReturnLevel{bus.LevelAll, bus.LevelUnknown} {
		tb := testbus.New()
		tb.ExpectCmd(1, packet.WriteData, []byte{0x19, 0x01})
		tb.QueueStatus(1, 0, nil)

		if err := newTrans(t, tb).Write(1, 0x19, []byte{0x01}, level); err != nil {
			t.Fatalf("level %v: Write err=%v", level, err)
		}
		drained(t, tb)
	}
}

func TestPing_AlwaysAwaitsStatus(t *testing.T) {
	tb := testbus.New()
	tb.ExpectCmd(1, packet.Ping, nil)
	tb.QueueStatus(1, 0, nil)

	// PING is answered at every level, including none.
	trans := newTrans(t, tb)
	if _, err := trans.Ping(1); err != nil {
		t.Fatalf("Ping err=%v", err)
	}
	drained(t, tb)
}

func TestWrite_DeviceFaultOnStatus(t *testing.T) {
	tb := testbus.New()
	tb.ExpectCmd(1, packet.WriteData, []byte{0x1E, 0xFF, 0x03})
	tb.QueueStatus(1, packet.ErrRange, nil)

	err := newTrans(t, tb).Write(1, 0x1E, []byte{0xFF, 0x03}, bus.LevelAll)
	var fault bus.DeviceFault
	if !errors.As(err, &fault) {
		t.Fatalf("err=%v, want DeviceFault", err)
	}
	drained(t, tb)
}

func TestRegWrite_DeferredUntilAction(t *testing.T) {
	tb := testbus.New()
	tb.ExpectCmd(1, packet.RegWrite, []byte{0x1E, 0x00, 0x02})
	tb.QueueStatus(1, 0, nil)
	tb.ExpectRaw([]byte{0xFF, 0xFF, 0xFE, 0x02, 0x05, 0xFA})

	trans := newTrans(t, tb)
	if err := trans.RegWrite(1, 0x1E, []byte{0x00, 0x02}, bus.LevelUnknown); err != nil {
		t.Fatalf("RegWrite err=%v", err)
	}
	if err := trans.Action(); err != nil {
		t.Fatalf("Action err=%v", err)
	}
	drained(t, tb)
}

func TestReset(t *testing.T) {
	tb := testbus.New()
	tb.ExpectRaw([]byte{0xFF, 0xFF, 0x00, 0x02, 0x06, 0xF7})
	tb.QueueRaw([]byte{0xFF, 0xFF, 0x00, 0x02, 0x00, 0xFD})

	if err := newTrans(t, tb).Reset(0, bus.LevelUnknown); err != nil {
		t.Fatalf("Reset err=%v", err)
	}
	drained(t, tb)
}

func TestSyncWrite_BroadcastsOneFrame(t *testing.T) {
	tb := testbus.New()
	cmd, err := packet.SyncWriteCmd(0x1E, 2, []packet.SyncRow{
		{ID: 1, Data: []byte{0x10, 0x00}},
		{ID: 2, Data: []byte{0x20, 0x02}},
	})
	if err != nil {
		t.Fatalf("SyncWriteCmd err=%v", err)
	}
	tb.ExpectRaw(cmd.Encode())

	err = newTrans(t, tb).SyncWrite(0x1E, 2, []packet.SyncRow{
		{ID: 1, Data: []byte{0x10, 0x00}},
		{ID: 2, Data: []byte{0x20, 0x02}},
	})
	if err != nil {
		t.Fatalf("SyncWrite err=%v", err)
	}
	drained(t, tb)
}

func TestScanRange_SkipsSilentIDs(t *testing.T) {
	tb := testbus.New()
	// id 1 answers and reports model 12 version 22.
	tb.ExpectCmd(1, packet.Ping, nil)
	tb.QueueStatus(1, 0, nil)
	tb.ExpectCmd(1, packet.ReadData, []byte{0x00, 0x03})
	tb.QueueStatus(1, 0, []byte{12, 0, 22})
	// id 2 is silent.
	tb.ExpectCmd(2, packet.Ping, nil)
	tb.QueueTimeout()

	found, err := newTrans(t, tb).ScanRange([]byte{1, 2})
	if err != nil {
		t.Fatalf("ScanRange err=%v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d devices, want 1", len(found))
	}
	info := found[0]
	if info.ID != 1 || info.Model != 12 || info.Version != 22 {
		t.Fatalf("info = %+v", info)
	}
	drained(t, tb)
}
