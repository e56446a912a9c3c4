// internal/packet/packet_test.go
package packet

import (
	"bytes"
	"errors"
	"testing"
)

// ---- encoding ----

func TestEncode_GoldenFrames(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{
			name: "write id to broadcast",
			cmd:  WriteCmd(Broadcast, 0x03, []byte{0x01}),
			want: []byte{0xFF, 0xFF, 0xFE, 0x04, 0x03, 0x03, 0x01, 0xF6},
		},
		{
			name: "read present temp",
			cmd:  ReadCmd(1, 0x2B, 1),
			want: []byte{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x2B, 0x01, 0xCC},
		},
		{
			name: "ping",
			cmd:  PingCmd(1),
			want: []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB},
		},
		{
			name: "reset",
			cmd:  ResetCmd(0),
			want: []byte{0xFF, 0xFF, 0x00, 0x02, 0x06, 0xF7},
		},
		{
			name: "write goal position 0x3ff",
			cmd:  WriteCmd(1, 0x1E, []byte{0xFF, 0x03}),
			want: []byte{0xFF, 0xFF, 0x01, 0x05, 0x03, 0x1E, 0xFF, 0x03, 0xD6},
		},
		{
			name: "action broadcast",
			cmd:  ActionCmd(),
			want: []byte{0xFF, 0xFF, 0xFE, 0x02, 0x05, 0xFA},
		},
	}
	for _, tc := range cases {
		got := tc.cmd.Encode()
		if !bytes.Equal(got, tc.want) {
			t.Errorf("%s: encoded % 02X, want % 02X", tc.name, got, tc.want)
		}
	}
}

func TestEncode_SyncWrite(t *testing.T) {
	cmd, err := SyncWriteCmd(0x1E, 2, []SyncRow{
		{ID: 1, Data: []byte{0x10, 0x00}},
		{ID: 2, Data: []byte{0x20, 0x02}},
	})
	if err != nil {
		t.Fatalf("SyncWriteCmd err=%v", err)
	}
	frame := cmd.Encode()
	if frame[2] != Broadcast {
		t.Fatalf("sync write must broadcast, id=0x%02x", frame[2])
	}
	if frame[4] != byte(SyncWrite) {
		t.Fatalf("instruction byte 0x%02x, want 0x83", frame[4])
	}
	// len = params(2 + 2*(1+2)) + 2
	if frame[3] != 10 {
		t.Fatalf("length byte %d, want 10", frame[3])
	}
	if Checksum(frame[2:len(frame)-1]) != frame[len(frame)-1] {
		t.Fatalf("checksum invalid in % 02X", frame)
	}
}

func TestEncode_SyncWriteRowWidthMismatch(t *testing.T) {
	_, err := SyncWriteCmd(0x1E, 2, []SyncRow{{ID: 1, Data: []byte{0x10}}})
	if err == nil {
		t.Fatal("expected error for short row")
	}
}

// ---- decoding ----

func feedAll(t *testing.T, d *Decoder, frame []byte) (Status, error) {
	t.Helper()
	for i, c := range frame {
		done, err := d.Feed(c)
		if err != nil {
			return Status{}, err
		}
		if done {
			if i != len(frame)-1 {
				t.Fatalf("packet completed early at byte %d of %d", i, len(frame))
			}
			return d.Status(), nil
		}
	}
	t.Fatal("frame did not complete")
	return Status{}, nil
}

func TestDecode_RoundTrip(t *testing.T) {
	cases := []Status{
		{ID: 1, Flags: 0, Params: []byte{}},
		{ID: 1, Flags: ErrOverHeating, Params: []byte{}},
		{ID: 0, Flags: 0, Params: []byte{0x20}},
		{ID: 42, Flags: ErrOverload | ErrChecksumFlag, Params: []byte{1, 2, 3, 4, 5}},
	}
	var d Decoder
	for _, want := range cases {
		frame := EncodeStatus(want.ID, want.Flags, want.Params)
		got, err := feedAll(t, &d, frame)
		if err != nil {
			t.Fatalf("decode(% 02X) err=%v", frame, err)
		}
		if got.ID != want.ID || got.Flags != want.Flags || !bytes.Equal(got.Params, want.Params) {
			t.Fatalf("decode(% 02X) = %+v, want %+v", frame, got, want)
		}
	}
}

func TestDecode_StatusGolden(t *testing.T) {
	var d Decoder
	got, err := feedAll(t, &d, []byte{0xFF, 0xFF, 0x01, 0x03, 0x00, 0x20, 0xDB})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got.ID != 1 || got.Flags != 0 || !bytes.Equal(got.Params, []byte{0x20}) {
		t.Fatalf("got %+v", got)
	}
}

func TestDecode_TripleFF(t *testing.T) {
	// A run of 0xFF keeps the last two as the preamble; 0xFF is not an id.
	var d Decoder
	got, err := feedAll(t, &d, []byte{0xFF, 0xFF, 0xFF, 0x01, 0x02, 0x04, 0xF8})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got.ID != 1 || got.Flags != ErrOverHeating {
		t.Fatalf("got %+v", got)
	}
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	var d Decoder
	frame := []byte{0xFF, 0xFF, 0x01, 0x02, 0x00, 0x00}
	var gotErr error
	for _, c := range frame {
		if _, err := d.Feed(c); err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrChecksum) {
		t.Fatalf("err=%v, want ErrChecksum", gotErr)
	}
}

func TestDecode_BadLength(t *testing.T) {
	for _, badLen := range []byte{0, 1, 254, 255} {
		var d Decoder
		var gotErr error
		for _, c := range []byte{0xFF, 0xFF, 0x01, badLen} {
			if _, err := d.Feed(c); err != nil {
				gotErr = err
			}
		}
		if !errors.Is(gotErr, ErrFraming) {
			t.Fatalf("len %d: err=%v, want ErrFraming", badLen, gotErr)
		}
	}
}

func TestDecode_InterruptedPreamble(t *testing.T) {
	var d Decoder
	if _, err := d.Feed(0xFF); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := d.Feed(0x55); !errors.Is(err, ErrFraming) {
		t.Fatalf("err=%v, want ErrFraming", err)
	}
}

func TestDecode_ResyncAfterError(t *testing.T) {
	// After any decode error the next valid preamble must parse cleanly.
	var d Decoder
	for _, c := range []byte{0xFF, 0x13} {
		d.Feed(c)
	}
	got, err := feedAll(t, &d, []byte{0xFF, 0xFF, 0x01, 0x02, 0x00, 0xFC})
	if err != nil {
		t.Fatalf("post-resync err=%v", err)
	}
	if got.ID != 1 || got.Flags != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestDecode_SkipsNoiseWhileIdle(t *testing.T) {
	var d Decoder
	for _, c := range []byte{0x00, 0x7E, 0x13} {
		if done, err := d.Feed(c); done || err != nil {
			t.Fatalf("noise byte 0x%02x: done=%v err=%v", c, done, err)
		}
	}
	if _, err := feedAll(t, &d, []byte{0xFF, 0xFF, 0x01, 0x02, 0x00, 0xFC}); err != nil {
		t.Fatalf("err=%v", err)
	}
}

// ---- names and flags ----

func TestErrorFlags_String(t *testing.T) {
	cases := []struct {
		flags ErrorFlags
		want  string
	}{
		{0, "None"},
		{AllFlags, "All"},
		{ErrOverHeating, "OverHeating"},
		{ErrInputVoltage | ErrOverload, "InputVoltage,Overload"},
	}
	for _, tc := range cases {
		if got := tc.flags.String(); got != tc.want {
			t.Errorf("String(0x%02x) = %q, want %q", byte(tc.flags), got, tc.want)
		}
	}
}

func TestParseErrorFlags(t *testing.T) {
	cases := []struct {
		in   string
		want ErrorFlags
	}{
		{"none", 0},
		{"NONE", 0},
		{"all", AllFlags},
		{"OverHeating", ErrOverHeating},
		{"overheating", ErrOverHeating},
		{"InputVoltage,Overload", ErrInputVoltage | ErrOverload},
		{"checksum, range", ErrChecksumFlag | ErrRange},
	}
	for _, tc := range cases {
		got, err := ParseErrorFlags(tc.in)
		if err != nil {
			t.Errorf("ParseErrorFlags(%q) err=%v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseErrorFlags(%q) = 0x%02x, want 0x%02x", tc.in, byte(got), byte(tc.want))
		}
	}
	if _, err := ParseErrorFlags("bogus"); err == nil {
		t.Error("expected error for unknown flag name")
	}
}

func TestParseInstr(t *testing.T) {
	for name, want := range map[string]Instr{
		"ping":      Ping,
		"read":      ReadData,
		"write":     WriteData,
		"reg-write": RegWrite,
		"action":    Action,
		"reset":     Reset,
	} {
		got, err := ParseInstr(name)
		if err != nil || got != want {
			t.Errorf("ParseInstr(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseInstr("sync-read"); err == nil {
		t.Error("expected error for unknown instruction")
	}
}
