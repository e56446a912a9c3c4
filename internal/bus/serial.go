// internal/bus/serial.go
package bus

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/goburrow/serial"

	"github.com/halfduplex/dynabus/internal/packet"
)

// SerialConfig is the transport config for a serial bus.
type SerialConfig struct {
	Port string
	Baud int

	// ReadTimeout caps each port read. The per-packet deadline passed to
	// ReadStatusPacket is layered on top of it.
	ReadTimeout time.Duration

	// ShowPackets hex-dumps every frame written and read.
	ShowPackets bool
	Logger      *log.Logger
}

// SerialBus implements Bus over a goburrow serial port.
type SerialBus struct {
	port    serial.Port
	dec     packet.Decoder
	pending []byte // bytes drained past a bad frame, starting at a preamble
	show    bool
	log     *log.Logger
}

// OpenSerial opens the port at 8N1 with the configured baud rate.
func OpenSerial(cfg SerialConfig) (*SerialBus, error) {
	if cfg.Port == "" {
		return nil, errors.New("bus: serial port required")
	}
	if cfg.Baud <= 0 {
		return nil, errors.New("bus: baud rate must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 50 * time.Millisecond
	}

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, cfg.Port, err)
	}

	return &SerialBus{
		port: port,
		show: cfg.ShowPackets,
		log:  logger(cfg.Logger),
	}, nil
}

// Close closes the underlying port.
func (b *SerialBus) Close() error {
	if b == nil || b.port == nil {
		return nil
	}
	return b.port.Close()
}

// WritePacket writes one frame. Any input left over from the previous
// transaction is stale by definition and discarded first.
func (b *SerialBus) WritePacket(frame []byte) error {
	b.pending = nil
	b.dec.Reset()

	if b.show {
		b.log.Print(DumpPacket("W", frame))
	}
	n, err := b.port.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: write: %v", ErrIO, err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: short write: %d of %d bytes", ErrIO, n, len(frame))
	}
	return nil
}

// ReadStatusPacket runs port bytes through the decoder until a packet
// completes or the deadline passes. On a framing or checksum error the
// remaining input is drained up to the next preamble so the following
// transaction starts in sync.
func (b *SerialBus) ReadStatusPacket(timeout time.Duration) (packet.Status, error) {
	deadline := time.Now().Add(timeout)
	var trace []byte

	for {
		c, ok, err := b.readByte(deadline)
		if err != nil {
			return packet.Status{}, err
		}
		if !ok {
			return packet.Status{}, ErrTimeout
		}
		trace = append(trace, c)

		done, err := b.dec.Feed(c)
		if err != nil {
			b.drain(deadline)
			return packet.Status{}, err
		}
		if done {
			if b.show {
				b.log.Print(DumpPacket("R", trace))
			}
			return b.dec.Status(), nil
		}
	}
}

// readByte returns the next input byte, consuming drained bytes first.
// ok=false means the deadline passed with nothing to read.
func (b *SerialBus) readByte(deadline time.Time) (byte, bool, error) {
	if len(b.pending) > 0 {
		c := b.pending[0]
		b.pending = b.pending[1:]
		return c, true, nil
	}
	var buf [1]byte
	for {
		n, err := b.port.Read(buf[:])
		if n == 1 {
			return buf[0], true, nil
		}
		if err != nil && err != serial.ErrTimeout {
			return 0, false, fmt.Errorf("%w: read: %v", ErrIO, err)
		}
		if !time.Now().Before(deadline) {
			return 0, false, nil
		}
	}
}

// drain consumes buffered input up to the next FF FF preamble, which is
// retained in pending for the next read. A late reply that straggles in
// after a bad frame is thereby dropped instead of corrupting the next
// transaction.
func (b *SerialBus) drain(deadline time.Time) {
	var prev byte
	var sawPrev bool
	for {
		c, ok, err := b.readByte(deadline)
		if err != nil || !ok {
			return
		}
		if sawPrev && prev == 0xFF && c == 0xFF {
			b.pending = []byte{0xFF, 0xFF}
			return
		}
		prev, sawPrev = c, true
	}
}

func logger(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return log.Default()
}
