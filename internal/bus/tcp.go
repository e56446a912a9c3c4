// internal/bus/tcp.go
package bus

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/halfduplex/dynabus/internal/packet"
)

// TCPConfig is the transport config for a bus reached through a serial
// bridge (e.g. an ESP-Link or ser2net endpoint).
type TCPConfig struct {
	Endpoint    string // host:port
	DialTimeout time.Duration
	ShowPackets bool
	Logger      *log.Logger
}

// TCPBus implements Bus over a TCP connection.
type TCPBus struct {
	conn    net.Conn
	dec     packet.Decoder
	pending []byte
	show    bool
	log     *log.Logger
}

// DialTCP connects to a serial bridge endpoint.
func DialTCP(cfg TCPConfig) (*TCPBus, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("bus: tcp endpoint required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", cfg.Endpoint, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrIO, cfg.Endpoint, err)
	}
	return &TCPBus{
		conn: conn,
		show: cfg.ShowPackets,
		log:  logger(cfg.Logger),
	}, nil
}

// Close closes the connection.
func (b *TCPBus) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// WritePacket writes one frame, discarding stale input first.
func (b *TCPBus) WritePacket(frame []byte) error {
	b.pending = nil
	b.dec.Reset()

	if b.show {
		b.log.Print(DumpPacket("W", frame))
	}
	if _, err := b.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: write: %v", ErrIO, err)
	}
	return nil
}

// ReadStatusPacket parses one status packet, waiting up to timeout.
func (b *TCPBus) ReadStatusPacket(timeout time.Duration) (packet.Status, error) {
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

func (b *TCPBus) readByte(deadline time.Time) (byte, bool, error) {
	if len(b.pending) > 0 {
		c := b.pending[0]
		b.pending = b.pending[1:]
		return c, true, nil
	}
	if err := b.conn.SetReadDeadline(deadline); err != nil {
		return 0, false, fmt.Errorf("%w: set deadline: %v", ErrIO, err)
	}
	var buf [1]byte
	n, err := b.conn.Read(buf[:])
	if n == 1 {
		return buf[0], true, nil
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, false, nil
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: read: %v", ErrIO, err)
	}
	return 0, false, nil
}

func (b *TCPBus) drain(deadline time.Time) {
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
