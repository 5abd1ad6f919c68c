// Package transport implements the gateway's UDP ingestion side (C1):
// binding to a multicast group or a plain unicast socket, tuned socket
// options, and a capped-backoff read loop that hands each datagram to
// the caller with its receive timestamp.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Mode selects how Receiver binds its socket.
type Mode int

const (
	// ModeNormal binds a multicast group via net.ListenMulticastUDP when
	// Address's IP falls in 224.0.0.0-239.255.255.255, and a plain UDP
	// unicast bind otherwise.
	ModeNormal Mode = iota
	// ModeTesting always binds a plain unicast/loopback socket,
	// bypassing multicast group membership entirely.
	ModeTesting
)

// Config configures a Receiver.
type Config struct {
	// Address is host:port to bind. In ModeNormal with a multicast-range
	// IP, this is the multicast group to join.
	Address string
	// Interface names the NIC multicast group membership is joined on;
	// empty selects the system default interface.
	Interface string
	Mode      Mode
	// RecvBufferBytes sets SO_RCVBUF; 0 leaves the OS default.
	RecvBufferBytes int
	// ReadTimeout bounds each blocking read via SO_RCVTIMEO so the read
	// loop can observe context cancellation promptly; defaults to 100ms.
	ReadTimeout time.Duration
	// MaxDatagramSize bounds the per-read buffer; datagrams larger than
	// this are truncated by the kernel like any UDP read.
	MaxDatagramSize int
	// InitialBackoff and MaxBackoff bound the retry delay after a
	// non-timeout read error.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.MaxDatagramSize <= 0 {
		c.MaxDatagramSize = 64 * 1024
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 3 * time.Second
	}
	return c
}

// Stats are read-only counters exposed for diagnostics.
type Stats struct {
	PacketsReceived uint64
	BytesReceived   uint64
	ReadErrors      uint64
	Timeouts        uint64
}

// Handler is invoked once per received datagram. recvNs is the
// monotonic-clock-agnostic wall-clock timestamp (nanoseconds since
// epoch) taken immediately after the read returns. payload aliases the
// Receiver's internal buffer and is only valid until Handler returns.
type Handler func(payload []byte, recvNs uint64)

// Receiver is a single dedicated-goroutine UDP datagram source. It is
// not safe to call Run concurrently from multiple goroutines on the
// same Receiver.
type Receiver struct {
	cfg    Config
	logger *zap.Logger
	conn   *net.UDPConn
	closed atomic.Bool

	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
	readErrors      atomic.Uint64
	timeouts        atomic.Uint64
}

// NewReceiver constructs a Receiver. Bind is deferred to Run so that
// construction never fails and the caller decides when the socket
// opens.
func NewReceiver(cfg Config, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{cfg: cfg.withDefaults(), logger: logger}
}

// Run binds the socket, applies tuning options, and reads datagrams
// until ctx is canceled or Close is called, invoking handle for each
// one. Non-timeout read errors are retried with capped exponential
// backoff rather than aborting the loop, matching the reconnect
// discipline the rest of this codebase uses for its transports.
func (r *Receiver) Run(ctx context.Context, handle Handler) error {
	if err := r.bind(); err != nil {
		return fmt.Errorf("%w (%s): %w", ErrBindFailed, r.cfg.Address, err)
	}
	defer r.conn.Close()

	buf := make([]byte, r.cfg.MaxDatagramSize)
	backoff := r.cfg.InitialBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				r.timeouts.Add(1)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if r.closed.Load() {
				return ErrClosed
			}

			r.readErrors.Add(1)
			r.logger.Warn("transport: read error, retrying",
				zap.Error(err), zap.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > r.cfg.MaxBackoff {
				backoff = r.cfg.MaxBackoff
			}
			continue
		}

		backoff = r.cfg.InitialBackoff
		recvNs := uint64(time.Now().UnixNano())
		r.packetsReceived.Add(1)
		r.bytesReceived.Add(uint64(n))
		handle(buf[:n], recvNs)
	}
}

// Close closes the underlying socket, unblocking any in-flight read. A
// concurrent Run observes the closed conn as a read error and returns
// ErrClosed instead of retrying with backoff.
func (r *Receiver) Close() error {
	r.closed.Store(true)
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Stats returns a snapshot of this receiver's counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		PacketsReceived: r.packetsReceived.Load(),
		BytesReceived:   r.bytesReceived.Load(),
		ReadErrors:      r.readErrors.Load(),
		Timeouts:        r.timeouts.Load(),
	}
}

func (r *Receiver) bind() error {
	udpAddr, err := net.ResolveUDPAddr("udp", r.cfg.Address)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", r.cfg.Address, err)
	}

	var conn *net.UDPConn
	if r.cfg.Mode == ModeNormal && udpAddr.IP.IsMulticast() {
		var iface *net.Interface
		if r.cfg.Interface != "" {
			iface, err = net.InterfaceByName(r.cfg.Interface)
			if err != nil {
				return fmt.Errorf("interface %s: %w", r.cfg.Interface, err)
			}
		}
		conn, err = net.ListenMulticastUDP("udp", iface, udpAddr)
	} else {
		conn, err = net.ListenUDP("udp", udpAddr)
	}
	if err != nil {
		return err
	}

	if r.cfg.RecvBufferBytes > 0 {
		if err := conn.SetReadBuffer(r.cfg.RecvBufferBytes); err != nil {
			r.logger.Warn("transport: SetReadBuffer failed", zap.Error(err))
		}
	}
	if err := setSockoptTuning(conn, r.cfg); err != nil {
		r.logger.Warn("transport: socket option tuning failed", zap.Error(err))
	}

	r.conn = conn
	return nil
}

// setSockoptTuning applies SO_REUSEADDR and SO_RCVTIMEO at the raw
// socket level. These are best-effort: a failure here is logged, not
// fatal, since SetReadDeadline above already bounds each read.
func setSockoptTuning(conn *net.UDPConn, cfg Config) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = err
			return
		}
		tv := unix.NsecToTimeval(cfg.ReadTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(int(fd), unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			sockErr = err
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
