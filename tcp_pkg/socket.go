package tcp_protocol

import (
	"context"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	protocol "tcp-sponge/pkg"
)

// ErrConnectionClosed is returned by calls made after the stack stopped.
var ErrConnectionClosed = errors.New("connection closed")

// TCPStack is a virtual host owning exactly one TCP connection. All access to
// the connection happens on the goroutine running Run; the V* methods hand
// work to it and wait for the result.
type TCPStack struct {
	Name   string
	Local  netip.AddrPort
	Remote netip.AddrPort

	conn    net.PacketConn
	peer    net.Addr
	tcpConn *protocol.TCPConn
	tick    time.Duration

	inbound  chan []byte
	commands chan func()
	done     chan struct{}
	// wake is closed and replaced after every loop iteration so blocked
	// readers and writers re-check the connection.
	wake chan struct{}

	log *log.Entry
}

// StackConfig describes one virtual host.
type StackConfig struct {
	Name   string
	Local  netip.AddrPort
	Remote netip.AddrPort
	// Conn carries encoded datagrams; Peer is where they are sent.
	Conn net.PacketConn
	Peer net.Addr
	// Tick is how often the connection's clock is advanced.
	Tick time.Duration
	TCP  protocol.TCPConfig
}

// NewTCPStack builds a host and its connection. Run must be called to make
// it do anything.
func NewTCPStack(cfg StackConfig) (*TCPStack, error) {
	if cfg.Conn == nil || cfg.Peer == nil {
		return nil, errors.New("stack needs a packet conn and a peer address")
	}
	if cfg.Tick <= 0 {
		return nil, errors.Errorf("tick interval must be positive, got %v", cfg.Tick)
	}
	logger := log.WithFields(log.Fields{"host": cfg.Name, "local": cfg.Local, "remote": cfg.Remote})
	tcpConn, err := protocol.NewTCPConn(cfg.TCP, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "host %s", cfg.Name)
	}
	return &TCPStack{
		Name:     cfg.Name,
		Local:    cfg.Local,
		Remote:   cfg.Remote,
		conn:     cfg.Conn,
		peer:     cfg.Peer,
		tcpConn:  tcpConn,
		tick:     cfg.Tick,
		inbound:  make(chan []byte, 64),
		commands: make(chan func()),
		done:     make(chan struct{}),
		wake:     make(chan struct{}),
		log:      logger,
	}, nil
}

// Run is the host's event loop. It returns when ctx is cancelled or the
// packet conn fails.
func (stack *TCPStack) Run(ctx context.Context) error {
	defer close(stack.done)
	readErr := make(chan error, 1)
	go func() { readErr <- stack.readLoop() }()

	ticker := time.NewTicker(stack.tick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return errors.Wrap(err, "reading from link")
		case packet := <-stack.inbound:
			stack.TCPHandler(packet)
		case now := <-ticker.C:
			ms := now.Sub(last).Milliseconds()
			if ms > 0 {
				stack.tcpConn.Tick(uint64(ms))
				last = now
			}
		case cmd := <-stack.commands:
			cmd()
		}
		stack.sendSegments()
		close(stack.wake)
		stack.wake = make(chan struct{})
	}
}

// exec runs fn on the event loop and returns the wake channel that will be
// closed after the iteration that ran fn.
func (stack *TCPStack) exec(ctx context.Context, fn func()) (<-chan struct{}, error) {
	var wake chan struct{}
	ran := make(chan struct{})
	cmd := func() {
		fn()
		wake = stack.wake
		close(ran)
	}
	select {
	case stack.commands <- cmd:
	case <-stack.done:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	<-ran
	return wake, nil
}

// VConnect actively opens the connection.
func (stack *TCPStack) VConnect(ctx context.Context) error {
	_, err := stack.exec(ctx, stack.tcpConn.Connect)
	return err
}

// VWrite blocks until every byte of data was accepted by the outbound
// stream, the connection dies, or ctx is done.
func (stack *TCPStack) VWrite(ctx context.Context, data []byte) (int, error) {
	written := 0
	for {
		var active bool
		wake, err := stack.exec(ctx, func() {
			active = stack.tcpConn.Active() && !stack.tcpConn.OutboundStream().InputEnded()
			if active {
				written += stack.tcpConn.Write(data[written:])
			}
		})
		if err != nil {
			return written, err
		}
		if !active {
			return written, ErrConnectionClosed
		}
		if written == len(data) {
			return written, nil
		}
		if err := waitFor(ctx, wake, stack.done); err != nil {
			return written, err
		}
	}
}

// VRead blocks until at least one byte can be read into buf, then reads as
// many as fit. It returns io.EOF once the peer finished and everything was
// read.
func (stack *TCPStack) VRead(ctx context.Context, buf []byte) (int, error) {
	for {
		var (
			n      int
			eof    bool
			failed bool
		)
		wake, err := stack.exec(ctx, func() {
			in := stack.tcpConn.InboundStream()
			n = copy(buf, in.Read(len(buf)))
			eof = in.EOF()
			failed = in.Error()
		})
		switch {
		case err != nil:
			return n, err
		case n > 0:
			return n, nil
		case eof:
			return 0, io.EOF
		case failed:
			return 0, ErrConnectionClosed
		}
		if err := waitFor(ctx, wake, stack.done); err != nil {
			return 0, err
		}
	}
}

// VClose ends the outbound stream. The peer keeps sending until it closes too.
func (stack *TCPStack) VClose(ctx context.Context) error {
	_, err := stack.exec(ctx, stack.tcpConn.EndInputStream)
	return err
}

// SocketInfo is a snapshot of the connection for listings.
type SocketInfo struct {
	Name             string
	Local, Remote    netip.AddrPort
	State            string
	BytesInFlight    uint64
	UnassembledBytes int
	Readable         int
}

// Info returns a snapshot of the connection.
func (stack *TCPStack) Info(ctx context.Context) (SocketInfo, error) {
	info := SocketInfo{Name: stack.Name, Local: stack.Local, Remote: stack.Remote}
	_, err := stack.exec(ctx, func() {
		info.State = stack.tcpConn.State()
		info.BytesInFlight = stack.tcpConn.BytesInFlight()
		info.UnassembledBytes = stack.tcpConn.UnassembledBytes()
		info.Readable = stack.tcpConn.InboundStream().BufferSize()
	})
	return info, err
}

func waitFor(ctx context.Context, wake <-chan struct{}, done <-chan struct{}) error {
	select {
	case <-wake:
		return nil
	case <-done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
