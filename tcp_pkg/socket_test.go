package tcp_protocol

import (
	"bytes"
	"context"
	"io"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/xtaci/lossyconn"

	protocol "tcp-sponge/pkg"
)

// newPair starts two hosts joined by a simulated link.
func newPair(t *testing.T, ctx context.Context, loss float64) (a, b *TCPStack) {
	t.Helper()
	linkA, err := lossyconn.NewLossyConn(loss, 2)
	if err != nil {
		t.Fatal(err)
	}
	linkB, err := lossyconn.NewLossyConn(loss, 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		linkA.Close()
		linkB.Close()
	})

	cfg := protocol.DefaultTCPConfig()
	cfg.RTTimeout = 50
	addrA := netip.MustParseAddrPort("10.0.0.1:5000")
	addrB := netip.MustParseAddrPort("10.0.0.2:80")
	a, err = NewTCPStack(StackConfig{
		Name: "a", Local: addrA, Remote: addrB,
		Conn: linkA, Peer: linkB.LocalAddr(), Tick: 5 * time.Millisecond, TCP: cfg,
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err = NewTCPStack(StackConfig{
		Name: "b", Local: addrB, Remote: addrA,
		Conn: linkB, Peer: linkA.LocalAddr(), Tick: 5 * time.Millisecond, TCP: cfg,
	})
	if err != nil {
		t.Fatal(err)
	}
	go a.Run(ctx)
	go b.Run(ctx)
	return a, b
}

func readAll(ctx context.Context, stack *TCPStack) ([]byte, error) {
	var out []byte
	buf := make([]byte, 512)
	for {
		n, err := stack.VRead(ctx, buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

func transfer(t *testing.T, loss float64, size int) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	a, b := newPair(t, ctx, loss)

	if err := a.VConnect(ctx); err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte("0123456789abcdef"), size/16)

	received := make(chan []byte, 1)
	readErr := make(chan error, 1)
	go func() {
		got, err := readAll(ctx, b)
		received <- got
		readErr <- err
	}()

	if n, err := a.VWrite(ctx, data); err != nil || n != len(data) {
		t.Fatalf("VWrite = %d, %v", n, err)
	}
	if err := a.VClose(ctx); err != nil {
		t.Fatal(err)
	}

	got := <-received
	if err := <-readErr; err != nil {
		t.Fatalf("reading: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("received %d bytes that differ from the %d sent", len(got), len(data))
	}
}

func TestStackTransfer(t *testing.T) {
	transfer(t, 0, 200000)
}

func TestStackTransferLossy(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	transfer(t, 0.1, 32000)
}

func TestStackClosedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, _ := newPair(t, ctx, 0)
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err := a.Info(context.Background())
		if err == ErrConnectionClosed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stack still answering after its context was cancelled")
}

func TestREPL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	a, b := newPair(t, ctx, 0)

	var out bytes.Buffer
	repl := &REPL{
		Stacks:  map[string]*TCPStack{"a": a, "b": b},
		Out:     &out,
		Timeout: 5 * time.Second,
	}
	commands := []string{
		"c a",
		"s a hello  world",
		"r b 11",
		"cl a",
		"r b 5",
		"r b 5",
		"bogus",
		"s z hi",
	}
	for _, cmd := range commands {
		if !repl.Execute(ctx, cmd) {
			t.Fatalf("%q quit the REPL", cmd)
		}
	}
	if repl.Execute(ctx, "q") {
		t.Error("q did not quit")
	}

	for _, want := range []string{
		"Sent 12 bytes",
		"Read 11 bytes: hello  worl",
		"Read 1 bytes: d",
		"Stream closed by peer",
		"Invalid command.",
		`Error: no host named "z"`,
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	repl.Execute(ctx, "ls")
	if !strings.Contains(out.String(), "CLOSE_WAIT") {
		t.Errorf("ls output:\n%s", out.String())
	}
}
