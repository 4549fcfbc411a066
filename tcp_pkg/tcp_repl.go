package tcp_protocol

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// REPL drives a set of named virtual hosts from text commands.
type REPL struct {
	Stacks  map[string]*TCPStack
	Out     io.Writer
	Timeout time.Duration // per-command limit for blocking calls
}

// Execute runs one command line. It returns false when the user asked to quit.
func (repl *REPL) Execute(ctx context.Context, userInput string) bool {
	ctx, cancel := context.WithTimeout(ctx, repl.Timeout)
	defer cancel()

	parts := strings.Fields(userInput)
	if len(parts) == 0 {
		return true
	}
	var err error
	switch {
	case parts[0] == "q":
		return false
	case parts[0] == "ls":
		err = repl.ListSockets(ctx)
	case parts[0] == "c" && len(parts) == 2:
		err = repl.CCommand(ctx, parts[1])
	case parts[0] == "s" && len(parts) >= 3:
		// Keep the payload's own spacing
		payload := strings.SplitN(strings.TrimSpace(userInput), " ", 3)[2]
		err = repl.SCommand(ctx, parts[1], payload)
	case parts[0] == "r" && len(parts) == 3:
		numBytes, perr := strconv.ParseUint(parts[2], 10, 32)
		if perr != nil {
			err = errors.Wrap(perr, "invalid byte count")
			break
		}
		err = repl.RCommand(ctx, parts[1], int(numBytes))
	case parts[0] == "cl" && len(parts) == 2:
		err = repl.CloseCommand(ctx, parts[1])
	default:
		fmt.Fprintln(repl.Out, "Invalid command.")
		return true
	}
	if err != nil {
		fmt.Fprintln(repl.Out, "Error:", err)
	}
	return true
}

func (repl *REPL) stack(name string) (*TCPStack, error) {
	stack, ok := repl.Stacks[name]
	if !ok {
		return nil, errors.Errorf("no host named %q", name)
	}
	return stack, nil
}

// ListSockets prints one line per host.
func (repl *REPL) ListSockets(ctx context.Context) error {
	names := make([]string, 0, len(repl.Stacks))
	for name := range repl.Stacks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(repl.Out, "%-4s %-21s %-21s %-12s %8s %8s %8s\n",
		"Host", "Local", "Remote", "Status", "InFlight", "Pending", "Readable")
	for _, name := range names {
		info, err := repl.Stacks[name].Info(ctx)
		if err != nil {
			return errors.Wrapf(err, "host %s", name)
		}
		fmt.Fprintf(repl.Out, "%-4s %-21s %-21s %-12s %8d %8d %8d\n",
			info.Name, info.Local, info.Remote, info.State,
			info.BytesInFlight, info.UnassembledBytes, info.Readable)
	}
	return nil
}

// CCommand opens a connection from the named host.
func (repl *REPL) CCommand(ctx context.Context, name string) error {
	stack, err := repl.stack(name)
	if err != nil {
		return err
	}
	return stack.VConnect(ctx)
}

// SCommand writes payload to the named host's connection.
func (repl *REPL) SCommand(ctx context.Context, name, payload string) error {
	stack, err := repl.stack(name)
	if err != nil {
		return err
	}
	bytesSent, err := stack.VWrite(ctx, []byte(payload))
	fmt.Fprintln(repl.Out, "Sent "+strconv.Itoa(bytesSent)+" bytes")
	return err
}

// RCommand reads up to numBytes from the named host's connection.
func (repl *REPL) RCommand(ctx context.Context, name string, numBytes int) error {
	stack, err := repl.stack(name)
	if err != nil {
		return err
	}
	appBuffer := make([]byte, numBytes)
	bytesRead, err := stack.VRead(ctx, appBuffer)
	if err == io.EOF {
		fmt.Fprintln(repl.Out, "Stream closed by peer")
		return nil
	}
	fmt.Fprintln(repl.Out, "Read "+strconv.Itoa(bytesRead)+" bytes: "+string(appBuffer[:bytesRead]))
	return err
}

// CloseCommand ends the named host's outbound stream.
func (repl *REPL) CloseCommand(ctx context.Context, name string) error {
	stack, err := repl.stack(name)
	if err != nil {
		return err
	}
	return stack.VClose(ctx)
}
