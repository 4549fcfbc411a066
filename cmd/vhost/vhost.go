package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xtaci/lossyconn"

	protocol "tcp-sponge/pkg"
	tcp_protocol "tcp-sponge/tcp_pkg"
)

var (
	configFile string
	loss       float64
	delayMs    int
	tickMs     int
	logLevel   string
	addrA      string
	addrB      string
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: false,
	})
	flag.StringVar(&configFile, "config", "", "TOML file with tcp settings (defaults are used when empty)")
	flag.Float64Var(&loss, "loss", 0, "fraction of datagrams the simulated link drops, in [0,1]")
	flag.IntVar(&delayMs, "delay", 5, "one-way link latency in milliseconds")
	flag.IntVar(&tickMs, "tick", 10, "how often each host advances its connection clock, in milliseconds")
	flag.StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&addrA, "a", "10.0.0.1:5000", "virtual address of host a")
	flag.StringVar(&addrB, "b", "10.0.0.2:80", "virtual address of host b")
	flag.Parse()

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalln("bad log level:", err)
	}
	log.SetLevel(level)

	cfg := protocol.DefaultTCPConfig()
	if configFile != "" {
		cfg, err = protocol.LoadConfig(configFile)
		if err != nil {
			log.Fatalln(err)
		}
	}
	local, err := netip.ParseAddrPort(addrA)
	if err != nil {
		log.Fatalln("bad address for a:", err)
	}
	remote, err := netip.ParseAddrPort(addrB)
	if err != nil {
		log.Fatalln("bad address for b:", err)
	}

	linkA, err := lossyconn.NewLossyConn(loss, delayMs)
	if err != nil {
		log.Fatalln(err)
	}
	defer linkA.Close()
	linkB, err := lossyconn.NewLossyConn(loss, delayMs)
	if err != nil {
		log.Fatalln(err)
	}
	defer linkB.Close()

	tick := time.Duration(tickMs) * time.Millisecond
	stackA, err := tcp_protocol.NewTCPStack(tcp_protocol.StackConfig{
		Name: "a", Local: local, Remote: remote,
		Conn: linkA, Peer: linkB.LocalAddr(), Tick: tick, TCP: cfg,
	})
	if err != nil {
		log.Fatalln(err)
	}
	stackB, err := tcp_protocol.NewTCPStack(tcp_protocol.StackConfig{
		Name: "b", Local: remote, Remote: local,
		Conn: linkB, Peer: linkA.LocalAddr(), Tick: tick, TCP: cfg,
	})
	if err != nil {
		log.Fatalln(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	for _, stack := range []*tcp_protocol.TCPStack{stackA, stackB} {
		go func(stack *tcp_protocol.TCPStack) {
			if err := stack.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithField("host", stack.Name).Errorln("host stopped:", err)
			}
		}(stack)
	}
	log.Infof("hosts a=%s b=%s, link loss=%.2f delay=%dms", local, remote, loss, delayMs)

	repl := &tcp_protocol.REPL{
		Stacks:  map[string]*tcp_protocol.TCPStack{"a": stackA, "b": stackB},
		Out:     os.Stdout,
		Timeout: 10 * time.Second,
	}
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Enter command:")
	for scanner.Scan() {
		if !repl.Execute(ctx, scanner.Text()) {
			return
		}
	}
}
