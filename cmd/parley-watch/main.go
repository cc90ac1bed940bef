// parley-watch mirrors a running parley dashboard in another terminal.
// Enter sends a mic tap to the session.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	plog "github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/render"
)

func main() {
	url := flag.String("url", "ws://localhost:8181/ws/screen", "Dashboard screen socket")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	logger := plog.Init(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	taps := make(chan struct{}, 1)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case taps <- struct{}{}:
			default:
			}
		}
	}()

	w := newWatcher(*url, render.NewTerminal(os.Stdout), logger)
	if err := w.Run(ctx, taps); err != nil {
		log.Fatalf("❌ %v", err)
	}
}
