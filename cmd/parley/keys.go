package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

const tapTimeout = 5 * time.Second

// mic is the part of the controller the keyboard drives.
type mic interface {
	TapMic(ctx context.Context) error
}

// readKeys handles single keypresses from a raw terminal.
func readKeys(ctx context.Context, in io.Reader, m mic, quit context.CancelFunc, logger *slog.Logger) {
	buf := make([]byte, 1)
	for ctx.Err() == nil {
		n, err := in.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		switch buf[0] {
		case ' ', '\r', '\n':
			go tap(ctx, m, logger)
		case 'q', 'Q', 0x03: // Ctrl+C arrives as a byte in raw mode
			quit()
			return
		}
	}
}

// readLines is readKeys for a line-buffered stdin.
func readLines(ctx context.Context, in io.Reader, m mic, quit context.CancelFunc, logger *slog.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() && ctx.Err() == nil {
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "":
			go tap(ctx, m, logger)
		case "q", "quit", "exit":
			quit()
			return
		}
	}
}

func tap(ctx context.Context, m mic, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, tapTimeout)
	defer cancel()
	if err := m.TapMic(ctx); err != nil {
		logger.Info("mic tap rejected", "error", err)
	}
}

// crlfWriter turns "\n" into "\r\n".
type crlfWriter struct {
	w io.Writer
}

func crlf(w io.Writer) io.Writer {
	return crlfWriter{w: w}
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
