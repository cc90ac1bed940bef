// Parley - turn-based voice session client
// Tap the mic, speak, tap again; the backend answers and the reply is played.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/teslashibe/parley/internal/config"
	plog "github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/app"
	"github.com/teslashibe/parley/pkg/audioio"
)

type flags struct {
	configPath string
	backend    string
	skin       string
	playerName string
	dashboard  string
	debug      bool
	mockAudio  bool
	noKeys     bool
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	f := parseFlags()
	if err := run(f); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// parseFlags parses command line flags.
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "YAML config file")
	flag.StringVar(&f.backend, "backend", "", "Backend URL (overrides PARLEY_BACKEND_URL)")
	flag.StringVar(&f.skin, "skin", "", "Session skin: quiz, rpg, wellness, shopping")
	flag.StringVar(&f.playerName, "player-name", "", "Player name sent with the first request")
	flag.StringVar(&f.dashboard, "dashboard", "", "Dashboard port, e.g. 8181 (empty disables)")
	flag.BoolVar(&f.debug, "debug", false, "Enable verbose debug logging")
	flag.BoolVar(&f.mockAudio, "mock-audio", false, "Use in-memory audio devices")
	flag.BoolVar(&f.noKeys, "no-keys", false, "Do not read the keyboard; drive the mic from the dashboard")
	flag.Parse()
	return f
}

// loadConfig layers the file, the environment and the flags, in that order.
func loadConfig(f flags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(f.configPath); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	if f.backend != "" {
		cfg.BackendURL = f.backend
	}
	if f.skin != "" {
		cfg.Skin = f.skin
	}
	if f.playerName != "" {
		cfg.PlayerName = f.playerName
	}
	if f.dashboard != "" {
		cfg.Dashboard.Port = f.dashboard
	}
	if f.debug {
		cfg.LogLevel = "debug"
	}
	if f.mockAudio {
		cfg.Input.Backend = audioio.BackendMock
		cfg.Output.Backend = audioio.BackendMock
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	var (
		out    io.Writer = os.Stdout
		errOut io.Writer = os.Stderr
	)
	fd := int(os.Stdin.Fd())
	raw := !f.noKeys && term.IsTerminal(fd)
	if raw {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer term.Restore(fd, oldState)

		// Raw mode drops the carriage return from newlines.
		out, errOut = crlf(os.Stdout), crlf(os.Stderr)
	}
	logger := plog.InitWriter(errOut, cfg.LogLevel)

	a, err := app.New(cfg, app.WithOutput(out), app.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := a.Init(); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case f.noKeys:
		fmt.Fprintln(out, "⌨️  Keyboard disabled (Ctrl+C to exit)")
	case raw:
		fmt.Fprintln(out, "⌨️  Space or Enter toggles the mic, q quits")
		go readKeys(ctx, os.Stdin, a.Controller(), cancel, logger)
	default:
		fmt.Fprintln(out, "⌨️  Enter toggles the mic, q then Enter quits")
		go readLines(ctx, os.Stdin, a.Controller(), cancel, logger)
	}

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}
