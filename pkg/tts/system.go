package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/parley/internal/log"
)

// Base speaking rates in words per minute before Rate is applied.
const (
	espeakBaseWPM = 175
	sayBaseWPM    = 175
)

// runner executes an engine process. Swapped out in tests.
type runner func(ctx context.Context, bin string, args []string, stdin string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, bin string, args []string, stdin string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Engine is a Provider backed by a local speech program.
type Engine struct {
	name string
	cfg  *Config
	run  runner
	look func(string) (string, error)

	// synth runs the program and returns WAV bytes.
	synth func(ctx context.Context, e *Engine, bin, text string) ([]byte, error)
}

// NewEspeak returns a provider for espeak-ng, which writes WAV to stdout.
func NewEspeak(opts ...Option) *Engine {
	return newEngine("espeak-ng", espeakSynth, opts...)
}

// NewSay returns a provider for the macOS say command.
func NewSay(opts ...Option) *Engine {
	return newEngine("say", saySynth, opts...)
}

func newEngine(name string, synth func(context.Context, *Engine, string, string) ([]byte, error), opts ...Option) *Engine {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	cfg.Logger = log.Or(cfg.Logger, "tts."+name)
	return &Engine{
		name:  name,
		cfg:   cfg,
		run:   execRunner,
		look:  exec.LookPath,
		synth: synth,
	}
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.name
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return *e.cfg
}

func (e *Engine) binary() (string, error) {
	bin := e.cfg.Binary
	if bin == "" {
		bin = e.name
	}
	path, err := e.look(bin)
	if err != nil {
		return "", WrapError(e.name, fmt.Errorf("%w: %v", ErrEngineNotFound, err))
	}
	return path, nil
}

// Synthesize runs the engine and returns a WAV file.
func (e *Engine) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, WrapError(e.name, ErrEmptyText)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, WrapError(e.name, err)
	}

	bin, err := e.binary()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	audio, err := e.synth(ctx, e, bin, text)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, WrapError(e.name, ErrNoAudio)
	}

	e.cfg.Logger.Debug("synthesized",
		"chars", len(text),
		"bytes", len(audio),
		"latency", time.Since(start),
	)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingWAV, BitDepth: 16},
		CharCount: len(text),
		Latency:   time.Since(start),
		Provider:  e.name,
	}, nil
}

func (e *Engine) exec(ctx context.Context, bin string, args []string, stdin string) ([]byte, error) {
	stdout, stderr, err := e.run(ctx, bin, args, stdin)
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapError(e.name, ctx.Err())
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &EngineError{Engine: e.name, ExitCode: code, Stderr: string(stderr), Err: err}
	}
	return stdout, nil
}

func espeakSynth(ctx context.Context, e *Engine, bin, text string) ([]byte, error) {
	args := []string{"--stdout", "--stdin", "-s", strconv.Itoa(e.cfg.wordsPerMinute(espeakBaseWPM))}
	if e.cfg.Voice != "" {
		args = append(args, "-v", e.cfg.Voice)
	}
	return e.exec(ctx, bin, args, text)
}

func saySynth(ctx context.Context, e *Engine, bin, text string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "parley-say-")
	if err != nil {
		return nil, WrapError(e.name, err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "speech.wav")

	args := []string{
		"-r", strconv.Itoa(e.cfg.wordsPerMinute(sayBaseWPM)),
		"-o", out,
		"--file-format=WAVE",
		"--data-format=LEI16@22050",
	}
	if e.cfg.Voice != "" {
		args = append(args, "-v", e.cfg.Voice)
	}
	args = append(args, "--", text)

	if _, err := e.exec(ctx, bin, args, ""); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, WrapError(e.name, fmt.Errorf("%w: %v", ErrNoAudio, err))
	}
	return data, nil
}

// Health reports whether the engine binary is installed.
func (e *Engine) Health(ctx context.Context) error {
	_, err := e.binary()
	return err
}

// Close is a no-op; engines hold no resources between runs.
func (e *Engine) Close() error {
	return nil
}

// NewSystem returns the default local engine chain: espeak-ng, then say.
func NewSystem(opts ...Option) (*Chain, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return NewChainWithLogger(cfg.Logger, NewEspeak(opts...), NewSay(opts...))
}

var _ Provider = (*Engine)(nil)
