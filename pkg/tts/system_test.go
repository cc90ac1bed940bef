package tts

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRun struct {
	bin   string
	args  []string
	stdin string
	out   []byte
	err   error
}

func (f *fakeRun) run(ctx context.Context, bin string, args []string, stdin string) ([]byte, []byte, error) {
	f.bin, f.args, f.stdin = bin, args, stdin
	return f.out, []byte("diagnostic"), f.err
}

func found(name string) (string, error) { return "/usr/bin/" + name, nil }

func TestEspeakArgs(t *testing.T) {
	fr := &fakeRun{out: []byte("RIFF....WAVE")}
	e := NewEspeak(WithVoice("en-gb"))
	e.run, e.look = fr.run, found

	res, err := e.Synthesize(t.Context(), "  Welcome to the show  ")
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/espeak-ng", fr.bin)
	assert.Equal(t, []string{"--stdout", "--stdin", "-s", "193", "-v", "en-gb"}, fr.args)
	assert.Equal(t, "Welcome to the show", fr.stdin)

	assert.Equal(t, EncodingWAV, res.Format.Encoding)
	assert.Equal(t, "espeak-ng", res.Provider)
	assert.Equal(t, 19, res.CharCount)
}

func TestSayWritesTempFile(t *testing.T) {
	e := NewSay(WithRate(1))
	e.look = found
	e.run = func(ctx context.Context, bin string, args []string, stdin string) ([]byte, []byte, error) {
		var out string
		for i, a := range args {
			if a == "-o" {
				out = args[i+1]
			}
		}
		require.NotEmpty(t, out)
		assert.Equal(t, []string{"-r", "175"}, args[:2])
		assert.Equal(t, "Hello", args[len(args)-1])
		return nil, nil, os.WriteFile(out, []byte("RIFFdata"), 0o600)
	}

	res, err := e.Synthesize(t.Context(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), res.Audio)
}

func TestEngineNotInstalled(t *testing.T) {
	e := NewEspeak()
	e.look = func(string) (string, error) { return "", errors.New("not in PATH") }

	_, err := e.Synthesize(t.Context(), "hi")
	assert.ErrorIs(t, err, ErrEngineNotFound)
	assert.ErrorIs(t, e.Health(t.Context()), ErrEngineNotFound)
}

func TestEngineNilLogger(t *testing.T) {
	e := NewSay(WithLogger(nil))
	require.NotNil(t, e.cfg.Logger)

	e.look = func(string) (string, error) { return "", errors.New("not in PATH") }
	_, err := e.Synthesize(t.Context(), "hi")
	assert.ErrorIs(t, err, ErrEngineNotFound)
}

func TestEngineFailures(t *testing.T) {
	t.Run("process error", func(t *testing.T) {
		e := NewEspeak()
		e.look = found
		e.run = (&fakeRun{err: errors.New("signal: killed")}).run

		_, err := e.Synthesize(t.Context(), "hi")
		var ee *EngineError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, -1, ee.ExitCode)
		assert.Equal(t, "diagnostic", ee.Stderr)
	})

	t.Run("no output", func(t *testing.T) {
		e := NewEspeak()
		e.look = found
		e.run = (&fakeRun{}).run

		_, err := e.Synthesize(t.Context(), "hi")
		assert.ErrorIs(t, err, ErrNoAudio)
	})

	t.Run("empty text", func(t *testing.T) {
		e := NewEspeak()
		_, err := e.Synthesize(t.Context(), "   ")
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("timeout", func(t *testing.T) {
		e := NewEspeak(WithTimeout(10 * time.Millisecond))
		e.look = found
		e.run = func(ctx context.Context, bin string, args []string, stdin string) ([]byte, []byte, error) {
			<-ctx.Done()
			return nil, nil, errors.New("killed")
		}

		_, err := e.Synthesize(context.Background(), "hi")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWordsPerMinute(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 193, cfg.wordsPerMinute(175))

	cfg.Rate = 2
	assert.Equal(t, 350, cfg.wordsPerMinute(175))
}
