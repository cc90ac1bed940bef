package playback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/audioio"
	"github.com/teslashibe/parley/pkg/recorder"
	"github.com/teslashibe/parley/pkg/tts"
)

func newSink() *audioio.MockSink {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	return audioio.NewMockSink(cfg, log.Discard())
}

func wavBytes(t *testing.T, n, rate, channels int) []byte {
	t.Helper()
	samples := make([]int16, n*channels)
	for i := range samples {
		samples[i] = 1000
	}
	data, err := recorder.WAVEncoder{}.Encode(samples, rate, channels)
	require.NoError(t, err)
	return data
}

func audioServer(t *testing.T, body []byte, contentType string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPlayRemote(t *testing.T) {
	sink := newSink()
	synth := tts.NewMock()
	srv := audioServer(t, wavBytes(t, 2400, 24000, 1), "audio/wav")

	p := New(sink, synth, WithLogger(log.Discard()))
	out := p.Play(t.Context(), "Welcome", srv.URL+"/reply.wav")

	require.True(t, out.OK(), "outcome error: %v", out.Err)
	assert.Equal(t, ViaRemote, out.Via)
	assert.Len(t, sink.Played(), 2400)
	assert.Equal(t, 0, synth.CallCount("Synthesize"), "remote audio must not trigger local synthesis")
}

func TestPlayRemoteConvertsFormat(t *testing.T) {
	sink := newSink() // 24kHz mono
	srv := audioServer(t, wavBytes(t, 1600, 16000, 2), "application/octet-stream")

	p := New(sink, nil, WithLogger(log.Discard()))
	out := p.Play(t.Context(), "", srv.URL+"/reply")

	require.True(t, out.OK(), "outcome error: %v", out.Err)
	assert.Len(t, sink.Played(), 2400)
	assert.Equal(t, int16(1000), sink.Played()[100])
}

func TestFallbackToLocalSynthesis(t *testing.T) {
	sink := newSink()
	synth := tts.NewMock()

	p := New(sink, synth, WithLogger(log.Discard()))
	out := p.Play(t.Context(), "Round 2 begins", "")

	require.True(t, out.OK(), "outcome error: %v", out.Err)
	assert.Equal(t, ViaLocal, out.Via)
	require.Equal(t, 1, synth.CallCount("Synthesize"))
	assert.Equal(t, "Round 2 begins", synth.LastCall().Text)
	assert.NotEmpty(t, sink.Played())
}

func TestRemoteFailureIsFailedOutcome(t *testing.T) {
	sink := newSink()
	synth := tts.NewMock()
	srv := audioServer(t, nil, "")

	p := New(sink, synth, WithLogger(log.Discard()))
	out := p.Play(t.Context(), "text", srv.URL+"/missing.mp3")

	assert.Equal(t, Failed, out.Status)
	assert.Equal(t, ViaRemote, out.Via)
	assert.Error(t, out.Err)
	assert.Empty(t, sink.Played())
}

func TestUndecodableAudioFails(t *testing.T) {
	srv := audioServer(t, []byte("<html>not audio</html>"), "text/html")

	p := New(newSink(), nil, WithLogger(log.Discard()))
	out := p.Play(t.Context(), "", srv.URL+"/x")

	assert.Equal(t, Failed, out.Status)
	assert.ErrorIs(t, out.Err, ErrUnsupportedFormat)
}

func TestNothingToSay(t *testing.T) {
	synth := tts.NewMock()
	p := New(newSink(), synth, WithLogger(log.Discard()))

	out := p.Play(t.Context(), "   ", "")
	assert.True(t, out.OK())
	assert.Equal(t, ViaNone, out.Via)
	assert.Equal(t, 0, synth.CallCount("Synthesize"))
}

func TestNoSynthesizer(t *testing.T) {
	p := New(newSink(), nil, WithLogger(log.Discard()))

	out := p.Play(t.Context(), "hello", "")
	assert.Equal(t, Failed, out.Status)
	assert.ErrorIs(t, out.Err, ErrNoSynthesizer)
}

func TestSynthesisFailure(t *testing.T) {
	p := New(newSink(), tts.WithError(errors.New("engine crashed")), WithLogger(log.Discard()))

	out := p.Play(t.Context(), "hello", "")
	assert.Equal(t, Failed, out.Status)
	assert.Equal(t, ViaLocal, out.Via)
}

func TestNewPlaySupersedesLive(t *testing.T) {
	sink := newSink()
	sink.FlushDelay = 300 * time.Millisecond
	synth := tts.NewMock()

	var mu sync.Mutex
	var outcomes []Outcome
	p := New(sink, synth, WithLogger(log.Discard()), WithObserver(func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}))

	first := make(chan Outcome, 1)
	go func() {
		first <- p.Play(context.Background(), "the first reply is long", "")
	}()

	require.Eventually(t, func() bool {
		return sink.Stats().ChunksWritten > 0
	}, time.Second, 5*time.Millisecond)

	second := p.Play(context.Background(), "hi", "")
	require.True(t, second.OK(), "outcome error: %v", second.Err)

	old := <-first
	assert.Equal(t, Failed, old.Status)
	assert.ErrorIs(t, old.Err, ErrSuperseded)

	// Only the second reply reached the speaker: 2 chars of mock audio.
	assert.Len(t, sink.Played(), 2*480)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, outcomes, 2)
}

func TestStopCutsOffPlayback(t *testing.T) {
	sink := newSink()
	sink.FlushDelay = time.Second

	p := New(sink, tts.NewMock(), WithLogger(log.Discard()))
	done := make(chan Outcome, 1)
	go func() {
		done <- p.Play(context.Background(), "a long goodbye", "")
	}()

	require.Eventually(t, func() bool {
		return sink.Stats().ChunksWritten > 0
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	select {
	case out := <-done:
		assert.ErrorIs(t, out.Err, ErrSuperseded)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("playback did not stop")
	}
	assert.Empty(t, sink.Played())
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		data        []byte
		want        Format
		wantErr     bool
	}{
		{"mpeg content type", "audio/mpeg", nil, FormatMP3, false},
		{"wav content type", "audio/x-wav", nil, FormatWAV, false},
		{"riff magic", "", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatWAV, false},
		{"id3 magic", "application/octet-stream", []byte("ID3\x04"), FormatMP3, false},
		{"mpeg frame sync", "", []byte{0xFF, 0xFB, 0x90}, FormatMP3, false},
		{"unknown", "text/plain", []byte("hello"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sniff(tt.contentType, tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeSynthPCM(t *testing.T) {
	res := &tts.AudioResult{
		Audio:  []byte{0x01, 0x00, 0xFF, 0xFF},
		Format: tts.AudioFormat{Encoding: tts.EncodingPCM16, SampleRate: 22050},
	}
	chunk, err := decodeSynth(res)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1}, chunk.Samples)
	assert.Equal(t, 22050, chunk.SampleRate)
	assert.Equal(t, 1, chunk.Channels)
}
