package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/at-wat/ebml-go/webm"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gopkg.in/hraban/opus.v2"
)

// Encoder packs interleaved PCM16 into an uploadable container.
type Encoder interface {
	Encode(samples []int16, sampleRate, channels int) ([]byte, error)
	MIMEType() string
	Extension() string
}

// WebMOpusEncoder produces Opus-in-WebM, the format the backend's speech
// recognizer expects.
type WebMOpusEncoder struct {
	// FrameMs is the Opus frame length. Default: 20.
	FrameMs int
	// Bitrate in bits per second. 0 leaves the libopus default.
	Bitrate int
}

// NewWebMOpusEncoder returns an encoder with 20ms voice frames.
func NewWebMOpusEncoder() *WebMOpusEncoder {
	return &WebMOpusEncoder{FrameMs: 20, Bitrate: 32000}
}

// MIMEType returns "audio/webm".
func (e *WebMOpusEncoder) MIMEType() string { return "audio/webm" }

// Extension returns ".webm".
func (e *WebMOpusEncoder) Extension() string { return ".webm" }

// Encode implements Encoder.
func (e *WebMOpusEncoder) Encode(samples []int16, sampleRate, channels int) ([]byte, error) {
	frameMs := e.FrameMs
	if frameMs == 0 {
		frameMs = 20
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if e.Bitrate > 0 {
		if err := enc.SetBitrate(e.Bitrate); err != nil {
			return nil, fmt.Errorf("opus bitrate: %w", err)
		}
	}

	var out closingBuffer
	writers, err := webm.NewSimpleBlockWriter(&out, []webm.TrackEntry{{
		Name:         "Audio",
		TrackNumber:  1,
		TrackUID:     1,
		CodecID:      "A_OPUS",
		CodecPrivate: opusHead(sampleRate, channels),
		TrackType:    2,
		Audio: &webm.Audio{
			SamplingFrequency: 48000,
			Channels:          uint64(channels),
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("webm writer: %w", err)
	}
	track := writers[0]

	frameSize := sampleRate * frameMs / 1000 * channels
	frame := make([]int16, frameSize)
	packet := make([]byte, 4000)
	var timestamp int64

	for off := 0; off < len(samples); off += frameSize {
		n := copy(frame, samples[off:])
		clear(frame[n:])

		size, err := enc.Encode(frame, packet)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}
		if _, err := track.Write(true, timestamp, packet[:size]); err != nil {
			return nil, fmt.Errorf("webm block: %w", err)
		}
		timestamp += int64(frameMs)
	}

	if err := track.Close(); err != nil {
		return nil, fmt.Errorf("webm close: %w", err)
	}
	return out.Bytes(), nil
}

// opusHead builds the identification header carried as CodecPrivate.
func opusHead(sampleRate, channels int) []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:], 0)
	binary.LittleEndian.PutUint32(head[12:], uint32(sampleRate))
	binary.LittleEndian.PutUint16(head[16:], 0)
	head[18] = 0
	return head
}

type closingBuffer struct {
	bytes.Buffer
}

func (*closingBuffer) Close() error { return nil }

// WAVEncoder produces 16-bit PCM WAV. Useful for backends that skip Opus
// and for inspecting recordings by hand.
type WAVEncoder struct{}

// MIMEType returns "audio/wav".
func (WAVEncoder) MIMEType() string { return "audio/wav" }

// Extension returns ".wav".
func (WAVEncoder) Extension() string { return ".wav" }

// Encode implements Encoder.
func (WAVEncoder) Encode(samples []int16, sampleRate, channels int) ([]byte, error) {
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, channels, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav close: %w", err)
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, errors.New("seek: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	w.pos = int(next)
	return next, nil
}

var (
	_ Encoder = (*WebMOpusEncoder)(nil)
	_ Encoder = WAVEncoder{}
)
