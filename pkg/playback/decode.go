package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/teslashibe/parley/pkg/audioio"
	"github.com/teslashibe/parley/pkg/tts"
)

// ErrUnsupportedFormat is returned for audio that is neither MP3 nor WAV.
var ErrUnsupportedFormat = errors.New("playback: unsupported audio format")

// Format is a container the player can decode.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatPCM Format = "pcm"
)

// sniff picks a decoder from the content type, falling back to magic bytes.
func sniff(contentType string, data []byte) (Format, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return FormatMP3, nil
	case strings.Contains(ct, "wav"), strings.Contains(ct, "wave"):
		return FormatWAV, nil
	}

	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV, nil
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return FormatMP3, nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	return "", fmt.Errorf("%w (content-type %q)", ErrUnsupportedFormat, contentType)
}

// decode turns an encoded clip into PCM16.
func decode(format Format, data []byte) (audioio.AudioChunk, error) {
	switch format {
	case FormatMP3:
		return decodeMP3(data)
	case FormatWAV:
		return decodeWAV(data)
	default:
		return audioio.AudioChunk{}, ErrUnsupportedFormat
	}
}

func decodeMP3(data []byte) (audioio.AudioChunk, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audioio.AudioChunk{}, fmt.Errorf("mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return audioio.AudioChunk{}, fmt.Errorf("mp3: %w", err)
	}
	// go-mp3 always yields 16-bit stereo.
	return audioio.AudioChunk{
		Samples:    audioio.BytesToSamples(pcm),
		SampleRate: d.SampleRate(),
		Channels:   2,
	}, nil
}

func decodeWAV(data []byte) (audioio.AudioChunk, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return audioio.AudioChunk{}, fmt.Errorf("wav: invalid file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return audioio.AudioChunk{}, fmt.Errorf("wav: %w", err)
	}

	shift := int(d.BitDepth) - 16
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case d.BitDepth == 8:
			samples[i] = int16((v - 128) << 8)
		case shift > 0:
			samples[i] = int16(v >> shift)
		default:
			samples[i] = int16(v)
		}
	}

	return audioio.AudioChunk{
		Samples:    samples,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
	}, nil
}

// decodeSynth decodes a local engine result.
func decodeSynth(res *tts.AudioResult) (audioio.AudioChunk, error) {
	switch res.Format.Encoding {
	case tts.EncodingWAV:
		return decodeWAV(res.Audio)
	case tts.EncodingPCM16:
		channels := res.Format.Channels
		if channels == 0 {
			channels = 1
		}
		return audioio.AudioChunk{
			Samples:    audioio.BytesToSamples(res.Audio),
			SampleRate: res.Format.SampleRate,
			Channels:   channels,
		}, nil
	default:
		return audioio.AudioChunk{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, res.Format.Encoding)
	}
}
