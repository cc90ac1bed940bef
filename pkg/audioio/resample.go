package audioio

import "math"

// Convert returns chunk resampled and remixed to the given format. Remote
// clips and synthesized speech arrive in whatever format their encoder
// chose; the sink only accepts its own.
func Convert(chunk AudioChunk, sampleRate, channels int) AudioChunk {
	samples := chunk.Samples
	srcChannels := chunk.Channels
	if srcChannels == 0 {
		srcChannels = 1
	}

	switch {
	case srcChannels == 2 && channels == 1:
		samples = StereoToMono(samples)
	case srcChannels == 1 && channels == 2:
		samples = Resample(samples, chunk.SampleRate, sampleRate)
		return AudioChunk{Samples: MonoToStereo(samples), SampleRate: sampleRate, Channels: 2}
	}

	if channels == 2 {
		left, right := splitStereo(samples)
		left = Resample(left, chunk.SampleRate, sampleRate)
		right = Resample(right, chunk.SampleRate, sampleRate)
		return AudioChunk{Samples: joinStereo(left, right), SampleRate: sampleRate, Channels: 2}
	}

	return AudioChunk{
		Samples:    Resample(samples, chunk.SampleRate, sampleRate),
		SampleRate: sampleRate,
		Channels:   1,
	}
}

// Resample converts mono audio from one sample rate to another using linear
// interpolation. Good enough for speech.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := len(samples) * toRate / fromRate
	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)
	last := len(samples) - 1
	for i := range result {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			result[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		s1 := float64(samples[idx])
		s2 := float64(samples[idx+1])
		result[i] = int16(s1 + frac*(s2-s1))
	}
	return result
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// MonoToStereo duplicates mono samples to stereo.
func MonoToStereo(samples []int16) []int16 {
	stereo := make([]int16, len(samples)*2)
	for i, s := range samples {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}
	return stereo
}

// StereoToMono averages stereo samples to mono.
func StereoToMono(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		left := int32(samples[i*2])
		right := int32(samples[i*2+1])
		mono[i] = int16((left + right) / 2)
	}
	return mono
}

func splitStereo(samples []int16) (left, right []int16) {
	n := len(samples) / 2
	left = make([]int16, n)
	right = make([]int16, n)
	for i := 0; i < n; i++ {
		left[i] = samples[i*2]
		right[i] = samples[i*2+1]
	}
	return left, right
}

func joinStereo(left, right []int16) []int16 {
	n := min(len(left), len(right))
	out := make([]int16, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = left[i]
		out[i*2+1] = right[i]
	}
	return out
}

// Level returns the RMS level of samples as a fraction of full scale.
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum/float64(len(samples))) / 32767
}
