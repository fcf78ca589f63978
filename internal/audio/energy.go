package audio

import (
	"encoding/binary"
	"math"
)

// maxInt16Amplitude is the full-scale amplitude of signed 16-bit PCM.
const maxInt16Amplitude = 32768.0

// EnergyLevel computes the normalized RMS energy of a window of s16le PCM
// bytes. The result is clamped to [0,1]. An empty or odd-length window
// yields 0.
func EnergyLevel(pcm []byte) float64 {
	sampleCount := len(pcm) / 2
	if sampleCount == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < sampleCount*2; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sum += float64(sample) * float64(sample)
	}

	rms := math.Sqrt(sum / float64(sampleCount))
	level := rms / maxInt16Amplitude
	if level > 1 {
		level = 1
	}
	return level
}

// TickWindowBytes returns the number of s16le PCM bytes covering one tick
// interval at the given sample rate and channel count.
func TickWindowBytes(sampleRate, channels, tickMs int) int {
	return sampleRate * channels * 2 * tickMs / 1000
}
