package audio

import "math"

// Placeholder defaults.
const (
	PlaceholderSampleRate = 44100
	PlaceholderSeconds    = 3.0
	placeholderGain       = 18000
)

// Placeholder returns a complete mono 16-bit WAV holding a deterministic
// speech-like signal: three drifting formants under a 4 Hz envelope.
// It stands in for synthesized speech when the synthesizer is unreachable.
func Placeholder(sampleRate int, seconds float64) []byte {
	if sampleRate <= 0 {
		sampleRate = PlaceholderSampleRate
	}
	if seconds <= 0 {
		seconds = PlaceholderSeconds
	}

	n := int(seconds * float64(sampleRate))
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)

		f1 := 300 + 200*math.Sin(2*math.Pi*2*t)
		f2 := 800 + 400*math.Sin(2*math.Pi*1.5*t)
		f3 := 1600 + 600*math.Sin(2*math.Pi*1*t)

		s := 0.4*math.Sin(2*math.Pi*f1*t) +
			0.25*math.Sin(2*math.Pi*f2*t) +
			0.15*math.Sin(2*math.Pi*f3*t) +
			0.1*math.Sin(2*math.Pi*f1*2*t)

		s *= 0.6 + 0.4*math.Sin(2*math.Pi*4*t)
		s += 0.02 * (0.5 - float64(i%147)/147.0)

		v := int(s * placeholderGain)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		samples[i] = int16(v)
	}

	// sampleRate is positive here, so EncodeWAV cannot fail.
	data, _ := EncodeWAV(samples, sampleRate)
	return data
}
