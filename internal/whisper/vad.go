package whisper

import "math"

// Voice activity gating drops windows of audio whose RMS energy falls below
// a threshold, so the model never spends cycles decoding silence or line
// noise. One window of padding is kept on each side of a voiced span to
// avoid clipping word boundaries.
const (
	vadWindowMs  = 30
	vadPadWindow = 1
)

// FilterSilence returns the samples with non-speech windows removed.
// A non-positive threshold disables the gate. All-silence input yields an
// empty (non-nil length zero) result.
func FilterSilence(samples []float32, sampleRate int, threshold float64) []float32 {
	if threshold <= 0 || len(samples) == 0 {
		return samples
	}

	window := sampleRate * vadWindowMs / 1000
	if window <= 0 {
		return samples
	}

	numWindows := (len(samples) + window - 1) / window
	voiced := make([]bool, numWindows)
	for w := 0; w < numWindows; w++ {
		start := w * window
		end := start + window
		if end > len(samples) {
			end = len(samples)
		}
		voiced[w] = rms(samples[start:end]) >= threshold
	}

	keep := make([]bool, numWindows)
	for w, v := range voiced {
		if !v {
			continue
		}
		lo := w - vadPadWindow
		if lo < 0 {
			lo = 0
		}
		hi := w + vadPadWindow
		if hi >= numWindows {
			hi = numWindows - 1
		}
		for i := lo; i <= hi; i++ {
			keep[i] = true
		}
	}

	out := make([]float32, 0, len(samples))
	for w := 0; w < numWindows; w++ {
		if !keep[w] {
			continue
		}
		start := w * window
		end := start + window
		if end > len(samples) {
			end = len(samples)
		}
		out = append(out, samples[start:end]...)
	}
	return out
}

func rms(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(window)))
}
