package whisper

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// SampleRate is the sample rate whisper expects its input in
const SampleRate = 16000

// DecodeWAV reads a 16-bit PCM WAV file and returns mono float32 samples
// at the model's expected sample rate, downmixing and resampling as needed.
func DecodeWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("uploaded audio is not a valid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV data: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("WAV file has no usable format information")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported WAV bit depth: %d", bitDepth)
	}
	scale := float32(int64(1) << uint(bitDepth-1))

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		mono[i] = sum / float32(channels)
	}

	if buf.Format.SampleRate != SampleRate {
		mono = resampleLinear(mono, buf.Format.SampleRate, SampleRate)
	}

	return mono, nil
}

// resampleLinear converts samples between rates by linear interpolation.
// Good enough for speech input; the model is tolerant of minor artifacts.
func resampleLinear(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 {
		return in
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(in)) / ratio)
	if outLen == 0 {
		return nil
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
