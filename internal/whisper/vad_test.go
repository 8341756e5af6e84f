package whisper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func tone(samples int, amplitude float64) []float32 {
	out := make([]float32, samples)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(SampleRate)))
	}
	return out
}

func TestFilterSilenceDropsAllSilentInput(t *testing.T) {
	silence := make([]float32, SampleRate) // one second of digital silence
	out := FilterSilence(silence, SampleRate, 0.01)
	require.Empty(t, out)
}

func TestFilterSilenceKeepsSpeech(t *testing.T) {
	speech := tone(SampleRate, 0.5)
	out := FilterSilence(speech, SampleRate, 0.01)
	require.Equal(t, len(speech), len(out), "a fully voiced signal must pass through unchanged")
}

func TestFilterSilenceTrimsQuietSpans(t *testing.T) {
	var signal []float32
	signal = append(signal, make([]float32, SampleRate)...) // leading silence
	signal = append(signal, tone(SampleRate/2, 0.5)...)     // speech burst
	signal = append(signal, make([]float32, SampleRate)...) // trailing silence

	out := FilterSilence(signal, SampleRate, 0.01)
	require.NotEmpty(t, out)
	require.Less(t, len(out), len(signal), "silent spans must be dropped")
	// The voiced burst plus boundary padding must survive intact
	require.GreaterOrEqual(t, len(out), SampleRate/2)
}

func TestFilterSilenceDisabledThreshold(t *testing.T) {
	silence := make([]float32, SampleRate)
	out := FilterSilence(silence, SampleRate, 0)
	require.Equal(t, len(silence), len(out), "non-positive threshold disables the gate")
}
