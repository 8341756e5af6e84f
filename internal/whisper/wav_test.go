package whisper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, path string, data []int, channels, rate int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
		Data:           data,
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestDecodeWAVMono16k(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	writeTestWAV(t, path, []int{0, 16384, -16384, 32767}, 1, SampleRate)

	samples, err := DecodeWAV(path)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	require.InDelta(t, 0.0, samples[0], 0.001)
	require.InDelta(t, 0.5, samples[1], 0.001)
	require.InDelta(t, -0.5, samples[2], 0.001)
	require.InDelta(t, 1.0, samples[3], 0.001)
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	// Interleaved L/R frames with different per-channel values
	writeTestWAV(t, path, []int{16384, 0, 0, 16384}, 2, SampleRate)

	samples, err := DecodeWAV(path)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.InDelta(t, 0.25, samples[0], 0.001)
	require.InDelta(t, 0.25, samples[1], 0.001)
}

func TestDecodeWAVResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "32k.wav")
	data := make([]int, 3200) // 100ms at 32 kHz
	for i := range data {
		data[i] = 8192
	}
	writeTestWAV(t, path, data, 1, 32000)

	samples, err := DecodeWAV(path)
	require.NoError(t, err)
	require.InDelta(t, 1600, len(samples), 2, "100ms must resample to ~1600 samples at 16 kHz")
	require.InDelta(t, 0.25, samples[len(samples)/2], 0.001)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-audio.wav")
	require.NoError(t, os.WriteFile(path, []byte("this is not a riff container"), 0644))

	_, err := DecodeWAV(path)
	require.Error(t, err)
}
