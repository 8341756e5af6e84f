// Command mictest records audio from the default input device and posts it
// to the whisper server's /transcribe endpoint. It is a manual test client,
// not production infrastructure.
package main

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

// Whisper works best on 16 kHz mono input
const (
	sampleRate      = 16000
	channels        = 1
	framesPerBuffer = 1024
)

func main() {
	useHTTPS := flag.Bool("https", false, "Use HTTPS (default: HTTP)")
	serverURL := flag.String("server", "", "Transcription endpoint URL (overrides --https)")
	flag.Parse()

	endpoint := *serverURL
	if endpoint == "" {
		if *useHTTPS {
			endpoint = "https://localhost:9000/transcribe"
		} else {
			endpoint = "http://localhost:9000/transcribe"
		}
	}

	sessionID := uuid.NewString()
	fmt.Printf("Whisper server microphone test (session %s)\n", sessionID)

	samples, err := record()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recording failed: %v\n", err)
		os.Exit(1)
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "No audio captured")
		os.Exit(1)
	}

	duration := float64(len(samples)) / float64(sampleRate)
	fmt.Printf("Recorded %.2f seconds at %d Hz\n", duration, sampleRate)

	tmp, err := os.CreateTemp("", "mictest-*.wav")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create temp file: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(tmp.Name())

	if err := writeWAV(tmp, samples); err != nil {
		tmp.Close()
		fmt.Fprintf(os.Stderr, "Failed to encode WAV: %v\n", err)
		os.Exit(1)
	}
	if err := tmp.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to finalize WAV: %v\n", err)
		os.Exit(1)
	}

	if err := sendToServer(endpoint, tmp.Name(), *useHTTPS); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// record captures microphone input until the user presses Enter
func record() ([]int16, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("no default input device: %w", err)
	}
	fmt.Printf("Using input device: %s\n", device.Name)

	var (
		mu      sync.Mutex
		samples []int16
	)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		mu.Lock()
		samples = append(samples, in...)
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	fmt.Println("Recording... speak now, press Enter to stop")
	bufio.NewReader(os.Stdin).ReadString('\n')

	if err := stream.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop audio stream: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return samples, nil
}

// writeWAV encodes the captured samples as 16-bit PCM WAV
func writeWAV(f *os.File, samples []int16) error {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// sendToServer posts the WAV file as a multipart upload and prints the result
func sendToServer(endpoint, path string, insecure bool) error {
	fmt.Printf("Sending to %s\n", endpoint)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", "audio.wav")
	if err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	if insecure {
		// Self-signed local certificates are expected in --https mode
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	resp, err := client.Post(endpoint, writer.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("could not reach server at %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result struct {
			Transcription    string `json:"transcription"`
			DetectedLanguage string `json:"detected_language"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		fmt.Println("Transcription:")
		fmt.Println(result.Transcription)
		fmt.Printf("Detected language: %s\n", result.DetectedLanguage)
		return nil
	case http.StatusServiceUnavailable:
		return fmt.Errorf("whisper model is not loaded yet, check /health and retry")
	default:
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, payload)
	}
}
