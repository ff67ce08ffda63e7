package recorder

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"voice-agent-server/internal/observability"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder archives buffered call audio as WAV files on local disk.
type Recorder struct {
	dir    string
	logger *observability.Logger
}

func New(dir string, logger *observability.Logger) *Recorder {
	return &Recorder{dir: dir, logger: logger}
}

// SaveAudio writes one WAV file for the given raw s16le PCM buffer and
// returns its path. An empty buffer is a logged no-op, not an error.
// Files are created once and never mutated.
func (r *Recorder) SaveAudio(ctx context.Context, serverName string, pcm []byte, sampleRate, numChannels int) (string, error) {
	if len(pcm) == 0 {
		r.logger.Info(ctx, "No audio data to save")
		return "", nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(r.dir, fmt.Sprintf("%s_recording_%s.wav", serverName, timestamp))

	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create recording file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, numChannels, 1)
	if err := enc.Write(pcmToIntBuffer(pcm, sampleRate, numChannels)); err != nil {
		enc.Close()
		return "", fmt.Errorf("failed to encode recording: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize recording: %w", err)
	}

	r.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "recording_file", Value: filename},
		observability.Field{Key: "audio_bytes", Value: len(pcm)}),
		"Merged audio saved")
	return filename, nil
}

func pcmToIntBuffer(pcm []byte, sampleRate, numChannels int) *audio.IntBuffer {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
}
