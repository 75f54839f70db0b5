package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ffmpegAvailable reports whether ffmpeg can be used for decoding.
func (d *Decoder) ffmpegAvailable() bool {
	if d.run != nil {
		return true
	}
	_, err := exec.LookPath(d.ffmpegPath)
	return err == nil
}

// decodeFFmpeg asks ffmpeg for mono float32 PCM at the decoder's target rate.
func (d *Decoder) decodeFFmpeg(ctx context.Context, path string) (*Clip, error) {
	args := buildFFmpegArgs(path, d.rate)

	run := d.run
	if run == nil {
		run = runCommand
	}

	raw, err := run(ctx, d.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	return &Clip{
		Samples:    bytesToFloat32(raw, uint32(len(raw)/4)),
		SampleRate: d.rate,
		Channels:   1,
	}, nil
}

// buildFFmpegArgs constructs the ffmpeg arguments that write raw mono
// float32 PCM at rate to stdout.
func buildFFmpegArgs(source string, rate int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-f", "f32le",
		"pipe:1",
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binary path comes from config
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
