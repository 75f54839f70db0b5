package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// WAV format tags from the fmt chunk.
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

var (
	// ErrUnsupportedFormat is returned for extensions no decoder handles.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrEmpty is returned when a file decodes to zero samples.
	ErrEmpty = errors.New("no audio samples decoded")
)

// Clip is decoded audio: interleaved float32 samples in [-1.0, 1.0].
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of samples per channel.
func (c *Clip) Frames() int {
	if c.Channels <= 1 {
		return len(c.Samples)
	}
	return len(c.Samples) / c.Channels
}

// Seconds returns the clip length in seconds.
func (c *Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Decoder decodes audio files by extension, using ffmpeg for containers
// without a native Go decoder.
type Decoder struct {
	ffmpegPath string
	rate       int
	run        CommandRunner
}

// NewDecoder creates a Decoder. targetRate is the rate ffmpeg is asked to
// produce when it is used; native decoders keep the file's own rate.
func NewDecoder(ffmpegPath string, targetRate int) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Decoder{
		ffmpegPath: ffmpegPath,
		rate:       targetRate,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (d *Decoder) WithCommandRunner(run CommandRunner) {
	d.run = run
}

// Decode reads the file at path and returns its samples. The decoder is
// chosen from the file extension; when a native decoder fails and ffmpeg is
// available, ffmpeg gets a second try.
func (d *Decoder) Decode(ctx context.Context, path string) (*Clip, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var native func(string) (*Clip, error)
	switch ext {
	case ".wav":
		native = decodeWAV
	case ".ogg":
		native = decodeOggVorbis
	case ".mp3":
		native = decodeMP3
	case ".flac":
		native = decodeFLAC
	case ".m4a", ".opus":
		if !d.ffmpegAvailable() {
			return nil, fmt.Errorf("audio: decode %s: ffmpeg (%s) is required but was not found", ext, d.ffmpegPath)
		}
		return d.decodeFFmpeg(ctx, path)
	default:
		return nil, fmt.Errorf("audio: decode %q: %w", ext, ErrUnsupportedFormat)
	}

	clip, err := native(path)
	if err == nil {
		return clip, nil
	}
	if !d.ffmpegAvailable() {
		return nil, fmt.Errorf("audio: decode %s: %w", ext, err)
	}

	// Ogg files carrying Opus, WAVs with A-law or 64-bit float payloads and other
	// variants the pure-Go decoders reject are common enough to retry.
	clip, ffErr := d.decodeFFmpeg(ctx, path)
	if ffErr != nil {
		return nil, fmt.Errorf("audio: decode %s: %w (ffmpeg fallback: %v)", ext, err, ffErr)
	}
	return clip, nil
}

// Load decodes path and converts it to mono at targetRate, the equivalent of
// loading a file "at the model's sample rate".
func (d *Decoder) Load(ctx context.Context, path string, targetRate int) (*Clip, error) {
	clip, err := d.Decode(ctx, path)
	if err != nil {
		return nil, err
	}

	samples := MixDown(clip.Samples, clip.Channels)
	samples = Resample(samples, clip.SampleRate, targetRate)
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio: load %s: %w", filepath.Base(path), ErrEmpty)
	}

	return &Clip{Samples: samples, SampleRate: targetRate, Channels: 1}, nil
}

func decodeWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wav: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading PCM buffer: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("reading PCM buffer: missing format")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}

	clip := &Clip{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}

	switch dec.WavAudioFormat {
	case wavFormatPCM, wavFormatExtensible:
	case wavFormatFloat:
		if bitDepth != 32 {
			return nil, fmt.Errorf("unsupported %d-bit float WAV", bitDepth)
		}
		// The decoder hands back the raw IEEE bits as a signed 32-bit int.
		clip.Samples = make([]float32, len(buf.Data))
		for i, s := range buf.Data {
			clip.Samples[i] = math.Float32frombits(uint32(int32(s)))
		}
		return clip, nil
	default:
		return nil, fmt.Errorf("unsupported WAV format tag 0x%04x", dec.WavAudioFormat)
	}

	// 8-bit WAV is unsigned; everything wider is signed two's complement.
	scale := float32(int64(1) << (bitDepth - 1))
	offset := float32(0)
	if bitDepth == 8 {
		offset = 128
	}

	clip.Samples = make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		clip.Samples[i] = (float32(s) - offset) / scale
	}
	return clip, nil
}

func decodeOggVorbis(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ogg: %w", err)
	}
	defer func() { _ = f.Close() }()

	samples, format, err := oggvorbis.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading ogg vorbis: %w", err)
	}

	return &Clip{
		Samples:    samples,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}

func decodeMP3(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mp3: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("reading mp3 header: %w", err)
	}

	// go-mp3 always produces 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("reading mp3 frames: %w", err)
	}

	return &Clip{
		Samples:    int16LEToFloat32(raw),
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}

func decodeFLAC(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening flac: %w", err)
	}
	defer func() { _ = f.Close() }()

	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("reading flac header: %w", err)
	}
	defer func() { _ = stream.Close() }()

	channels := int(stream.Info.NChannels)
	scale := float32(int64(1) << (stream.Info.BitsPerSample - 1))

	var samples []float32
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading flac frame: %w", err)
		}

		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float32(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	return &Clip{
		Samples:    samples,
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
	}, nil
}

// int16LEToFloat32 converts little-endian signed 16-bit PCM to float32.
func int16LEToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}
