// Package audio turns uploaded audio files into the mono float32 samples the
// speech models expect.
//
// WAV, Ogg Vorbis, MP3 and FLAC are decoded natively. M4A and Opus, and any
// file a native decoder rejects, go through an ffmpeg subprocess that emits
// raw little-endian float32 PCM.
package audio
