// Package audio converts synthesized float PCM into transport and
// playback formats.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// pcm16 scales clipped float samples to 16-bit integer PCM.
func pcm16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int(s * 32767)
	}
	return out
}

// EncodeWAV packs mono float PCM into a 16-bit RIFF/WAV container.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to encode")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	var buf writerSeeker
	enc := wav.NewEncoder(&buf, sampleRate, 16, 1, 1)
	err := enc.Write(&gaudio.IntBuffer{
		Data:           pcm16(samples),
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeWAVBase64 wraps EncodeWAV for JSON transport.
func EncodeWAVBase64(samples []float32, sampleRate int) (string, error) {
	raw, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// writerSeeker is an in-memory io.WriteSeeker; the wav encoder seeks
// back to patch chunk sizes on Close.
type writerSeeker struct {
	buf []byte
	pos int
}

func (w *writerSeeker) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		grown := make([]byte, need)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *writerSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("seek before start of buffer")
	}
	w.pos = int(next)
	return next, nil
}

func (w *writerSeeker) Bytes() []byte { return w.buf }
