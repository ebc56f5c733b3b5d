package synth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// execEngine talks to a long-lived TTS worker subprocess over a
// JSON-lines protocol: one request object on stdin, PCM segments as
// base64 float32 little-endian on stdout until a final marker.
type execEngine struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Scanner
	sampleRate int
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Error     string `json:"error,omitempty"`
	Final     bool   `json:"final"`
}

// NewExecEngineFactory builds engines by launching command once per
// language code. The placeholder {lang} in the command is replaced
// with the language code, so one worker script can serve all catalog
// languages.
func NewExecEngineFactory(command string, sampleRate int) (EngineFactory, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}

	return func(ctx context.Context, langCode string) (Engine, error) {
		resolved := make([]string, len(args))
		for i, a := range args {
			resolved[i] = strings.ReplaceAll(a, "{lang}", langCode)
		}
		cmd := exec.Command(resolved[0], resolved[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start tts worker: %w", err)
		}
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
		return &execEngine{cmd: cmd, stdin: stdin, stdout: scanner, sampleRate: sampleRate}, nil
	}, nil
}

func (e *execEngine) Synthesize(ctx context.Context, text, voice string) ([][]float32, error) {
	req := execRequest{Text: text, Voice: voice, SampleRate: e.sampleRate}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')
	if _, err := e.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write to tts worker: %w", err)
	}

	// The read runs off to the side so a worker that produces nothing
	// cannot block past the caller's deadline.
	type readResult struct {
		segments [][]float32
		err      error
	}
	done := make(chan readResult, 1)
	go func() {
		segments, err := e.readSegments()
		done <- readResult{segments, err}
	}()

	select {
	case res := <-done:
		return res.segments, res.err
	case <-ctx.Done():
		// An abandoned request leaves the worker's stream out of sync;
		// the process is unusable, so kill it to unblock the reader.
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
		<-done
		return nil, ctx.Err()
	}
}

func (e *execEngine) readSegments() ([][]float32, error) {
	var segments [][]float32
	for e.stdout.Scan() {
		line := e.stdout.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("decode tts worker response: %w", err)
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("tts worker: %s", resp.Error)
		}
		if resp.PCMBase64 != "" {
			seg, err := decodeSegment(resp.PCMBase64)
			if err != nil {
				return nil, err
			}
			if len(seg) > 0 {
				segments = append(segments, seg)
			}
		}
		if resp.Final {
			return segments, nil
		}
	}
	if err := e.stdout.Err(); err != nil {
		return nil, fmt.Errorf("read tts worker: %w", err)
	}
	return nil, fmt.Errorf("tts worker closed stdout mid-request")
}

func (e *execEngine) Close() error {
	_ = e.stdin.Close()
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	return e.cmd.Wait()
}

// decodeSegment converts base64 little-endian float32 PCM to samples.
func decodeSegment(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("pcm payload not float32-aligned: %d bytes", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}
