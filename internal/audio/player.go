package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Player plays one mono float PCM buffer synchronously to completion.
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
}

type execPlayer struct {
	cmd []string
}

// NewExecPlayer builds a Player that pipes signed 16-bit little-endian
// PCM to an external command's stdin. The command may contain the
// placeholder {rate}, replaced with the sample rate per call.
func NewExecPlayer(command string) (Player, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	args := make([]string, len(p.cmd))
	for i, a := range p.cmd {
		args[i] = strings.ReplaceAll(a, "{rate}", strconv.Itoa(sampleRate))
	}

	pcm := make([]byte, len(samples)*2)
	for i, v := range pcm16(samples) {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = bytes.NewReader(pcm)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("player command failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// NopPlayer discards audio, for headless deployments and tests.
type NopPlayer struct{}

func (NopPlayer) Play(context.Context, []float32, int) error { return nil }
