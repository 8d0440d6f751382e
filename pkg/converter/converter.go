// Package converter turns STEP geometry into a GLB model by delegating to
// an external program.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var ErrNotConfigured = errors.New("no converter command configured")

// Converter writes a binary glTF model for the STEP file at stepPath to outPath.
type Converter interface {
	ConvertStepToGLTF(ctx context.Context, stepPath, outPath string) error
}

// Func adapts a plain function to Converter.
type Func func(ctx context.Context, stepPath, outPath string) error

func (f Func) ConvertStepToGLTF(ctx context.Context, stepPath, outPath string) error {
	return f(ctx, stepPath, outPath)
}

const maxStderr = 2048

// Command runs a command line such as "step2glb {input} {output}".
// Arguments are split on whitespace and never passed through a shell.
type Command struct {
	args []string
}

func NewCommand(commandLine string) (*Command, error) {
	args := strings.Fields(commandLine)
	if len(args) == 0 {
		return nil, ErrNotConfigured
	}
	return &Command{args: args}, nil
}

func (c *Command) ConvertStepToGLTF(ctx context.Context, stepPath, outPath string) error {
	args := make([]string, len(c.args))
	hasInput := false
	for i, a := range c.args {
		if strings.Contains(a, "{input}") {
			hasInput = true
		}
		a = strings.ReplaceAll(a, "{input}", stepPath)
		args[i] = strings.ReplaceAll(a, "{output}", outPath)
	}
	if !hasInput {
		args = append(args, stepPath, outPath)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("converter %s: %w", args[0], ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		if msg != "" {
			return fmt.Errorf("converter %s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("converter %s: %w", args[0], err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("converter %s produced no output: %w", args[0], err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("converter %s produced an empty model", args[0])
	}
	return nil
}
